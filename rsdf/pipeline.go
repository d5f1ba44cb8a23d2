package rsdf

import (
	"context"
	"fmt"
	"hash/crc64"
	"io"
	"log/slog"
	"time"

	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/metric"
	"github.com/seisnet/cd11streams/pkg/cache"
	"github.com/seisnet/cd11streams/pkg/retry"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// PipelineConfig names the output subjects and the publish retry policy.
type PipelineConfig struct {
	ExtractSubject string
	IssueSubject   string
	// Retry applies to every publish. The zero value uses errors.PublishRetry.
	Retry retry.Config
	// DedupSize bounds the number of recent frames remembered to drop
	// retransmissions. Zero disables duplicate detection.
	DedupSize int
}

// PipelineDeps holds optional collaborators.
type PipelineDeps struct {
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Pipeline parses raw frames into extracts and publishes each extract plus
// one message per issue it contains. A record that fails to parse or
// publish is logged and skipped; only source failures stop the pipeline.
type Pipeline struct {
	cfg       PipelineConfig
	parser    Parser
	publisher Publisher
	logger    *slog.Logger
	metrics   *Metrics
	core      *metric.Metrics
	seen      *cache.LRU[struct{}]
}

// NewPipeline validates cfg and creates a pipeline.
func NewPipeline(cfg PipelineConfig, parser Parser, publisher Publisher, deps PipelineDeps) (*Pipeline, error) {
	if parser == nil || publisher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "NewPipeline", "check parser and publisher")
	}
	if cfg.ExtractSubject == "" {
		cfg.ExtractSubject = SubjectExtracts
	}
	if cfg.IssueSubject == "" {
		cfg.IssueSubject = SubjectIssues
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = errors.PublishRetry()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cfg:       cfg,
		parser:    parser,
		publisher: publisher,
		logger:    logger.With("component", "rsdf-pipeline"),
		metrics:   NewMetrics(deps.MetricsRegistry),
		core:      deps.MetricsRegistry.CoreMetrics(),
	}
	if cfg.DedupSize > 0 {
		seen, err := cache.NewLRU(cfg.DedupSize, cache.WithMetrics[struct{}](deps.MetricsRegistry, "rsdf_dedup"))
		if err != nil {
			return nil, err
		}
		p.seen = seen
	}
	return p, nil
}

// Run drains src until it reports io.EOF, which ends the run successfully.
// Cancellation returns ctx.Err(). Any other source error is returned as fatal.
func (p *Pipeline) Run(ctx context.Context, src Source) error {
	p.core.RecordComponentStatus("rsdf-pipeline", metric.StatusRunning)
	defer p.core.RecordComponentStatus("rsdf-pipeline", metric.StatusStopped)

	for {
		rec, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			}
			p.core.RecordComponentStatus("rsdf-pipeline", metric.StatusFailed)
			return errors.WrapFatal(err, "Pipeline", "Run", "read source")
		}
		p.metrics.record()
		if p.duplicate(rec) {
			p.metrics.duplicate()
			p.logger.Debug("dropping retransmitted frame", "raw_frame_id", rec.ID, "station", rec.StationName)
			continue
		}
		if err := p.Process(ctx, rec); err != nil {
			p.logger.Warn("skipping raw frame", "raw_frame_id", rec.ID, "station", rec.StationName, "error", err)
			p.core.RecordError("rsdf-pipeline", errors.Classify(err).String())
		}
	}
}

// Process handles one record. Parse failures are returned without
// publishing anything. Publish failures are logged per message and the
// remaining messages are still attempted; the first such error is returned.
func (p *Pipeline) Process(ctx context.Context, rec RawStationDataFrame) error {
	began := time.Now()
	extract, err := p.parser.Parse(ctx, rec)
	p.metrics.parsed(time.Since(began).Seconds(), err)
	if err != nil {
		return errors.Wrap(err, "Pipeline", "Process", "parse")
	}

	var first error
	note := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	data, err := marshal(extract, "Process")
	if err != nil {
		return err
	}
	note(p.publish(ctx, p.cfg.ExtractSubject, data, "extract_id", extract.ID))

	for _, issue := range extract.Issues() {
		data, err := marshal(issue, "Process")
		if err != nil {
			note(err)
			continue
		}
		if err := p.publish(ctx, p.cfg.IssueSubject, data, "extract_id", extract.ID); err != nil {
			note(err)
			continue
		}
		p.metrics.issuePublished()
	}

	p.logger.Debug("processed raw frame",
		"raw_frame_id", rec.ID,
		"issues", extract.IssueCount(),
		"elapsed", time.Since(began))
	return first
}

// duplicate reports whether an identical frame from the same station was
// seen recently, and remembers rec otherwise.
func (p *Pipeline) duplicate(rec RawStationDataFrame) bool {
	if p.seen == nil {
		return false
	}
	key := fmt.Sprintf("%s|%d|%016x", rec.StationName, rec.PayloadStart.UnixNano(), crc64.Checksum(rec.RawPayload, crcTable))
	return !p.seen.Add(key, struct{}{})
}

func (p *Pipeline) publish(ctx context.Context, subject string, data []byte, attrs ...any) error {
	err := retry.Do(ctx, p.cfg.Retry, func() error {
		return p.publisher.Publish(ctx, subject, data)
	})
	if err != nil {
		p.metrics.publishFailed(subject)
		p.logger.Error("publish failed", append([]any{"subject", subject, "error", err}, attrs...)...)
	}
	return err
}
