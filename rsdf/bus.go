package rsdf

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/natsclient"
)

// Default bus subjects.
const (
	SubjectRawFrames = "cd11.rsdf.raw"
	SubjectExtracts  = "cd11.soh.extract"
	SubjectIssues    = "cd11.soh.issue"
)

// Publisher sends a message to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, subject string, data []byte) error

// Publish implements Publisher.
func (fn PublisherFunc) Publish(ctx context.Context, subject string, data []byte) error {
	return fn(ctx, subject, data)
}

// Source yields raw frames in arrival order. Next returns io.EOF once the
// source is exhausted.
type Source interface {
	Next(ctx context.Context) (RawStationDataFrame, error)
}

// SliceSource yields a fixed list of frames.
type SliceSource struct {
	frames []RawStationDataFrame
}

// NewSliceSource creates a source over frames.
func NewSliceSource(frames ...RawStationDataFrame) *SliceSource {
	return &SliceSource{frames: frames}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (RawStationDataFrame, error) {
	if err := ctx.Err(); err != nil {
		return RawStationDataFrame{}, err
	}
	if len(s.frames) == 0 {
		return RawStationDataFrame{}, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

// NATSSourceConfig configures a JetStream backed source.
type NATSSourceConfig struct {
	Stream  string
	Durable string
	Subject string
	// FetchWait bounds each pull so cancellation is noticed.
	FetchWait time.Duration
}

// NATSSource reads raw frames from a durable JetStream consumer. Messages
// are acknowledged once decoded; records that fail to decode are terminated
// and skipped.
type NATSSource struct {
	consumer jetstream.Consumer
	wait     time.Duration
	logger   *slog.Logger
}

// NewNATSSource binds a durable consumer, creating the stream if needed.
func NewNATSSource(ctx context.Context, client *natsclient.Client, cfg NATSSourceConfig, logger *slog.Logger) (*NATSSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Stream == "" || cfg.Durable == "" || cfg.Subject == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "NATSSource", "NewNATSSource", "validate config")
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = time.Second
	}
	if _, err := client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
	}); err != nil {
		return nil, err
	}
	consumer, err := client.Consumer(ctx, cfg.Stream, cfg.Durable, cfg.Subject)
	if err != nil {
		return nil, err
	}
	return &NATSSource{
		consumer: consumer,
		wait:     cfg.FetchWait,
		logger:   logger.With("component", "rsdf-source", "stream", cfg.Stream),
	}, nil
}

// Next implements Source. It blocks until a record arrives or ctx ends.
func (s *NATSSource) Next(ctx context.Context) (RawStationDataFrame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return RawStationDataFrame{}, err
		}
		msg, err := s.consumer.Next(jetstream.FetchMaxWait(s.wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, jetstream.ErrNoMessages) {
				continue
			}
			return RawStationDataFrame{}, errors.WrapTransient(err, "NATSSource", "Next", "fetch message")
		}

		f, err := DecodeRawFrame(msg.Data())
		if err != nil {
			s.logger.Warn("dropping undecodable raw frame record", "error", err, "size", len(msg.Data()))
			if termErr := msg.Term(); termErr != nil {
				s.logger.Debug("term failed", "error", termErr)
			}
			continue
		}
		if err := msg.Ack(); err != nil {
			s.logger.Debug("ack failed", "error", err, "raw_frame_id", f.ID)
		}
		return f, nil
	}
}
