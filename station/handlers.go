package station

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/seisnet/cd11streams/cd11"
	"github.com/seisnet/cd11streams/dispatch"
	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/rsdf"
)

// SessionConfig configures the handlers installed on every session.
type SessionConfig struct {
	// Name is the local frame creator, at most 8 characters.
	Name string
	// ConsumerAddr is announced in connection responses as the data
	// consumer endpoint.
	ConsumerAddr netip.AddrPort
	// RawSubject receives one record per inbound data frame.
	RawSubject string
	// AcknackInterval between unsolicited acknacks; zero disables them.
	AcknackInterval time.Duration
	// MalformedLogRate limits malformed frame warnings per second.
	MalformedLogRate float64
}

// NewSessionFactory returns a SessionFactory that answers connection
// requests, forwards data frames to publisher, exchanges acknacks and
// closes the session on an alert.
func NewSessionFactory(cfg SessionConfig, publisher rsdf.Publisher) (SessionFactory, error) {
	if publisher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "station", "NewSessionFactory", "publisher")
	}
	if len(cfg.Name) > cd11.CreatorLength {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: name %q longer than %d", errors.ErrInvalidConfig, cfg.Name, cd11.CreatorLength),
			"station", "NewSessionFactory", "validate name")
	}
	if cfg.RawSubject == "" {
		cfg.RawSubject = rsdf.SubjectRawFrames
	}
	if cfg.MalformedLogRate <= 0 {
		cfg.MalformedLogRate = 1
	}

	return func(ctx context.Context, conn *Connection) (*dispatch.Dispatcher, error) {
		s := &session{
			cfg:       cfg,
			conn:      conn,
			publisher: publisher,
			malformed: newMalformedLogger(conn.Logger(), cfg.MalformedLogRate),
		}
		d, err := dispatch.NewBuilder().
			WithLogger(conn.Logger()).
			RegisterFunc(cd11.ConnectionRequestType, s.onConnectionRequest).
			RegisterFunc(cd11.DataType, s.onData).
			RegisterFunc(cd11.AcknackType, s.onAcknack).
			RegisterFunc(cd11.AlertType, s.onAlert).
			RegisterMalformedFunc(s.onMalformed).
			Build()
		if err != nil {
			return nil, err
		}
		if cfg.AcknackInterval > 0 {
			go s.sendAcknacks(ctx, cfg.AcknackInterval)
		}
		return d, nil
	}, nil
}

// session holds per-connection handler state.
type session struct {
	cfg       SessionConfig
	conn      *Connection
	publisher rsdf.Publisher
	malformed *malformedLogger

	mu      sync.Mutex
	station string
	tracker *AckTracker
}

func (s *session) bind(creator string) *AckTracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		s.station = creator
		s.tracker = NewAckTracker(creator + ":" + s.cfg.Name)
	}
	return s.tracker
}

func (s *session) acks() (string, *AckTracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.station, s.tracker
}

func (s *session) onConnectionRequest(ctx context.Context, f *cd11.Frame) error {
	req := f.Payload.(*cd11.ConnectionRequest)
	s.bind(req.Name)
	s.conn.Logger().Info("connection request",
		"station", req.Name,
		"station_type", req.Type,
		"version", fmt.Sprintf("%d.%d", req.MajorVersion, req.MinorVersion))

	resp := &cd11.ConnectionResponse{ConnectionFields: cd11.ConnectionFields{
		MajorVersion: req.MajorVersion,
		MinorVersion: req.MinorVersion,
		Name:         s.cfg.Name,
		Type:         req.Type,
		ServiceType:  req.ServiceType,
		Primary:      cd11.Endpoint{Addr: s.cfg.ConsumerAddr.Addr(), Port: s.cfg.ConsumerAddr.Port()},
	}}
	return s.conn.Send(ctx, cd11.NewFrame(s.cfg.Name, req.Name, 0, resp))
}

func (s *session) onData(ctx context.Context, f *cd11.Frame) error {
	tracker := s.bind(f.Header.Creator)
	if !tracker.Observe(f.Header.SequenceNumber) {
		s.conn.Logger().Warn("ignoring invalid sequence number in acknack state",
			"sequence", f.Header.SequenceNumber)
	}

	data := f.Payload.(*cd11.DataFrame)
	raw := f.Raw
	if raw == nil {
		var err error
		if raw, err = cd11.Encode(f); err != nil {
			return errors.WrapInvalid(err, "session", "onData", "encode frame")
		}
	}
	rec := rsdf.NewRawStationDataFrame(f.Header.Creator, raw,
		data.NominalTime, data.NominalTime.Add(data.FrameTimeLength), time.Now())
	b, err := rsdf.EncodeRawFrame(rec)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, s.cfg.RawSubject, b)
}

func (s *session) onAcknack(ctx context.Context, f *cd11.Frame) error {
	in := f.Payload.(*cd11.Acknack)
	s.conn.Logger().Debug("acknack received",
		"frameset", in.Frameset,
		"lowest", in.LowestSequence,
		"highest", in.HighestSequence,
		"gaps", len(in.Gaps))
	return s.sendAcknack(ctx, f.Header.Creator)
}

func (s *session) sendAcknack(ctx context.Context, fallback string) error {
	station, tracker := s.acks()
	if tracker == nil {
		tracker = s.bind(fallback)
		station = fallback
	}
	return s.conn.Send(ctx, cd11.NewFrame(s.cfg.Name, station, 0, tracker.Acknack()))
}

func (s *session) sendAcknacks(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.conn.Done():
			return
		case <-ticker.C:
			if station, tracker := s.acks(); tracker == nil {
				continue
			} else if err := s.sendAcknack(ctx, station); err != nil {
				s.conn.Logger().Debug("periodic acknack failed", "error", err)
			}
		}
	}
}

func (s *session) onAlert(_ context.Context, f *cd11.Frame) error {
	alert := f.Payload.(*cd11.Alert)
	s.conn.Logger().Warn("alert received, closing session", "creator", f.Header.Creator, "message", alert.Message)
	return s.conn.Close()
}

func (s *session) onMalformed(_ context.Context, m *cd11.MalformedFrame) error {
	s.malformed.log(m)
	return nil
}

// malformedLogger rate limits malformed frame warnings and reports how
// many were suppressed in between.
type malformedLogger struct {
	logger     *slog.Logger
	limiter    *rate.Limiter
	mu         sync.Mutex
	suppressed int
}

func newMalformedLogger(logger *slog.Logger, perSecond float64) *malformedLogger {
	return &malformedLogger{logger: logger, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (l *malformedLogger) log(m *cd11.MalformedFrame) {
	l.mu.Lock()
	if !l.limiter.Allow() {
		l.suppressed++
		l.mu.Unlock()
		return
	}
	suppressed := l.suppressed
	l.suppressed = 0
	l.mu.Unlock()

	attrs := []any{"size", len(m.Raw), "error", m.Cause, "suppressed", suppressed}
	if h, ok := m.PartialHeader(); ok {
		attrs = append(attrs, "frame_type", h.FrameType.String(), "creator", h.Creator, "sequence", h.SequenceNumber)
	}
	l.logger.Warn("malformed frame", attrs...)
}
