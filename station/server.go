package station

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/seisnet/cd11streams/dispatch"
	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/metric"
)

// ServerConfig configures the TCP listener.
type ServerConfig struct {
	Address    string
	Connection ConnectionConfig
	// TLS wraps the listener when set.
	TLS *tls.Config
}

// SessionFactory builds the dispatcher for a newly accepted connection.
// Returning an error rejects the connection.
type SessionFactory func(ctx context.Context, conn *Connection) (*dispatch.Dispatcher, error)

// ServerDeps holds runtime dependencies.
type ServerDeps struct {
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Server accepts station connections and serves each on its own goroutine.
type Server struct {
	cfg     ServerConfig
	factory SessionFactory
	logger  *slog.Logger
	metrics *Metrics

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Connection]struct{}
	cancel   context.CancelFunc
	nextID   atomic.Uint64
	running  atomic.Bool
}

// NewServer validates cfg and creates a Server.
func NewServer(cfg ServerConfig, factory SessionFactory, deps ServerDeps) (*Server, error) {
	if cfg.Address == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Server", "NewServer", "listen address")
	}
	if factory == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil session factory"), "Server", "NewServer", "session factory")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		factory:  factory,
		logger:   logger.With("component", "station-server"),
		metrics:  NewMetrics(deps.MetricsRegistry),
		sessions: make(map[*Connection]struct{}),
	}, nil
}

// Listen binds the listener. Serve calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Listen", "listen on "+s.cfg.Address)
	}
	if s.cfg.TLS != nil {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or Stop is called, then
// closes every session and waits for them. A failing session never stops
// the server; only a listener failure is returned.
func (s *Server) Serve(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Serve", "start server")
	}
	defer s.running.Store(false)

	if err := s.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	ln := s.listener
	s.mu.Unlock()
	defer cancel()

	s.logger.Info("accepting station connections", "address", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		s.closeSessions()
		return nil
	})
	g.Go(func() error {
		for {
			nc, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
					return nil
				}
				return errors.WrapFatal(err, "Server", "Serve", "accept connection")
			}
			g.Go(func() error {
				s.serveSession(gctx, nc)
				return nil
			})
		}
	})

	err := g.Wait()

	s.mu.Lock()
	s.listener = nil
	s.cancel = nil
	s.mu.Unlock()
	return err
}

// Stop makes Serve return. It is safe to call when not running.
func (s *Server) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Server) serveSession(ctx context.Context, nc net.Conn) {
	id := fmt.Sprintf("%s#%d", nc.RemoteAddr(), s.nextID.Add(1))
	conn := NewConnection(id, nc, s.cfg.Connection, ConnectionDeps{Logger: s.logger, Metrics: s.metrics})

	s.track(conn, true)
	s.metrics.sessionOpened()
	defer func() {
		if err := conn.Close(); err != nil {
			conn.Logger().Warn("close failed", "error", err)
		}
		s.track(conn, false)
		s.metrics.sessionClosed()
	}()

	d, err := s.factory(ctx, conn)
	if err != nil {
		conn.Logger().Warn("session rejected", "error", err)
		return
	}

	conn.Logger().Info("session started")
	if err := conn.Serve(ctx, d); err != nil {
		conn.Logger().Warn("session ended", "error", err, "class", errors.Classify(err).String())
		return
	}
	conn.Logger().Info("session ended")
}

func (s *Server) track(c *Connection, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.sessions[c] = struct{}{}
	} else {
		delete(s.sessions, c)
	}
}

// Sessions returns the number of open sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.sessions))
	for c := range s.sessions {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}
