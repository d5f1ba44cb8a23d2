// Package station runs CD-1.1 sessions with stations over TCP.
package station

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seisnet/cd11streams/cd11"
	"github.com/seisnet/cd11streams/dispatch"
	"github.com/seisnet/cd11streams/errors"
)

// Transport is the byte stream under a Connection. net.Conn satisfies it;
// when the transport also has deadlines, idle and send timeouts apply.
type Transport interface {
	io.ReadWriteCloser
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// State is the lifecycle state of a Connection.
type State int32

// Connection states.
const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionConfig tunes a Connection. Zero values select defaults.
type ConnectionConfig struct {
	MaxFrameSize int
	VerifyCRC    bool
	// IdleTimeout closes the receive stream when no frame arrives in time.
	IdleTimeout time.Duration
}

// ConnectionDeps holds runtime dependencies.
type ConnectionDeps struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

// Connection is one station session. It is safe for concurrent use.
type Connection struct {
	id        string
	transport Transport
	decoder   *cd11.Decoder
	frames    *cd11.FrameReader
	cfg       ConnectionConfig
	logger    *slog.Logger
	metrics   *Metrics

	writeMu sync.Mutex
	state   atomic.Int32
	done    chan struct{}

	receiving atomic.Bool
	errMu     sync.Mutex
	err       error
}

// NewConnection wraps transport. id names the session in logs.
func NewConnection(id string, transport Transport, cfg ConnectionConfig, deps ConnectionDeps) *Connection {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		id:        id,
		transport: transport,
		decoder:   cd11.NewDecoder(cd11.WithCRCVerification(cfg.VerifyCRC)),
		frames:    cd11.NewFrameReader(transport, cfg.MaxFrameSize),
		cfg:       cfg,
		logger:    logger.With("component", "station", "session", id),
		metrics:   deps.Metrics,
		done:      make(chan struct{}),
	}
}

// ID returns the session id.
func (c *Connection) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Logger returns the session logger.
func (c *Connection) Logger() *slog.Logger { return c.logger }

// Send encodes f and writes it. It returns once the transport accepted the
// bytes; there is no wait for the peer.
func (c *Connection) Send(ctx context.Context, f *cd11.Frame) error {
	if c.State() != StateOpen {
		return errors.WrapInvalid(errors.ErrConnectionClosed, "Connection", "Send", "check state")
	}
	raw, err := cd11.Encode(f)
	if err != nil {
		return errors.WrapInvalid(err, "Connection", "Send", "encode frame")
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "Connection", "Send", "write frame")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if wd, ok := c.transport.(writeDeadliner); ok {
		deadline, _ := ctx.Deadline()
		_ = wd.SetWriteDeadline(deadline)
	}
	if _, err := c.transport.Write(raw); err != nil {
		if c.State() != StateOpen {
			return errors.WrapInvalid(errors.ErrConnectionClosed, "Connection", "Send", "write frame")
		}
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err), "Connection", "Send", "write frame")
	}
	c.metrics.frameSent(f.Type(), len(raw))
	return nil
}

// Receive starts the inbound stream. Every frame sized chunk read from the
// transport yields one element in arrival order; chunks that fail to decode
// arrive as malformed elements. The channel is closed when the transport
// fails, after which Err reports why, or when the connection is closed.
// Receive may be called once.
func (c *Connection) Receive(ctx context.Context) (<-chan cd11.FrameOrMalformed, error) {
	if c.State() != StateOpen {
		return nil, errors.WrapInvalid(errors.ErrConnectionClosed, "Connection", "Receive", "check state")
	}
	if !c.receiving.CompareAndSwap(false, true) {
		return nil, errors.WrapInvalid(errors.ErrAlreadyReceiving, "Connection", "Receive", "start stream")
	}

	out := make(chan cd11.FrameOrMalformed)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	}()
	go c.receiveLoop(out)
	return out, nil
}

func (c *Connection) receiveLoop(out chan<- cd11.FrameOrMalformed) {
	defer close(out)

	rd, hasDeadline := c.transport.(readDeadliner)
	for {
		if hasDeadline && c.cfg.IdleTimeout > 0 {
			_ = rd.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		}
		raw, err := c.frames.Next()
		if err != nil {
			c.fail(err)
			return
		}

		res := c.decoder.Decode(raw)
		c.metrics.frameReceived(res, len(raw))

		select {
		case out <- res:
		case <-c.done:
			return
		}
	}
}

// fail records a transport failure unless the connection was closed locally.
func (c *Connection) fail(err error) {
	if c.State() != StateOpen {
		return
	}
	var netErr net.Error
	switch {
	case stderrors.Is(err, io.EOF):
		err = errors.WrapTransient(fmt.Errorf("%w: peer closed the stream", errors.ErrConnectionLost), "Connection", "Receive", "read frame")
	case stderrors.As(err, &netErr) && netErr.Timeout():
		err = errors.WrapTransient(fmt.Errorf("%w: idle for %v", errors.ErrConnectionTimeout, c.cfg.IdleTimeout), "Connection", "Receive", "read frame")
	case stderrors.Is(err, errors.ErrFrameSync), stderrors.Is(err, io.ErrUnexpectedEOF):
		err = errors.WrapFatal(err, "Connection", "Receive", "read frame")
	default:
		err = errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err), "Connection", "Receive", "read frame")
	}

	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
	c.logger.Warn("receive stream terminated", "error", err)
}

// Err returns the transport failure that ended the receive stream, or nil
// if the stream is still running or ended because of Close.
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close shuts the session down. Concurrent and repeated calls are safe:
// exactly one caller moves the connection from open to closing and closes
// the transport. If that fails the connection returns to open and the error
// is returned, so a later Close can try again. Other callers return nil.
func (c *Connection) Close() error {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		return nil
	}
	if err := c.transport.Close(); err != nil {
		c.state.Store(int32(StateOpen))
		return errors.WrapTransient(err, "Connection", "Close", "close transport")
	}
	close(c.done)
	c.state.Store(int32(StateClosed))
	c.logger.Info("connection closed")
	return nil
}

// Serve dispatches the receive stream, waiting for each handler to finish
// before the next element so handling keeps arrival order. Handler failures
// are logged. Serve returns nil after a local Close or cancellation of ctx,
// and the transport failure otherwise.
func (c *Connection) Serve(ctx context.Context, d *dispatch.Dispatcher) error {
	stream, err := c.Receive(ctx)
	if err != nil {
		return err
	}
	for res := range stream {
		if err := d.Dispatch(ctx, res).Wait(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Warn("handler failed", "kind", res.Kind().String(), "error", err)
		}
	}
	return c.Err()
}
