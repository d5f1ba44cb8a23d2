package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seisnet/cd11streams/cd11"
	"github.com/seisnet/cd11streams/errors"
)

// Handler processes one frame of the type it was registered for.
type Handler func(ctx context.Context, f *cd11.Frame) *Completion

// MalformedHandler processes one frame that failed to decode.
type MalformedHandler func(ctx context.Context, m *cd11.MalformedFrame) *Completion

// Builder collects handlers. The last registration for a key wins.
type Builder struct {
	handlers  map[cd11.FrameType]Handler
	malformed MalformedHandler
	logger    *slog.Logger
	errs      []error
}

// NewBuilder starts an empty registry.
func NewBuilder() *Builder {
	return &Builder{handlers: make(map[cd11.FrameType]Handler)}
}

// WithLogger sets the logger used by the default handlers.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Register sets the handler for frame type t.
func (b *Builder) Register(t cd11.FrameType, h Handler) *Builder {
	switch {
	case !t.Valid():
		b.errs = append(b.errs, fmt.Errorf("register %s: %w", t, cd11.ErrUnknownFrameType))
	case h == nil:
		b.errs = append(b.errs, fmt.Errorf("register %s: nil handler", t))
	default:
		b.handlers[t] = h
	}
	return b
}

// RegisterFunc registers a synchronous callback. Each call runs on its own
// goroutine so Dispatch does not wait for it.
func (b *Builder) RegisterFunc(t cd11.FrameType, fn func(context.Context, *cd11.Frame) error) *Builder {
	if fn == nil {
		return b.Register(t, nil)
	}
	return b.Register(t, func(ctx context.Context, f *cd11.Frame) *Completion {
		return Go(ctx, func(ctx context.Context) error { return fn(ctx, f) })
	})
}

// RegisterMalformed sets the handler for frames that failed to decode.
func (b *Builder) RegisterMalformed(h MalformedHandler) *Builder {
	if h == nil {
		b.errs = append(b.errs, fmt.Errorf("register malformed: nil handler"))
		return b
	}
	b.malformed = h
	return b
}

// RegisterMalformedFunc is the synchronous form of RegisterMalformed.
func (b *Builder) RegisterMalformedFunc(fn func(context.Context, *cd11.MalformedFrame) error) *Builder {
	if fn == nil {
		return b.RegisterMalformed(nil)
	}
	return b.RegisterMalformed(func(ctx context.Context, m *cd11.MalformedFrame) *Completion {
		return Go(ctx, func(ctx context.Context) error { return fn(ctx, m) })
	})
}

// Build freezes the registry. It fails if any registration was invalid.
func (b *Builder) Build() (*Dispatcher, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, errors.WrapInvalid(err, "Builder", "Build", "build dispatcher")
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	handlers := make(map[cd11.FrameType]Handler, len(b.handlers))
	for t, h := range b.handlers {
		handlers[t] = h
	}
	return &Dispatcher{
		handlers:  handlers,
		malformed: b.malformed,
		logger:    logger.With("component", "dispatch"),
	}, nil
}

// Dispatcher routes each decoded unit to exactly one handler.
type Dispatcher struct {
	handlers  map[cd11.FrameType]Handler
	malformed MalformedHandler
	logger    *slog.Logger
}

// Handles reports whether a handler is registered for t.
func (d *Dispatcher) Handles(t cd11.FrameType) bool {
	_, ok := d.handlers[t]
	return ok
}

// Dispatch invokes the handler for r and returns its Completion without
// waiting on it. Unregistered frame types and malformed frames without a
// handler are logged at debug level and complete immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, r cd11.FrameOrMalformed) *Completion {
	var c *Completion
	switch r.Kind() {
	case cd11.KindFrame:
		f := r.Frame()
		if h, ok := d.handlers[f.Type()]; ok {
			c = h(ctx, f)
		} else {
			d.logger.DebugContext(ctx, "no handler for frame type",
				"frame_type", f.Type().String(), "sequence", f.Header.SequenceNumber)
			return Completed(nil)
		}
	case cd11.KindMalformed:
		m := r.Malformed()
		if d.malformed != nil {
			c = d.malformed(ctx, m)
		} else {
			d.logger.DebugContext(ctx, "dropping malformed frame", "bytes", len(m.Raw), "cause", m.Cause)
			return Completed(nil)
		}
	default:
		return Completed(fmt.Errorf("dispatch: %w: empty decode result", errors.ErrInvalidData))
	}
	if c == nil {
		return Completed(nil)
	}
	return c
}
