// Package dispatch routes decoded CD-1.1 units to per frame type handlers.
//
// A Dispatcher is assembled once with a Builder and is immutable afterwards,
// so one instance may serve a connection without locking. Handlers report
// their outcome through a Completion that the dispatcher hands back to the
// caller untouched.
package dispatch

import (
	"context"
	"fmt"
)

// Completion is the eventual outcome of a handler invocation.
type Completion struct {
	done chan struct{}
	err  error
}

// Completed returns a Completion that is already done with err.
func Completed(err error) *Completion {
	c := &Completion{done: make(chan struct{}), err: err}
	close(c.done)
	return c
}

// Go runs fn on a new goroutine and returns its Completion. A panic in fn
// completes the Completion with an error instead of crashing the process.
func Go(ctx context.Context, fn func(context.Context) error) *Completion {
	c := &Completion{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		defer func() {
			if p := recover(); p != nil {
				c.err = fmt.Errorf("dispatch: handler panic: %v", p)
			}
		}()
		c.err = fn(ctx)
	}()
	return c
}

// Done is closed when the handler has finished.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Err returns the handler's error once Done is closed, and nil before.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the handler finishes or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
