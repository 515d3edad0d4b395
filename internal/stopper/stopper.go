// Package stopper provides a small cooperative-cancellation context,
// grounded on the ctx.Stopping() / ctx.Go(...) idiom used throughout
// the retrieved cdc-sink source (internal/util/stdpool, internal/source
// /logical): a context.Context augmented with a Stopping() channel that
// closes when a graceful shutdown has been requested, a hard Done()
// that closes when the grace period elapses, and a Go helper that
// tracks goroutines so Stop can wait for them to exit.
package stopper

import (
	"context"
	"sync"
	"time"
)

// Context augments context.Context with graceful-shutdown semantics:
// Stopping() fires immediately on Stop, Done() fires once every
// goroutine started via Go has returned or the grace period elapses,
// whichever comes first.
type Context struct {
	context.Context
	cancel context.CancelFunc

	stopping chan struct{}
	stopOnce sync.Once

	wg sync.WaitGroup
}

// WithContext wraps parent in a new stopper.Context.
func WithContext(parent context.Context) *Context {
	ctx, cancel := context.WithCancel(parent)
	return &Context{
		Context:  ctx,
		cancel:   cancel,
		stopping: make(chan struct{}),
	}
}

// Stopping returns a channel that is closed once Stop has been called.
// Long-running loops should select on this to begin winding down.
func (c *Context) Stopping() <-chan struct{} {
	return c.stopping
}

// Go runs fn in a new goroutine tracked by the Context's WaitGroup.
func (c *Context) Go(fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = fn()
	}()
}

// Stop requests a graceful shutdown: Stopping() closes immediately,
// and the underlying context is canceled (hard-stopping any blocking
// call) after grace elapses or all tracked goroutines exit, whichever
// is first.
func (c *Context) Stop(grace time.Duration) {
	c.stopOnce.Do(func() { close(c.stopping) })

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
	}
	c.cancel()
}
