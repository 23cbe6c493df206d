package scope

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	ErrContinuationUsed     = errors.New("continuation already activated")
	ErrContinuationCanceled = errors.New("continuation canceled")
	ErrNoExecution          = errors.New("no execution in context")
)

const (
	continuationPending int32 = iota
	continuationUsed
	continuationCanceled
)

// Continuation hands an in-flight trace over to another execution.
// The single use variant is consumed by its first activation. The concurrent
// variant counts references: one for the capture and one per open scope.
type Continuation struct {
	manager    *Manager
	span       Span
	trace      PendingTrace
	concurrent bool
	state      atomic.Int32
	refs       atomic.Int32
	released   atomic.Bool
}

func (c *Continuation) Span() Span {
	return c.span
}

func (c *Continuation) IsConcurrent() bool {
	return c.concurrent
}

func (c *Continuation) acquire() error {

	if !c.concurrent {
		if c.state.CompareAndSwap(continuationPending, continuationUsed) {
			return nil
		}
		if c.state.Load() == continuationCanceled {
			return ErrContinuationCanceled
		}
		return ErrContinuationUsed
	}

	if c.state.Load() == continuationCanceled {
		return ErrContinuationCanceled
	}
	for {
		r := c.refs.Load()
		if r <= 0 {
			return ErrContinuationCanceled
		}
		if c.refs.CompareAndSwap(r, r+1) {
			return nil
		}
	}
}

// Activate opens a scope of the captured span in the execution of ctx.
// Closing that scope releases the continuation.
func (c *Continuation) Activate(ctx context.Context) (Scope, error) {

	e, ok := c.manager.execution(ctx)
	if !ok {
		return NoopScope, ErrNoExecution
	}

	if err := c.acquire(); err != nil {
		c.manager.logger.Error("Continuation activation failed: %v", err)
		return NoopScope, err
	}
	return c.manager.push(e, c.span, false, c), nil
}

// Cancel gives up the capture reference, it is safe to call more than once.
// Canceling an activated single use continuation does nothing, its scope releases it.
func (c *Continuation) Cancel() {

	if c.state.CompareAndSwap(continuationPending, continuationCanceled) {
		c.manager.canceled.Inc()
		c.release()
	}
}

func (c *Continuation) release() {

	if c.concurrent && c.refs.Add(-1) > 0 {
		return
	}
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	if c.trace != nil {
		c.trace.CancelContinuation(c)
	}
}

func newContinuation(m *Manager, span Span, concurrent bool) *Continuation {

	c := &Continuation{
		manager:    m,
		span:       span,
		trace:      span.PendingTrace(),
		concurrent: concurrent,
	}
	c.refs.Store(1)
	if c.trace != nil {
		c.trace.RegisterContinuation(c)
	}
	return c
}
