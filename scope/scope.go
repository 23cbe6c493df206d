package scope

import "sync/atomic"

// Span is the part of a span the scope engine needs.
type Span interface {
	Finish()
	PendingTrace() PendingTrace
}

// PendingTrace tracks outstanding continuations of a trace.
type PendingTrace interface {
	RegisterContinuation(c *Continuation)
	CancelContinuation(c *Continuation)
}

type Scope interface {
	Span() Span
	// Depth is 0 for the root scope of an execution.
	Depth() int
	FinishOnClose() bool
	// Close is idempotent.
	Close()
}

type noopScope struct{}

func (noopScope) Span() Span          { return nil }
func (noopScope) Depth() int          { return -1 }
func (noopScope) FinishOnClose() bool { return false }
func (noopScope) Close()              {}

var NoopScope Scope = noopScope{}

func IsNoop(s Scope) bool {
	_, ok := s.(noopScope)
	return ok || s == nil
}

type scope struct {
	manager       *Manager
	execution     *Execution
	span          Span
	finishOnClose bool
	depth         int
	continuation  *Continuation
	closed        atomic.Bool
}

func (s *scope) Span() Span {
	return s.span
}

func (s *scope) Depth() int {
	return s.depth
}

func (s *scope) FinishOnClose() bool {
	return s.finishOnClose
}

func (s *scope) Close() {

	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	e := s.execution
	onTop := e.top() == s
	if onTop {
		e.pop()
		// scopes closed out of order wait under the top until it goes
		for t := e.top(); t != nil && t.closed.Load(); t = e.top() {
			e.pop()
		}
	}

	if s.finishOnClose {
		s.span.Finish()
	}
	if s.continuation != nil {
		s.continuation.release()
	}

	s.manager.afterClosed(s)
	if onTop {
		if restored := e.top(); restored != nil {
			s.manager.afterActivated(restored)
		}
	}
}
