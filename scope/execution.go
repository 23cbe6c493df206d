package scope

import (
	"context"
	"sync"
)

type executionKey struct{}

// Execution holds the scope stack of one logical execution context.
// An Execution must not be shared between goroutines.
type Execution struct {
	stack []*scope
}

func (e *Execution) top() *scope {

	if len(e.stack) == 0 {
		return nil
	}
	return e.stack[len(e.stack)-1]
}

func (e *Execution) push(s *scope) {
	e.stack = append(e.stack, s)
}

func (e *Execution) pop() {

	n := len(e.stack)
	if n == 0 {
		return
	}
	e.stack[n-1] = nil
	e.stack = e.stack[:n-1]
}

func (e *Execution) Depth() int {
	return len(e.stack)
}

func NewExecution() *Execution {
	return &Execution{}
}

func WithExecution(ctx context.Context, e *Execution) context.Context {
	return context.WithValue(ctx, executionKey{}, e)
}

// NewExecutionContext attaches a fresh, empty Execution to ctx.
func NewExecutionContext(ctx context.Context) context.Context {
	return WithExecution(ctx, NewExecution())
}

func ExecutionFromContext(ctx context.Context) (*Execution, bool) {

	if ctx == nil {
		return nil, false
	}
	e, ok := ctx.Value(executionKey{}).(*Execution)
	return e, ok && e != nil
}

// ScopeContext is an activation strategy that resolves the Execution for ctx.
type ScopeContext interface {
	Name() string
	Execution(ctx context.Context) (*Execution, bool)
}

type contextScopeContext struct{}

func (contextScopeContext) Name() string {
	return "context"
}

func (contextScopeContext) Execution(ctx context.Context) (*Execution, bool) {
	return ExecutionFromContext(ctx)
}

// KeyedScopeContext keeps one Execution per key, e.g. an event loop id carried in ctx.
type KeyedScopeContext struct {
	name       string
	key        func(ctx context.Context) (interface{}, bool)
	executions sync.Map
}

func (k *KeyedScopeContext) Name() string {
	return k.name
}

func (k *KeyedScopeContext) Execution(ctx context.Context) (*Execution, bool) {

	key, ok := k.key(ctx)
	if !ok {
		return nil, false
	}
	e, _ := k.executions.LoadOrStore(key, NewExecution())
	return e.(*Execution), true
}

// Release drops the Execution of key once its loop is gone.
func (k *KeyedScopeContext) Release(key interface{}) {
	k.executions.Delete(key)
}

func NewKeyedScopeContext(name string, key func(ctx context.Context) (interface{}, bool)) *KeyedScopeContext {

	return &KeyedScopeContext{
		name: name,
		key:  key,
	}
}
