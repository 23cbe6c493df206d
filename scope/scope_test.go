package scope

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTrace struct {
	pending atomic.Int32
}

func (t *testTrace) RegisterContinuation(c *Continuation) { t.pending.Add(1) }
func (t *testTrace) CancelContinuation(c *Continuation)   { t.pending.Add(-1) }

type testSpan struct {
	name     string
	trace    *testTrace
	finished atomic.Int32
}

func (s *testSpan) Finish()                    { s.finished.Add(1) }
func (s *testSpan) PendingTrace() PendingTrace { return s.trace }

func newTestSpan(name string) *testSpan {
	return &testSpan{name: name, trace: &testTrace{}}
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) listener() Listener {
	return ListenerFuncs{
		Activated: func(s Scope) { r.add("activated:" + s.Span().(*testSpan).name) },
		Closed:    func(s Scope) { r.add("closed:" + s.Span().(*testSpan).name) },
	}
}

func newTestManager(limit int) (*Manager, context.Context) {
	return NewManager(Options{DepthLimit: limit}, nil, nil), NewExecutionContext(context.Background())
}

func TestScopeNesting(t *testing.T) {

	m, ctx := newTestManager(DefaultDepthLimit)
	assert.Nil(t, m.Active(ctx))

	var scopes []Scope
	for _, n := range []string{"a", "b", "c"} {
		s := m.Activate(ctx, newTestSpan(n), true)
		assert.Equal(t, len(scopes), s.Depth())
		scopes = append(scopes, s)
		assert.Equal(t, s, m.Active(ctx))
	}

	for i := len(scopes) - 1; i >= 0; i-- {
		scopes[i].Close()
		if i > 0 {
			assert.Equal(t, scopes[i-1], m.Active(ctx))
		}
		assert.Equal(t, int32(1), scopes[i].Span().(*testSpan).finished.Load())
	}
	assert.Nil(t, m.Active(ctx))
	assert.Nil(t, m.ActiveSpan(ctx))
}

func TestScopeCloseIdempotent(t *testing.T) {

	m, ctx := newTestManager(0)
	span := newTestSpan("a")
	s := m.Activate(ctx, span, true)
	s.Close()
	s.Close()
	assert.Equal(t, int32(1), span.finished.Load())
	assert.Nil(t, m.Active(ctx))
}

func TestScopeOutOfOrderClose(t *testing.T) {

	m, ctx := newTestManager(0)
	r := &recorder{}
	m.AddListener(r.listener())

	a := m.Activate(ctx, newTestSpan("a"), false)
	b := m.Activate(ctx, newTestSpan("b"), true)
	c := m.Activate(ctx, newTestSpan("c"), false)

	b.Close()
	assert.Equal(t, c, m.Active(ctx))
	assert.Equal(t, int32(1), b.Span().(*testSpan).finished.Load())

	c.Close()
	assert.Equal(t, a, m.Active(ctx))

	d := m.Activate(ctx, newTestSpan("d"), false)
	assert.Equal(t, 1, d.Depth())
	d.Close()
	a.Close()
	assert.Nil(t, m.Active(ctx))

	assert.Equal(t, []string{
		"activated:a", "activated:b", "activated:c",
		"closed:b",
		"closed:c", "activated:a",
		"activated:d", "closed:d", "activated:a",
		"closed:a",
	}, r.events)
}

func TestScopeDepthLimit(t *testing.T) {

	m, ctx := newTestManager(3)
	var scopes []Scope
	for i := 0; i < 3; i++ {
		scopes = append(scopes, m.Activate(ctx, newTestSpan("s"), false))
	}
	top := m.Active(ctx)

	over := m.Activate(ctx, newTestSpan("over"), true)
	assert.True(t, IsNoop(over))
	assert.Equal(t, top, m.Active(ctx))

	over.Close()
	assert.Equal(t, top, m.Active(ctx))

	for i := len(scopes) - 1; i >= 0; i-- {
		scopes[i].Close()
	}
	assert.Nil(t, m.Active(ctx))
	assert.False(t, IsNoop(m.Activate(ctx, newTestSpan("again"), false)))
}

func TestScopeWithoutExecution(t *testing.T) {

	m := NewManager(Options{}, nil, nil)
	s := m.Activate(context.Background(), newTestSpan("a"), false)
	assert.True(t, IsNoop(s))
	assert.Nil(t, m.Active(context.Background()))
	assert.Nil(t, m.Capture(context.Background()))
}

func TestScopeContextPrecedence(t *testing.T) {

	type loopKey struct{}
	m, ctx := newTestManager(0)
	keyed := NewKeyedScopeContext("loop", func(ctx context.Context) (interface{}, bool) {
		v := ctx.Value(loopKey{})
		return v, v != nil
	})
	m.AddScopeContext(keyed)
	assert.Equal(t, []string{"loop", "context"}, m.ScopeContexts())

	loopCtx := context.WithValue(ctx, loopKey{}, 1)
	s := m.Activate(loopCtx, newTestSpan("loop"), false)

	// the keyed context wins over the execution carried by ctx
	assert.Nil(t, m.Active(ctx))
	assert.Equal(t, s, m.Active(context.WithValue(context.Background(), loopKey{}, 1)))

	s.Close()
	keyed.Release(1)
	assert.Nil(t, m.Active(loopCtx))
}

func TestContinuationSingleUse(t *testing.T) {

	m, ctx := newTestManager(0)
	span := newTestSpan("parent")
	parent := m.Activate(ctx, span, false)

	c := m.Capture(ctx)
	require.NotNil(t, c)
	assert.Equal(t, int32(1), span.trace.pending.Load())
	parent.Close()

	other := NewExecutionContext(context.Background())
	s, err := c.Activate(other)
	require.NoError(t, err)
	assert.Equal(t, span, m.ActiveSpan(other))

	_, err = c.Activate(NewExecutionContext(context.Background()))
	assert.ErrorIs(t, err, ErrContinuationUsed)

	c.Cancel()
	assert.Equal(t, int32(1), span.trace.pending.Load())

	s.Close()
	s.Close()
	assert.Equal(t, int32(0), span.trace.pending.Load())
	assert.Equal(t, int32(0), span.finished.Load())
}

func TestContinuationCancel(t *testing.T) {

	m, ctx := newTestManager(0)
	span := newTestSpan("parent")
	m.Activate(ctx, span, false)

	c := m.Capture(ctx)
	assert.Equal(t, int32(1), span.trace.pending.Load())
	c.Cancel()
	c.Cancel()
	assert.Equal(t, int32(0), span.trace.pending.Load())

	_, err := c.Activate(NewExecutionContext(context.Background()))
	assert.ErrorIs(t, err, ErrContinuationCanceled)
}

func TestContinuationNoExecution(t *testing.T) {

	m, ctx := newTestManager(0)
	m.Activate(ctx, newTestSpan("parent"), false)
	c := m.Capture(ctx)

	s, err := c.Activate(context.Background())
	assert.ErrorIs(t, err, ErrNoExecution)
	assert.True(t, IsNoop(s))

	_, err = c.Activate(NewExecutionContext(context.Background()))
	assert.NoError(t, err)
}

func TestContinuationConcurrent(t *testing.T) {

	m, ctx := newTestManager(0)
	span := newTestSpan("parent")
	m.Activate(ctx, span, false)

	c := m.CaptureConcurrent(ctx)
	require.True(t, c.IsConcurrent())

	wg := &sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gctx := NewExecutionContext(context.Background())
			s, err := c.Activate(gctx)
			if err != nil {
				t.Error(err)
				return
			}
			if m.ActiveSpan(gctx) != span {
				t.Error("Invalid active span")
			}
			s.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), span.trace.pending.Load())
	c.Cancel()
	assert.Equal(t, int32(0), span.trace.pending.Load())
}

func TestContinuationConcurrentOutlivesCancel(t *testing.T) {

	m, ctx := newTestManager(0)
	span := newTestSpan("parent")
	m.Activate(ctx, span, false)

	c := m.CaptureConcurrent(ctx)
	s, err := c.Activate(NewExecutionContext(context.Background()))
	require.NoError(t, err)

	c.Cancel()
	assert.Equal(t, int32(1), span.trace.pending.Load())
	s.Close()
	assert.Equal(t, int32(0), span.trace.pending.Load())
}

func TestListenerRegistrationDuringNotification(t *testing.T) {

	m, ctx := newTestManager(0)
	var added atomic.Int32
	m.AddListener(ListenerFuncs{Activated: func(s Scope) {
		if added.Add(1) < 10 {
			m.AddListener(ListenerFuncs{})
		}
	}})

	wg := &sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gctx := NewExecutionContext(ctx)
			for j := 0; j < 50; j++ {
				m.Activate(gctx, newTestSpan("x"), false).Close()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(8*50), added.Load())
}
