package scope

import (
	"context"
	"sync/atomic"

	"github.com/devopsext/tracecore/common"
)

const DefaultDepthLimit = 100

type Options struct {
	// DepthLimit bounds nested activations per execution, 0 means unlimited.
	DepthLimit int
}

type Manager struct {
	options       Options
	logger        common.Logger
	contexts      atomic.Pointer[[]ScopeContext]
	listeners     atomic.Pointer[[]Listener]
	depthExceeded common.Counter
	canceled      common.Counter
}

func prepend[T any](p *atomic.Pointer[[]T], v T) {

	for {
		old := p.Load()
		var items []T
		items = append(items, v)
		if old != nil {
			items = append(items, *old...)
		}
		if p.CompareAndSwap(old, &items) {
			return
		}
	}
}

func appendItem[T any](p *atomic.Pointer[[]T], v T) {

	for {
		old := p.Load()
		var items []T
		if old != nil {
			items = append(items, *old...)
		}
		items = append(items, v)
		if p.CompareAndSwap(old, &items) {
			return
		}
	}
}

func snapshot[T any](p *atomic.Pointer[[]T]) []T {

	items := p.Load()
	if items == nil {
		return nil
	}
	return *items
}

// AddScopeContext registers an activation strategy. The most recently added
// strategy is asked first and the first one reporting an Execution wins.
func (m *Manager) AddScopeContext(sc ScopeContext) {

	if sc == nil {
		return
	}
	prepend(&m.contexts, sc)
	m.logger.Debug("Scope context %s added", sc.Name())
}

func (m *Manager) ScopeContexts() []string {

	var names []string
	for _, sc := range snapshot(&m.contexts) {
		names = append(names, sc.Name())
	}
	return names
}

// AddListener may race with notifications, a listener added mid-notification can miss it.
func (m *Manager) AddListener(l Listener) {

	if l == nil {
		return
	}
	appendItem(&m.listeners, l)
}

func (m *Manager) afterActivated(s Scope) {
	for _, l := range snapshot(&m.listeners) {
		l.AfterScopeActivated(s)
	}
}

func (m *Manager) afterClosed(s Scope) {
	for _, l := range snapshot(&m.listeners) {
		l.AfterScopeClosed(s)
	}
}

func (m *Manager) execution(ctx context.Context) (*Execution, bool) {

	for _, sc := range snapshot(&m.contexts) {
		if e, ok := sc.Execution(ctx); ok {
			return e, true
		}
	}
	return nil, false
}

func (m *Manager) push(e *Execution, span Span, finishOnClose bool, c *Continuation) Scope {

	s := &scope{
		manager:       m,
		execution:     e,
		span:          span,
		finishOnClose: finishOnClose,
		depth:         e.Depth(),
		continuation:  c,
	}
	e.push(s)
	m.afterActivated(s)
	return s
}

// Activate makes span active in the execution of ctx. It degrades to NoopScope
// when ctx has no execution or the depth limit is reached.
func (m *Manager) Activate(ctx context.Context, span Span, finishOnClose bool) Scope {

	if span == nil {
		return NoopScope
	}

	e, ok := m.execution(ctx)
	if !ok {
		m.logger.Debug("No execution to activate span in")
		return NoopScope
	}

	if m.options.DepthLimit > 0 && e.Depth() >= m.options.DepthLimit {
		m.depthExceeded.Inc()
		m.logger.Debug("Scope depth limit %d reached", m.options.DepthLimit)
		return NoopScope
	}
	return m.push(e, span, finishOnClose, nil)
}

// Active returns nil when nothing is active.
func (m *Manager) Active(ctx context.Context) Scope {

	e, ok := m.execution(ctx)
	if !ok {
		return nil
	}
	if s := e.top(); s != nil {
		return s
	}
	return nil
}

func (m *Manager) ActiveSpan(ctx context.Context) Span {

	s := m.Active(ctx)
	if s == nil {
		return nil
	}
	return s.Span()
}

func (m *Manager) capture(ctx context.Context, concurrent bool) *Continuation {

	span := m.ActiveSpan(ctx)
	if span == nil {
		return nil
	}
	return newContinuation(m, span, concurrent)
}

// Capture returns a single use continuation of the active span or nil.
func (m *Manager) Capture(ctx context.Context) *Continuation {
	return m.capture(ctx, false)
}

// CaptureConcurrent returns a reusable, reference counted continuation of the active span or nil.
func (m *Manager) CaptureConcurrent(ctx context.Context) *Continuation {
	return m.capture(ctx, true)
}

func NewManager(options Options, logger common.Logger, meter common.Meter) *Manager {

	if logger == nil {
		logger = common.NewLogs()
	}
	if meter == nil {
		meter = common.NewMetrics()
	}
	if options.DepthLimit < 0 {
		options.DepthLimit = 0
	}

	m := &Manager{
		options:       options,
		logger:        logger,
		depthExceeded: meter.Counter("scope_depth_exceeded", "Activations over the scope depth limit", nil),
		canceled:      meter.Counter("continuations_canceled", "Continuations canceled", nil),
	}
	m.AddScopeContext(contextScopeContext{})
	return m
}
