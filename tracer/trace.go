package tracer

import (
	"strconv"
	"strings"
	"sync"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/scope"
)

const DecisionMakerTag = "_dd.p.dm"

// Trace is shared by the spans of one trace id in this process. It is written
// once its open spans and outstanding continuations drain.
type Trace struct {
	tracer        *Tracer
	mu            sync.Mutex
	root          *Span
	finished      []*Span
	open          int
	continuations map[*scope.Continuation]struct{}
	priority      int
	mechanism     int
	locked        bool
	propagating   map[string]string
}

func (tr *Trace) SamplingPriority() (int, bool) {

	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.priority, tr.locked
}

// SetSamplingPriority changes an undecided priority without locking it.
func (tr *Trace) SetSamplingPriority(priority, mechanism int) bool {

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.locked {
		return false
	}
	tr.priority = priority
	tr.mechanism = mechanism
	return true
}

// SetSamplingPriorityOnce locks the decision, only the first caller wins.
func (tr *Trace) SetSamplingPriorityOnce(priority, mechanism int) bool {

	tr.mu.Lock()
	if tr.locked {
		tr.mu.Unlock()
		return false
	}
	tr.priority = priority
	tr.mechanism = mechanism
	tr.locked = true
	if common.IsKept(priority) {
		tr.propagating[DecisionMakerTag] = "-" + strconv.Itoa(mechanism)
	} else {
		delete(tr.propagating, DecisionMakerTag)
	}
	tr.mu.Unlock()

	tr.tracer.decision(priority)
	return true
}

// ForceSampling locks the current priority or asks the rate sampler for one.
func (tr *Trace) ForceSampling() {

	tr.mu.Lock()
	locked, priority, mechanism, root := tr.locked, tr.priority, tr.mechanism, tr.root
	tr.mu.Unlock()

	switch {
	case locked:
	case priority != common.PriorityUnset:
		tr.SetSamplingPriorityOnce(priority, mechanism)
	case root != nil:
		tr.tracer.sampler.SetSamplingPriority(root)
	default:
		tr.SetSamplingPriorityOnce(common.PrioritySamplerKeep, common.MechanismDefault)
	}
}

func (tr *Trace) PropagatingTags() map[string]string {

	tr.mu.Lock()
	defer tr.mu.Unlock()

	m := make(map[string]string, len(tr.propagating))
	for k, v := range tr.propagating {
		m[k] = v
	}
	return m
}

// RootSpan is the first span started in this process for the trace.
func (tr *Trace) RootSpan() *Span {

	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.root
}

func (tr *Trace) OpenSpans() int {

	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.open
}

func (tr *Trace) PendingContinuations() int {

	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.continuations)
}

func (tr *Trace) RegisterContinuation(c *scope.Continuation) {

	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.continuations[c] = struct{}{}
}

func (tr *Trace) CancelContinuation(c *scope.Continuation) {

	tr.mu.Lock()
	if _, ok := tr.continuations[c]; !ok {
		tr.mu.Unlock()
		return
	}
	delete(tr.continuations, c)
	spans := tr.drained()
	tr.mu.Unlock()

	if spans != nil {
		tr.tracer.write(tr, spans)
	}
}

func (tr *Trace) spanStarted(s *Span) {

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.root == nil {
		tr.root = s
	}
	tr.open++
}

func (tr *Trace) spanFinished(s *Span) {

	tr.mu.Lock()
	tr.open--
	tr.finished = append(tr.finished, s)
	spans := tr.drained()
	tr.mu.Unlock()

	if spans != nil {
		tr.tracer.write(tr, spans)
	}
}

// drained hands over the finished spans when nothing keeps the trace open.
// The caller holds tr.mu.
func (tr *Trace) drained() []*Span {

	if tr.open > 0 || len(tr.continuations) > 0 || len(tr.finished) == 0 {
		return nil
	}
	spans := tr.finished
	tr.finished = nil
	return spans
}

func newTrace(t *Tracer, priority int, propagating map[string]string) *Trace {

	tr := &Trace{
		tracer:        t,
		continuations: make(map[*scope.Continuation]struct{}),
		priority:      priority,
		mechanism:     common.MechanismDefault,
		propagating:   make(map[string]string),
	}
	for k, v := range propagating {
		tr.propagating[k] = v
	}
	if dm, ok := tr.propagating[DecisionMakerTag]; ok {
		if m, err := strconv.Atoi(strings.TrimPrefix(dm, "-")); err == nil {
			tr.mechanism = m
		}
	}
	return tr
}
