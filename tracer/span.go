package tracer

import (
	"fmt"
	"time"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/decorator"
	"github.com/devopsext/tracecore/scope"
)

const (
	EnvTag              = "env"
	VersionTag          = "version"
	RuntimeIDTag        = "runtime-id"
	ErrorMessageTag     = "error.message"
	SamplingPriorityTag = "_sampling_priority_v1"
)

type Span struct {
	tracer           *Tracer
	context          *SpanContext
	name             string
	service          string
	resource         string
	resourcePriority int
	spanType         string
	start            time.Time
	duration         time.Duration
	finished         bool
	isError          bool
	tags             map[string]interface{}
	metrics          map[string]float64
}

func (s *Span) Context() *SpanContext {
	return s.context
}

func (s *Span) GetContext() common.TracerSpanContext {
	return s.context
}

func (s *Span) PendingTrace() scope.PendingTrace {
	return s.context.trace
}

func (s *Span) Name() string {

	s.context.mu.RLock()
	defer s.context.mu.RUnlock()
	return s.name
}

func (s *Span) ServiceName() string {

	s.context.mu.RLock()
	defer s.context.mu.RUnlock()
	return s.service
}

func (s *Span) ResourceName() string {

	s.context.mu.RLock()
	defer s.context.mu.RUnlock()
	return s.resource
}

func (s *Span) SpanType() string {

	s.context.mu.RLock()
	defer s.context.mu.RUnlock()
	return s.spanType
}

func (s *Span) StartTime() time.Time {
	return s.start
}

func (s *Span) Duration() time.Duration {

	s.context.mu.RLock()
	defer s.context.mu.RUnlock()
	return s.duration
}

func (s *Span) IsFinished() bool {

	s.context.mu.RLock()
	defer s.context.mu.RUnlock()
	return s.finished
}

func (s *Span) IsError() bool {

	s.context.mu.RLock()
	defer s.context.mu.RUnlock()
	return s.isError
}

func (s *Span) Tag(key string) (interface{}, bool) {

	s.context.mu.RLock()
	defer s.context.mu.RUnlock()
	v, ok := s.tags[key]
	return v, ok
}

func (s *Span) Tags() map[string]interface{} {

	s.context.mu.RLock()
	defer s.context.mu.RUnlock()

	m := make(map[string]interface{}, len(s.tags))
	for k, v := range s.tags {
		m[k] = v
	}
	return m
}

func (s *Span) Metrics() map[string]float64 {

	s.context.mu.RLock()
	defer s.context.mu.RUnlock()

	m := make(map[string]float64, len(s.metrics))
	for k, v := range s.metrics {
		m[k] = v
	}
	return m
}

// SetTag runs the tag through the decorators before storing it.
func (s *Span) SetTag(key string, value interface{}) *Span {

	v, ok := s.tracer.decorators.Decorate(decoratorContext{s}, key, value)
	if ok {
		s.setTag(key, v)
	}
	return s
}

func (s *Span) setTag(key string, value interface{}) {

	s.context.mu.Lock()
	defer s.context.mu.Unlock()
	s.tags[key] = value
}

func (s *Span) SetMetric(key string, value float64) {

	s.context.mu.Lock()
	defer s.context.mu.Unlock()
	s.metrics[key] = value
}

func (s *Span) SetOperationName(name string) *Span {

	s.context.mu.Lock()
	defer s.context.mu.Unlock()
	s.name = name
	return s
}

func (s *Span) SetServiceName(service string) *Span {

	s.context.mu.Lock()
	defer s.context.mu.Unlock()
	s.service = service
	return s
}

func (s *Span) SetSpanType(spanType string) *Span {

	s.context.mu.Lock()
	defer s.context.mu.Unlock()
	s.spanType = spanType
	return s
}

// SetResourceName overrides any resource name inferred from tags.
func (s *Span) SetResourceName(resource string) *Span {
	s.setResourceName(resource, decorator.ResourcePriorityManual)
	return s
}

func (s *Span) setResourceName(resource string, priority int) {

	s.context.mu.Lock()
	defer s.context.mu.Unlock()

	if priority < s.resourcePriority {
		return
	}
	s.resource = resource
	s.resourcePriority = priority
}

func (s *Span) setError(flag bool) {

	s.context.mu.Lock()
	defer s.context.mu.Unlock()
	s.isError = flag
}

func (s *Span) Error(err error) {

	if err == nil {
		return
	}
	s.SetTag("error", err)
}

// SetSamplingPriority sets a manual decision unless one is locked already.
func (s *Span) SetSamplingPriority(priority int) bool {
	return s.context.trace.SetSamplingPriority(priority, common.MechanismManual)
}

func (s *Span) SamplingPriority() (int, bool) {
	return s.context.trace.SamplingPriority()
}

func (s *Span) GetServiceName() string {
	return s.ServiceName()
}

func (s *Span) GetEnv() string {

	v, ok := s.Tag(EnvTag)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func (s *Span) GetTraceID() common.TraceID {
	return s.context.traceID
}

func (s *Span) SetSamplingPriorityOnce(priority, mechanism int) bool {
	return s.context.trace.SetSamplingPriorityOnce(priority, mechanism)
}

func (s *Span) Finish() {
	s.FinishWithTime(time.Now())
}

func (s *Span) FinishWithTime(t time.Time) {

	s.context.mu.Lock()
	if s.finished {
		s.context.mu.Unlock()
		return
	}
	s.finished = true
	s.duration = t.Sub(s.start)
	tags := make(map[string]interface{}, len(s.tags))
	for k, v := range s.tags {
		tags[k] = v
	}
	s.context.mu.Unlock()

	ctx := decoratorContext{s}
	for _, p := range s.tracer.processors {
		tags = p.ProcessTags(tags, ctx)
	}

	s.context.mu.Lock()
	s.tags = tags
	s.context.mu.Unlock()

	s.tracer.spansFinished.Inc()
	s.context.trace.spanFinished(s)
}

func (s *Span) String() string {
	return fmt.Sprintf("%s %s/%d", s.Name(), s.context.traceID, s.context.spanID)
}

// decoratorContext lets decorators change span state without re-entering the chain.
type decoratorContext struct {
	span *Span
}

func (d decoratorContext) ServiceName() string {
	return d.span.ServiceName()
}

func (d decoratorContext) SetServiceName(service string) {
	d.span.SetServiceName(service)
}

func (d decoratorContext) SetResourceName(resource string, priority int) {
	d.span.setResourceName(resource, priority)
}

func (d decoratorContext) SetSpanType(spanType string) {
	d.span.SetSpanType(spanType)
}

func (d decoratorContext) SetOperationName(name string) {
	d.span.SetOperationName(name)
}

func (d decoratorContext) SetSamplingPriority(priority, mechanism int) {
	d.span.context.trace.SetSamplingPriority(priority, mechanism)
}

func (d decoratorContext) SetError(flag bool) {
	d.span.setError(flag)
}

func (d decoratorContext) Tag(key string) (interface{}, bool) {
	return d.span.Tag(key)
}

func (d decoratorContext) SetTag(key string, value interface{}) {
	d.span.setTag(key, value)
}
