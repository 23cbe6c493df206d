package tracer

import (
	"sync"

	"github.com/devopsext/tracecore/common"
)

// SpanContext identifies a span inside its trace. Its lock also guards the
// mutable fields of the owning span.
type SpanContext struct {
	mu       sync.RWMutex
	traceID  common.TraceID
	spanID   uint64
	parentID uint64
	origin   string
	baggage  *common.Baggage
	trace    *Trace
	span     *Span
}

func (c *SpanContext) TraceID() common.TraceID {
	return c.traceID
}

func (c *SpanContext) SpanID() uint64 {
	return c.spanID
}

// ParentID is zero for root spans.
func (c *SpanContext) ParentID() uint64 {
	return c.parentID
}

func (c *SpanContext) Origin() string {
	return c.origin
}

func (c *SpanContext) Trace() *Trace {
	return c.trace
}

func (c *SpanContext) Span() *Span {
	return c.span
}

// SamplingPriority returns the trace priority and whether it is locked.
func (c *SpanContext) SamplingPriority() (int, bool) {
	return c.trace.SamplingPriority()
}

func (c *SpanContext) PropagatingTags() map[string]string {
	return c.trace.PropagatingTags()
}

func (c *SpanContext) SetBaggageItem(key, value string) {
	c.baggage.Set(key, value)
}

func (c *SpanContext) BaggageItem(key string) string {
	v, _ := c.baggage.Get(key)
	return v
}

func (c *SpanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	c.baggage.Foreach(handler)
}

func (c *SpanContext) GetTraceID() common.TraceID {
	return c.traceID
}

func (c *SpanContext) GetSpanID() uint64 {
	return c.spanID
}
