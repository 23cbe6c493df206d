package propagation

import (
	"github.com/devopsext/tracecore/common"
)

// ExtractedContext is the immutable seed decoded from an inbound carrier.
// A zero trace id means a tag-only context.
type ExtractedContext struct {
	traceID         common.TraceID
	spanID          uint64
	priority        int
	origin          string
	baggage         *common.Baggage
	tags            map[string]string
	propagatingTags map[string]string
}

func (e *ExtractedContext) TraceID() common.TraceID {
	return e.traceID
}

func (e *ExtractedContext) SpanID() uint64 {
	return e.spanID
}

// SamplingPriority is common.PriorityUnset when the header was absent.
func (e *ExtractedContext) SamplingPriority() int {
	return e.priority
}

func (e *ExtractedContext) Origin() string {
	return e.origin
}

func (e *ExtractedContext) IsTagOnly() bool {
	return e.traceID.IsZero()
}

func (e *ExtractedContext) Baggage() *common.Baggage {
	return e.baggage.Copy()
}

func copyMap(m map[string]string) map[string]string {

	r := make(map[string]string, len(m))
	for k, v := range m {
		r[k] = v
	}
	return r
}

// Tags returns the values of configured tagged headers.
func (e *ExtractedContext) Tags() map[string]string {
	return copyMap(e.tags)
}

// PropagatingTags returns the _dd.p.* tags carried by x-datadog-tags.
func (e *ExtractedContext) PropagatingTags() map[string]string {
	return copyMap(e.propagatingTags)
}

func NewExtractedContext(traceID common.TraceID, spanID uint64, priority int, origin string, baggage map[string]string) *ExtractedContext {

	b := common.NewBaggage()
	for k, v := range baggage {
		b.Set(k, v)
	}
	return &ExtractedContext{
		traceID:         traceID,
		spanID:          spanID,
		priority:        priority,
		origin:          origin,
		baggage:         b,
		tags:            make(map[string]string),
		propagatingTags: make(map[string]string),
	}
}
