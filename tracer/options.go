package tracer

import (
	"time"

	"github.com/devopsext/tracecore/propagation"
)

type Options struct {
	ServiceName        string
	Environment        string
	Version            string
	Tags               string
	ScopeDepthLimit    int
	Trace128Bit        bool
	HeaderTags         string
	ServiceMapping     string
	PeerServiceMapping string
	NamingSchema       string
	DisabledDecorators string
	AgentRates         string
	WriteDropped       bool
}

type tag struct {
	key   string
	value interface{}
}

type startSpanConfig struct {
	parent       *SpanContext
	extracted    *propagation.ExtractedContext
	ignoreActive bool
	service      string
	resource     string
	spanType     string
	spanID       uint64
	start        time.Time
	tags         []tag
}

type StartSpanOption func(cfg *startSpanConfig)

func ChildOf(parent *SpanContext) StartSpanOption {
	return func(cfg *startSpanConfig) {
		cfg.parent = parent
	}
}

// FromExtracted continues a trace decoded from an inbound carrier.
func FromExtracted(e *propagation.ExtractedContext) StartSpanOption {
	return func(cfg *startSpanConfig) {
		cfg.extracted = e
	}
}

// IgnoreActive starts a new root instead of a child of the active span.
func IgnoreActive() StartSpanOption {
	return func(cfg *startSpanConfig) {
		cfg.ignoreActive = true
	}
}

func ServiceName(service string) StartSpanOption {
	return func(cfg *startSpanConfig) {
		cfg.service = service
	}
}

func ResourceName(resource string) StartSpanOption {
	return func(cfg *startSpanConfig) {
		cfg.resource = resource
	}
}

func SpanType(spanType string) StartSpanOption {
	return func(cfg *startSpanConfig) {
		cfg.spanType = spanType
	}
}

// Tag is applied through the decorators in the order given.
func Tag(key string, value interface{}) StartSpanOption {
	return func(cfg *startSpanConfig) {
		cfg.tags = append(cfg.tags, tag{key: key, value: value})
	}
}

func StartTime(t time.Time) StartSpanOption {
	return func(cfg *startSpanConfig) {
		cfg.start = t
	}
}

func WithSpanID(id uint64) StartSpanOption {
	return func(cfg *startSpanConfig) {
		cfg.spanID = id
	}
}
