package propagation

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/utils"
)

const (
	TraceIDHeader          = "x-datadog-trace-id"
	ParentIDHeader         = "x-datadog-parent-id"
	SamplingPriorityHeader = "x-datadog-sampling-priority"
	OriginHeader           = "x-datadog-origin"
	TagsHeader             = "x-datadog-tags"
	BaggagePrefix          = "ot-baggage-"

	TraceIDHighTag       = "_dd.p.tid"
	propagatingTagPrefix = "_dd.p."
	defaultHeaderTagName = "http.request.headers."
)

var (
	ErrInvalidTraceID  = errors.New("invalid trace id")
	ErrInvalidSpanID   = errors.New("invalid span id")
	ErrInvalidPriority = errors.New("invalid sampling priority")
	ErrInvalidCarrier  = errors.New("invalid carrier")
)

// Context is the outbound side of a span context.
type Context interface {
	TraceID() common.TraceID
	SpanID() uint64
	// SamplingPriority reports the priority and whether it is locked.
	SamplingPriority() (int, bool)
	Origin() string
	ForeachBaggageItem(handler func(k, v string) bool)
	PropagatingTags() map[string]string
}

type Options struct {
	// TaggedHeaders maps lower case header names to span tags.
	TaggedHeaders map[string]string
	// OnError observes extraction failures, which never reach the caller.
	OnError func(err error)
}

type Codec struct {
	options Options
	logger  common.Logger
}

// ParseTaggedHeaders parses "x-header:tag,x-other" into a header to tag mapping.
func ParseTaggedHeaders(s string) map[string]string {

	m := make(map[string]string)
	for h, tag := range common.GetColonPairs(s) {
		h = strings.ToLower(h)
		if utils.IsEmpty(tag) {
			tag = defaultHeaderTagName + h
		}
		m[h] = tag
	}
	return m
}

func (c *Codec) Inject(ctx Context, carrier Setter) error {

	if ctx == nil || carrier == nil {
		return ErrInvalidCarrier
	}

	traceID := ctx.TraceID()
	carrier.Set(TraceIDHeader, strconv.FormatUint(traceID.Low, 10))
	carrier.Set(ParentIDHeader, strconv.FormatUint(ctx.SpanID(), 10))

	if priority, locked := ctx.SamplingPriority(); locked {
		carrier.Set(SamplingPriorityHeader, strconv.Itoa(priority))
	}

	if origin := ctx.Origin(); !utils.IsEmpty(origin) {
		carrier.Set(OriginHeader, origin)
	}

	ctx.ForeachBaggageItem(func(k, v string) bool {
		carrier.Set(BaggagePrefix+k, url.QueryEscape(v))
		return true
	})

	tags := copyMap(ctx.PropagatingTags())
	if traceID.Is128() {
		tags[TraceIDHighTag] = traceID.HighHex()
	}
	if len(tags) > 0 {
		carrier.Set(TagsHeader, strings.Join(common.MapToArray(tags), ","))
	}
	return nil
}

func (c *Codec) fail(err error) *ExtractedContext {

	c.logger.Debug("Extraction failed: %v", err)
	if c.options.OnError != nil {
		c.options.OnError(err)
	}
	return nil
}

func parsePropagatingTags(s string) map[string]string {

	m := make(map[string]string)
	for _, p := range strings.Split(s, ",") {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 || !strings.HasPrefix(kv[0], propagatingTagPrefix) {
			continue
		}
		m[kv[0]] = kv[1]
	}
	return m
}

// Extract returns nil when the carrier holds no context or any value is malformed.
func (c *Codec) Extract(carrier Visitor) *ExtractedContext {

	if carrier == nil {
		return c.fail(ErrInvalidCarrier)
	}

	e := NewExtractedContext(common.TraceID{}, 0, common.PriorityUnset, "", nil)

	err := carrier.ForeachKey(func(key, val string) error {

		var err error
		k := strings.ToLower(key)

		switch {
		case k == TraceIDHeader:
			e.traceID, err = common.ParseTraceID(strings.TrimSpace(val), 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidTraceID, err)
			}
		case k == ParentIDHeader:
			e.spanID, err = common.ParseSpanID(strings.TrimSpace(val), 10)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidSpanID, err)
			}
		case k == SamplingPriorityHeader:
			e.priority, err = strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return fmt.Errorf("%w: %q", ErrInvalidPriority, val)
			}
		case k == OriginHeader:
			e.origin = val
		case k == TagsHeader:
			e.propagatingTags = parsePropagatingTags(val)
		case len(key) > len(BaggagePrefix) && strings.EqualFold(key[:len(BaggagePrefix)], BaggagePrefix):
			v, err := url.QueryUnescape(val)
			if err != nil {
				return fmt.Errorf("invalid baggage %s: %w", key, err)
			}
			// baggage keys keep the carrier's case
			e.baggage.Set(key[len(BaggagePrefix):], v)
		}

		if tag, ok := c.options.TaggedHeaders[k]; ok {
			e.tags[tag] = strings.TrimSpace(val)
		}
		return nil
	})
	if err != nil {
		return c.fail(err)
	}

	if tid, ok := e.propagatingTags[TraceIDHighTag]; ok {
		delete(e.propagatingTags, TraceIDHighTag)
		high, err := common.ParseSpanID(tid, 16)
		if err != nil || len(tid) != 16 {
			c.fail(fmt.Errorf("%w: malformed %s %q", ErrInvalidTraceID, TraceIDHighTag, tid))
		} else if !e.traceID.IsZero() {
			e.traceID.High = high
		}
	}

	if e.traceID.IsZero() && utils.IsEmpty(e.origin) && len(e.tags) == 0 {
		return nil
	}
	return e
}

func NewCodec(options Options, logger common.Logger) *Codec {

	if logger == nil {
		logger = common.NewLogs()
	}
	return &Codec{
		options: options,
		logger:  logger,
	}
}
