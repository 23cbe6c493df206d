package propagation

import (
	"errors"
	"net/http"
	"testing"

	"github.com/devopsext/tracecore/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testContext struct {
	traceID  common.TraceID
	spanID   uint64
	priority int
	locked   bool
	origin   string
	baggage  *common.Baggage
	tags     map[string]string
}

func (c *testContext) TraceID() common.TraceID            { return c.traceID }
func (c *testContext) SpanID() uint64                     { return c.spanID }
func (c *testContext) SamplingPriority() (int, bool)      { return c.priority, c.locked }
func (c *testContext) Origin() string                     { return c.origin }
func (c *testContext) PropagatingTags() map[string]string { return c.tags }

func (c *testContext) ForeachBaggageItem(handler func(k, v string) bool) {
	if c.baggage != nil {
		c.baggage.Foreach(handler)
	}
}

type failingCarrier struct{}

func (failingCarrier) ForeachKey(handler func(key, val string) error) error {
	return ErrInvalidCarrier
}

func TestCodecRoundTrip(t *testing.T) {

	b := common.NewBaggage()
	b.Set("user", "jane doe")
	b.Set("path", "/a?b=c&d")
	b.Set("UserID", "a b+c/%=é")

	ctx := &testContext{
		traceID:  common.TraceID{Low: 18446744073709551615},
		spanID:   42,
		priority: common.PriorityUserKeep,
		locked:   true,
		origin:   "synthetics",
		baggage:  b,
	}

	codec := NewCodec(Options{}, nil)
	carrier := TextMapCarrier{}
	require.NoError(t, codec.Inject(ctx, carrier))

	assert.Equal(t, "18446744073709551615", carrier[TraceIDHeader])
	assert.Equal(t, "42", carrier[ParentIDHeader])
	assert.Equal(t, "2", carrier[SamplingPriorityHeader])
	assert.Equal(t, "jane+doe", carrier["ot-baggage-user"])
	assert.Contains(t, carrier, "ot-baggage-UserID")

	e := codec.Extract(carrier)
	require.NotNil(t, e)
	assert.Equal(t, ctx.traceID, e.TraceID())
	assert.Equal(t, ctx.spanID, e.SpanID())
	assert.Equal(t, ctx.priority, e.SamplingPriority())
	assert.Equal(t, ctx.origin, e.Origin())
	assert.Equal(t, b.Map(), e.Baggage().Map())
	v, ok := e.Baggage().Get("UserID")
	assert.True(t, ok)
	assert.Equal(t, "a b+c/%=é", v)
	assert.False(t, e.IsTagOnly())
}

func TestCodecBaggageKeyCase(t *testing.T) {

	codec := NewCodec(Options{}, nil)
	e := codec.Extract(TextMapCarrier{
		"X-Datadog-Trace-Id":    "5",
		"OT-BAGGAGE-SessionKey": "s1",
		"ot-baggage-":           "empty",
	})
	require.NotNil(t, e)

	assert.Equal(t, map[string]string{"SessionKey": "s1"}, e.Baggage().Map())
}

func TestCodecUnlockedPriority(t *testing.T) {

	codec := NewCodec(Options{}, nil)
	carrier := TextMapCarrier{}
	require.NoError(t, codec.Inject(&testContext{traceID: common.TraceID{Low: 1}, spanID: 2, priority: 1}, carrier))

	_, ok := carrier[SamplingPriorityHeader]
	assert.False(t, ok)

	e := codec.Extract(carrier)
	require.NotNil(t, e)
	assert.Equal(t, common.PriorityUnset, e.SamplingPriority())
}

func TestCodec128BitTraceID(t *testing.T) {

	codec := NewCodec(Options{}, nil)
	id := common.TraceID{High: 0x640cfd8d00000000, Low: 77}
	carrier := TextMapCarrier{}
	require.NoError(t, codec.Inject(&testContext{traceID: id, spanID: 3, tags: map[string]string{"_dd.p.dm": "-4"}}, carrier))

	assert.Equal(t, "77", carrier[TraceIDHeader])
	assert.Equal(t, "_dd.p.dm=-4,_dd.p.tid=640cfd8d00000000", carrier[TagsHeader])

	e := codec.Extract(carrier)
	require.NotNil(t, e)
	assert.Equal(t, id, e.TraceID())
	assert.Equal(t, map[string]string{"_dd.p.dm": "-4"}, e.PropagatingTags())

	carrier[TagsHeader] = "_dd.p.tid=zz"
	e = codec.Extract(carrier)
	require.NotNil(t, e)
	assert.Equal(t, common.TraceID{Low: 77}, e.TraceID())
}

func TestCodecHTTPHeaders(t *testing.T) {

	h := http.Header{}
	h.Set("X-Datadog-Trace-Id", "123")
	h.Set("X-Datadog-Parent-Id", "456")
	h.Set("X-Datadog-Sampling-Priority", "-1")
	h.Set("Ot-Baggage-Item", "a%20b")
	h.Set("X-User", " alice ")

	codec := NewCodec(Options{TaggedHeaders: ParseTaggedHeaders("X-User:user.id,x-missing")}, nil)
	e := codec.Extract(HTTPHeadersCarrier(h))
	require.NotNil(t, e)

	assert.Equal(t, uint64(123), e.TraceID().Low)
	assert.Equal(t, uint64(456), e.SpanID())
	assert.Equal(t, common.PriorityUserDrop, e.SamplingPriority())
	v, _ := e.Baggage().Get("item")
	assert.Equal(t, "a b", v)
	assert.Equal(t, map[string]string{"user.id": "alice"}, e.Tags())

	out := HTTPHeadersCarrier(http.Header{})
	require.NoError(t, codec.Inject(&testContext{traceID: common.TraceID{Low: 1}, spanID: 2}, out))
	assert.Equal(t, "1", http.Header(out).Get(TraceIDHeader))
}

func TestCodecFailOpen(t *testing.T) {

	var errs []error
	codec := NewCodec(Options{OnError: func(err error) { errs = append(errs, err) }}, nil)

	cases := []TextMapCarrier{
		{TraceIDHeader: "not-a-number", ParentIDHeader: "1"},
		{TraceIDHeader: "18446744073709551616", ParentIDHeader: "1"},
		{TraceIDHeader: "-5", ParentIDHeader: "1"},
		{TraceIDHeader: "1", ParentIDHeader: "x"},
		{TraceIDHeader: "1", SamplingPriorityHeader: "high"},
		{TraceIDHeader: "1", "ot-baggage-k": "%zz"},
	}
	for _, c := range cases {
		assert.Nil(t, codec.Extract(c))
	}
	assert.Len(t, errs, len(cases))
	assert.True(t, errors.Is(errs[0], ErrInvalidTraceID))
	assert.True(t, errors.Is(errs[3], ErrInvalidSpanID))

	assert.Nil(t, codec.Extract(failingCarrier{}))
	assert.True(t, errors.Is(errs[len(errs)-1], ErrInvalidCarrier))
}

func TestCodecTagOnly(t *testing.T) {

	codec := NewCodec(Options{TaggedHeaders: map[string]string{"x-user": "user.id"}}, nil)

	e := codec.Extract(TextMapCarrier{OriginHeader: "rum"})
	require.NotNil(t, e)
	assert.True(t, e.IsTagOnly())
	assert.Equal(t, "rum", e.Origin())

	e = codec.Extract(TextMapCarrier{"X-User": "bob"})
	require.NotNil(t, e)
	assert.True(t, e.IsTagOnly())
	assert.Equal(t, "bob", e.Tags()["user.id"])

	assert.Nil(t, codec.Extract(TextMapCarrier{}))
	assert.Nil(t, codec.Extract(TextMapCarrier{"content-type": "text/plain"}))
}

func TestParseTaggedHeaders(t *testing.T) {

	m := ParseTaggedHeaders("X-Request-Id:request.id, x-tenant")
	assert.Equal(t, map[string]string{
		"x-request-id": "request.id",
		"x-tenant":     "http.request.headers.x-tenant",
	}, m)
}
