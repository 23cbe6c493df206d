package decorator

import (
	"errors"
	"testing"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testContext struct {
	service          string
	resource         string
	resourcePriority int
	spanType         string
	operation        string
	priority         int
	mechanism        int
	isError          bool
	tags             map[string]interface{}
}

func newTestContext(service string) *testContext {
	return &testContext{service: service, priority: common.PriorityUnset, tags: make(map[string]interface{})}
}

func (c *testContext) ServiceName() string              { return c.service }
func (c *testContext) SetServiceName(service string)    { c.service = service }
func (c *testContext) SetSpanType(spanType string)      { c.spanType = spanType }
func (c *testContext) SetOperationName(name string)     { c.operation = name }
func (c *testContext) SetError(flag bool)               { c.isError = flag }
func (c *testContext) SetTag(key string, v interface{}) { c.tags[key] = v }

func (c *testContext) SetResourceName(resource string, priority int) {
	if priority >= c.resourcePriority {
		c.resource, c.resourcePriority = resource, priority
	}
}

func (c *testContext) SetSamplingPriority(priority, mechanism int) {
	c.priority, c.mechanism = priority, mechanism
}

func (c *testContext) Tag(key string) (interface{}, bool) {
	v, ok := c.tags[key]
	return v, ok
}

// set mimics a span tag write through the chain
func set(chain *Chain, ctx *testContext, tag string, value interface{}) {
	if v, ok := chain.Decorate(ctx, tag, value); ok {
		ctx.tags[tag] = v
	}
}

func TestChainServiceName(t *testing.T) {

	chain := New(Options{DefaultService: "app", ServiceMapping: map[string]string{"mysql": "orders-db"}}, nil)
	ctx := newTestContext("app")

	set(chain, ctx, "service.name", "mysql")
	assert.Equal(t, "orders-db", ctx.service)
	_, ok := ctx.tags["service.name"]
	assert.False(t, ok)

	set(chain, ctx, "service", "cache")
	assert.Equal(t, "cache", ctx.service)
}

func TestChainServletContext(t *testing.T) {

	chain := New(Options{DefaultService: "app"}, naming.New(naming.V0, "app"))

	ctx := newTestContext("app")
	set(chain, ctx, "servlet.context", "/shop")
	assert.Equal(t, "shop", ctx.service)
	assert.Equal(t, "/shop", ctx.tags["servlet.context"])

	ctx = newTestContext("renamed")
	set(chain, ctx, "servlet.context", "/shop")
	assert.Equal(t, "renamed", ctx.service)

	chain = New(Options{DefaultService: "app"}, naming.New(naming.V1, "app"))
	ctx = newTestContext("app")
	set(chain, ctx, "servlet.context", "/shop")
	assert.Equal(t, "app", ctx.service)
}

func TestChainSideEffects(t *testing.T) {

	chain := New(Options{}, nil)
	ctx := newTestContext("app")

	set(chain, ctx, "span.type", "web")
	set(chain, ctx, "operation.name", "http.request")
	set(chain, ctx, "resource.name", "GET /users")
	assert.Equal(t, "web", ctx.spanType)
	assert.Equal(t, "http.request", ctx.operation)
	assert.Equal(t, "GET /users", ctx.resource)
	assert.Empty(t, ctx.tags)

	set(chain, ctx, "manual.keep", true)
	assert.Equal(t, common.PriorityUserKeep, ctx.priority)
	assert.Equal(t, common.MechanismManual, ctx.mechanism)

	set(chain, ctx, "manual.drop", "true")
	assert.Equal(t, common.PriorityUserDrop, ctx.priority)

	set(chain, ctx, "sampling.priority", 1)
	assert.Equal(t, common.PriorityUserKeep, ctx.priority)
	set(chain, ctx, "sampling.priority", 0)
	assert.Equal(t, common.PriorityUserDrop, ctx.priority)

	set(chain, ctx, "error", errors.New("boom"))
	assert.True(t, ctx.isError)
	assert.Equal(t, "boom", ctx.tags["error.message"])
	set(chain, ctx, "error", false)
	assert.False(t, ctx.isError)
}

func TestChainResourcePriorities(t *testing.T) {

	chain := New(Options{}, nil)
	ctx := newTestContext("app")

	ctx.tags[HTTPMethodTag] = "get"
	set(chain, ctx, "http.url", "http://localhost:8080/users/42/orders?limit=10")
	assert.Equal(t, "GET /users/?/orders", ctx.resource)
	assert.Equal(t, "http://localhost:8080/users/42/orders?limit=10", ctx.tags["http.url"])

	set(chain, ctx, "http.status_code", 404)
	assert.Equal(t, "404", ctx.resource)
	assert.Equal(t, 404, ctx.tags["http.status_code"])

	set(chain, ctx, "http.url", "/other")
	assert.Equal(t, "404", ctx.resource)

	set(chain, ctx, "db.statement", "SELECT 1")
	assert.Equal(t, "SELECT 1", ctx.resource)
}

func TestChainPeerService(t *testing.T) {

	chain := New(Options{PeerServiceMapping: map[string]string{"pg-1": "postgres"}}, nil)
	ctx := newTestContext("app")

	set(chain, ctx, PeerServiceTag, "pg-1")
	assert.Equal(t, "postgres", ctx.tags[PeerServiceTag])
	assert.Equal(t, "pg-1", ctx.tags[PeerServiceRemappedTag])
	assert.Equal(t, PeerServiceTag, ctx.tags[PeerServiceSourceTag])
}

func TestPeerServiceChainedMapping(t *testing.T) {

	mapping := map[string]string{"a": "b", "b": "c"}
	chain := New(Options{PeerServiceMapping: mapping}, nil)
	calc := NewPeerServiceCalculator(naming.New(naming.V1, "app"), mapping)
	ctx := newTestContext("app")

	ctx.tags[SpanKindTag] = "client"
	set(chain, ctx, PeerServiceTag, "a")
	tags := calc.ProcessTags(ctx.tags, ctx)
	assert.Equal(t, "b", tags[PeerServiceTag])
	assert.Equal(t, "a", tags[PeerServiceRemappedTag])

	// set without the decorator, the calculator maps once
	tags = calc.ProcessTags(map[string]interface{}{SpanKindTag: "client", PeerServiceTag: "b"}, ctx)
	assert.Equal(t, "c", tags[PeerServiceTag])
	assert.Equal(t, "b", tags[PeerServiceRemappedTag])
}

func TestChainDisabled(t *testing.T) {

	chain := New(Options{Disabled: []string{"SpanTypeDecorator", "manual.keep"}}, nil)
	assert.False(t, chain.Has("span.type"))
	assert.False(t, chain.Has("manual.keep"))
	assert.True(t, chain.Has("manual.drop"))

	ctx := newTestContext("app")
	set(chain, ctx, "span.type", "web")
	assert.Empty(t, ctx.spanType)
	assert.Equal(t, "web", ctx.tags["span.type"])
}

type upper struct{ tag string }

func (u upper) Name() string { return "upper" }
func (u upper) Tag() string  { return u.tag }
func (u upper) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {
	return toString(value) + "!", true
}

type suppress struct{ tag string }

func (s suppress) Name() string { return "suppress" }
func (s suppress) Tag() string  { return s.tag }
func (s suppress) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {
	return value, false
}

func TestChainOrder(t *testing.T) {

	chain := NewChain(upper{"a"}, upper{"a"}, suppress{"b"}, upper{"b"})
	require.Len(t, chain.Decorators(), 4)

	v, ok := chain.Decorate(newTestContext(""), "a", "x")
	assert.True(t, ok)
	assert.Equal(t, "x!!", v)

	v, ok = chain.Decorate(newTestContext(""), "b", "x")
	assert.False(t, ok)
	assert.Equal(t, "x", v)

	v, ok = chain.Decorate(newTestContext(""), "c", "x")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestNormalizePath(t *testing.T) {

	assert.Equal(t, "/users/?", NormalizePath("/users/123"))
	assert.Equal(t, "/", NormalizePath("http://host"))
	assert.Equal(t, "/a/b", NormalizePath("/a/b?c=1#x"))
	assert.Equal(t, "/?/items", NormalizePath("/v2/items"))
}

func TestPostProcessors(t *testing.T) {

	calc := NewPeerServiceCalculator(naming.New(naming.V1, "app"), map[string]string{"orders": "orders-db"})
	ctx := newTestContext("app")

	tags := calc.ProcessTags(map[string]interface{}{SpanKindTag: "client", "db.instance": "orders", "out.host": "h"}, ctx)
	assert.Equal(t, "orders-db", tags[PeerServiceTag])
	assert.Equal(t, "db.instance", tags[PeerServiceSourceTag])
	assert.Equal(t, "orders", tags[PeerServiceRemappedTag])

	tags = calc.ProcessTags(map[string]interface{}{SpanKindTag: "server", "db.instance": "orders"}, ctx)
	_, ok := tags[PeerServiceTag]
	assert.False(t, ok)

	v0 := NewPeerServiceCalculator(naming.New(naming.V0, "app"), nil)
	tags = v0.ProcessTags(map[string]interface{}{SpanKindTag: "client", "db.instance": "orders"}, ctx)
	_, ok = tags[PeerServiceTag]
	assert.False(t, ok)

	base := NewBaseServiceProcessor("app")
	tags = base.ProcessTags(map[string]interface{}{}, ctx)
	_, ok = tags[BaseServiceTag]
	assert.False(t, ok)

	ctx.service = "mysql"
	tags = base.ProcessTags(map[string]interface{}{}, ctx)
	assert.Equal(t, "app", tags[BaseServiceTag])
}
