package decorator

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/naming"
)

const (
	PeerServiceTag         = "peer.service"
	PeerServiceSourceTag   = "_dd.peer.service.source"
	PeerServiceRemappedTag = "_dd.peer.service.remapped_from"
	HTTPMethodTag          = "http.method"
)

func mapped(mapping map[string]string, name string) string {

	if m, ok := mapping[name]; ok && m != "" {
		return m
	}
	return name
}

type serviceName struct {
	tag     string
	mapping map[string]string
}

func (d *serviceName) Name() string { return "ServiceNameDecorator" }
func (d *serviceName) Tag() string  { return d.tag }

func (d *serviceName) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	service := mapped(d.mapping, toString(value))
	ctx.SetServiceName(service)
	return service, false
}

// servletContext names the service after the web application unless something renamed it already.
type servletContext struct {
	options Options
	schema  *naming.Schema
}

func (d *servletContext) Name() string { return "ServletContextDecorator" }
func (d *servletContext) Tag() string  { return "servlet.context" }

func (d *servletContext) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	if !d.schema.AllowInferredServices() {
		return value, true
	}

	current := ctx.ServiceName()
	if current != "" && current != d.options.DefaultService {
		return value, true
	}

	name := strings.TrimSpace(strings.TrimPrefix(toString(value), "/"))
	if name == "" {
		return value, true
	}
	ctx.SetServiceName(mapped(d.options.ServiceMapping, name))
	return value, true
}

type resourceName struct{}

func (d *resourceName) Name() string { return "ResourceNameDecorator" }
func (d *resourceName) Tag() string  { return "resource.name" }

func (d *resourceName) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	if s := toString(value); s != "" {
		ctx.SetResourceName(s, ResourcePriorityTag)
	}
	return value, false
}

type spanType struct{}

func (d *spanType) Name() string { return "SpanTypeDecorator" }
func (d *spanType) Tag() string  { return "span.type" }

func (d *spanType) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {
	ctx.SetSpanType(toString(value))
	return value, false
}

type operationName struct{}

func (d *operationName) Name() string { return "OperationNameDecorator" }
func (d *operationName) Tag() string  { return "operation.name" }

func (d *operationName) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	if s := toString(value); s != "" {
		ctx.SetOperationName(s)
	}
	return value, false
}

type samplingPriority struct{}

func (d *samplingPriority) Name() string { return "SamplingPriorityDecorator" }
func (d *samplingPriority) Tag() string  { return "sampling.priority" }

func (d *samplingPriority) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	p, ok := toInt(value)
	if !ok {
		return value, false
	}
	if p > 0 {
		ctx.SetSamplingPriority(common.PriorityUserKeep, common.MechanismManual)
	} else {
		ctx.SetSamplingPriority(common.PriorityUserDrop, common.MechanismManual)
	}
	return value, false
}

type manualKeep struct{}

func (d *manualKeep) Name() string { return "ForceManualKeepDecorator" }
func (d *manualKeep) Tag() string  { return "manual.keep" }

func (d *manualKeep) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	if b, ok := toBool(value); ok && b {
		ctx.SetSamplingPriority(common.PriorityUserKeep, common.MechanismManual)
	}
	return value, false
}

type manualDrop struct{}

func (d *manualDrop) Name() string { return "ForceManualDropDecorator" }
func (d *manualDrop) Tag() string  { return "manual.drop" }

func (d *manualDrop) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	if b, ok := toBool(value); ok && b {
		ctx.SetSamplingPriority(common.PriorityUserDrop, common.MechanismManual)
	}
	return value, false
}

type errorFlag struct{}

func (d *errorFlag) Name() string { return "ErrorDecorator" }
func (d *errorFlag) Tag() string  { return "error" }

func (d *errorFlag) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	switch v := value.(type) {
	case nil:
		ctx.SetError(false)
	case error:
		ctx.SetError(true)
		ctx.SetTag("error.message", v.Error())
	default:
		b, ok := toBool(v)
		ctx.SetError(ok && b)
	}
	return value, false
}

type httpStatus struct{}

func (d *httpStatus) Name() string { return "Status404Decorator" }
func (d *httpStatus) Tag() string  { return "http.status_code" }

func (d *httpStatus) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	if code, ok := toInt(value); ok && code == 404 {
		ctx.SetResourceName("404", ResourcePriorityHTTP404)
	}
	return value, true
}

type urlAsResourceName struct{}

func (d *urlAsResourceName) Name() string { return "URLAsResourceNameDecorator" }
func (d *urlAsResourceName) Tag() string  { return "http.url" }

func hasDigit(s string) bool {

	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// NormalizePath strips the query and replaces segments holding digits with "?".
func NormalizePath(raw string) string {

	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		path = raw[:i]
	}
	if path == "" {
		return "/"
	}

	segments := strings.Split(path, "/")
	for i, s := range segments {
		if hasDigit(s) {
			segments[i] = "?"
		}
	}
	return strings.Join(segments, "/")
}

func (d *urlAsResourceName) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	s := toString(value)
	if s == "" {
		return value, true
	}

	resource := NormalizePath(s)
	if m, ok := ctx.Tag(HTTPMethodTag); ok {
		if method := strings.ToUpper(strings.TrimSpace(toString(m))); method != "" {
			resource = method + " " + resource
		}
	}
	ctx.SetResourceName(resource, ResourcePriorityHTTPPath)
	return value, true
}

type dbStatement struct{}

func (d *dbStatement) Name() string { return "DBStatementDecorator" }
func (d *dbStatement) Tag() string  { return "db.statement" }

func (d *dbStatement) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	if s := strings.TrimSpace(toString(value)); s != "" {
		ctx.SetResourceName(s, ResourcePriorityTag)
	}
	return value, true
}

type peerService struct {
	mapping map[string]string
}

func (d *peerService) Name() string { return "PeerServiceDecorator" }
func (d *peerService) Tag() string  { return PeerServiceTag }

func (d *peerService) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	name := toString(value)
	if name == "" {
		return value, false
	}

	peer := mapped(d.mapping, name)
	if peer != name {
		ctx.SetTag(PeerServiceRemappedTag, name)
	}
	ctx.SetTag(PeerServiceTag, peer)
	ctx.SetTag(PeerServiceSourceTag, PeerServiceTag)
	return peer, false
}
