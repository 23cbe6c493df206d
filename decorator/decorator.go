package decorator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/devopsext/tracecore/naming"
)

// Resource name priorities, a lower priority never replaces a higher one.
const (
	ResourcePriorityDefault = iota
	ResourcePriorityHTTPPath
	ResourcePriorityHTTP404
	ResourcePriorityTag
	ResourcePriorityManual
)

// Context is the mutable span state decorators work on. SetTag stores a tag
// without running decorators again.
type Context interface {
	ServiceName() string
	SetServiceName(service string)
	SetResourceName(resource string, priority int)
	SetSpanType(spanType string)
	SetOperationName(name string)
	SetSamplingPriority(priority, mechanism int)
	SetError(flag bool)
	Tag(key string) (interface{}, bool)
	SetTag(key string, value interface{})
}

// Decorator reacts on writes of a single tag key. It returns the value passed
// to the next decorator and false to suppress the raw tag.
type Decorator interface {
	Name() string
	Tag() string
	Decorate(ctx Context, tag string, value interface{}) (interface{}, bool)
}

type Options struct {
	DefaultService     string
	ServiceMapping     map[string]string
	PeerServiceMapping map[string]string
	// Disabled holds decorator names or tag keys.
	Disabled []string
}

// Chain is immutable once built.
type Chain struct {
	decorators []Decorator
	byTag      map[string][]Decorator
}

func (c *Chain) Decorators() []Decorator {
	return c.decorators
}

func (c *Chain) Has(tag string) bool {
	_, ok := c.byTag[tag]
	return ok
}

// Decorate runs the decorators of tag in order and reports whether the tag should be stored.
func (c *Chain) Decorate(ctx Context, tag string, value interface{}) (interface{}, bool) {

	if c == nil {
		return value, true
	}
	for _, d := range c.byTag[tag] {
		var keep bool
		value, keep = d.Decorate(ctx, tag, value)
		if !keep {
			return value, false
		}
	}
	return value, true
}

func NewChain(decorators ...Decorator) *Chain {

	c := &Chain{byTag: make(map[string][]Decorator)}
	for _, d := range decorators {
		if d == nil {
			continue
		}
		c.decorators = append(c.decorators, d)
		c.byTag[d.Tag()] = append(c.byTag[d.Tag()], d)
	}
	return c
}

func disabled(options Options, d Decorator) bool {

	for _, s := range options.Disabled {
		if strings.EqualFold(s, d.Name()) || s == d.Tag() {
			return true
		}
	}
	return false
}

// Defaults returns the built-in decorators in their fixed order.
func Defaults(options Options, schema *naming.Schema) []Decorator {

	if schema == nil {
		schema = naming.New(naming.V0, options.DefaultService)
	}
	return []Decorator{
		&serviceName{tag: "service.name", mapping: options.ServiceMapping},
		&serviceName{tag: "service", mapping: options.ServiceMapping},
		&servletContext{options: options, schema: schema},
		&resourceName{},
		&spanType{},
		&operationName{},
		&samplingPriority{},
		&manualKeep{},
		&manualDrop{},
		&errorFlag{},
		&httpStatus{},
		&urlAsResourceName{},
		&dbStatement{},
		&peerService{mapping: options.PeerServiceMapping},
	}
}

func New(options Options, schema *naming.Schema) *Chain {

	var ds []Decorator
	for _, d := range Defaults(options, schema) {
		if !disabled(options, d) {
			ds = append(ds, d)
		}
	}
	return NewChain(ds...)
}

func toString(value interface{}) string {

	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toBool(value interface{}) (bool, bool) {

	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	case nil:
		return true, true
	default:
		i, ok := toInt(value)
		return i != 0, ok
	}
}

func toInt(value interface{}) (int, bool) {

	switch v := value.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		return i, err == nil
	default:
		return 0, false
	}
}
