package propagation

import (
	"net/http"
	"strings"
)

// Setter writes key/value pairs into an outbound carrier.
type Setter interface {
	Set(key, val string)
}

// Visitor iterates an inbound carrier. Iteration stops on the first handler error.
type Visitor interface {
	ForeachKey(handler func(key, val string) error) error
}

// HTTPHeadersCarrier visits keys lowercased, header names are canonicalized
// by net/http so their original case is already lost.
type HTTPHeadersCarrier http.Header

func (c HTTPHeadersCarrier) Set(key, val string) {
	http.Header(c).Set(key, val)
}

func (c HTTPHeadersCarrier) ForeachKey(handler func(key, val string) error) error {

	for k, vals := range c {
		k = strings.ToLower(k)
		for _, v := range vals {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// TextMapCarrier keeps key case as set.
type TextMapCarrier map[string]string

func (c TextMapCarrier) Set(key, val string) {
	c[key] = val
}

func (c TextMapCarrier) ForeachKey(handler func(key, val string) error) error {

	for k, v := range c {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}
