package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devopsext/tracecore/tracer"
)

func jaegerNewStdout() *Stdout {

	stdout := NewStdout(StdoutOptions{
		Format:          "template",
		Level:           "debug",
		Template:        "{{.msg}}",
		TimestampFormat: time.RFC3339Nano,
	})
	if stdout != nil {
		stdout.SetCallerOffset(1)
	}
	return stdout
}

func TestJaeger(t *testing.T) {

	stdout := jaegerNewStdout()
	if stdout == nil {
		t.Fatal("Invalid stdout")
	}

	jaeger := NewJaegerWriter(JaegerOptions{
		AgentHost:   "localhost",
		AgentPort:   6831,
		ServiceName: "tracecore-jaeger-test",
		Tags:        "tag1=value1,,tag3=${key3:value3}",
	}, nil, nil, stdout)
	if jaeger == nil {
		t.Fatal("Invalid jaeger")
	}

	tr := tracer.New(tracer.Options{ServiceName: "tracecore-jaeger-test", Trace128Bit: true}, jaeger, nil, stdout)

	span := tr.StartSpan(context.Background(), "some-span", tracer.Tag("key1", "Value1"))
	span.Context().SetBaggageItem("key", "value")
	span.Error(errors.New("some-span-error"))

	child := tr.StartSpan(context.Background(), "some-child-span", tracer.ChildOf(span.Context()))

	jsc := jaegerSpanContext(child)
	id := child.Context().TraceID()
	if jsc.TraceID().High != id.High || jsc.TraceID().Low != id.Low {
		t.Fatal("Invalid jaeger trace ID")
	}
	if uint64(jsc.SpanID()) != child.Context().SpanID() {
		t.Fatal("Invalid jaeger span ID")
	}
	if uint64(jsc.ParentID()) != span.Context().SpanID() {
		t.Fatal("Invalid jaeger parent ID")
	}
	baggage := ""
	jsc.ForeachBaggageItem(func(k, v string) bool {
		if k == "key" {
			baggage = v
		}
		return true
	})
	if baggage != "value" {
		t.Fatal("Invalid jaeger baggage")
	}

	child.Finish()
	span.Finish()
	tr.Stop()
}

func TestJaegerDisabled(t *testing.T) {

	jaeger := NewJaegerWriter(JaegerOptions{}, nil, nil, jaegerNewStdout())
	if jaeger != nil {
		t.Fatal("Valid jaeger")
	}
}

func TestJaegerTags(t *testing.T) {

	tags := parseJaegerTags("b=2,a=1")
	if len(tags) != 2 {
		t.Fatal("Invalid tags")
	}
	if tags[0].Key != "a" || tags[0].Value != "1" {
		t.Fatal("Invalid first tag")
	}
}

func TestJaegerLogFields(t *testing.T) {

	fields := jaegerLogFields(map[string]interface{}{
		"b":   true,
		"i":   1,
		"s":   "s",
		"err": errors.New("e"),
		"nil": nil,
	})
	if len(fields) != 4 {
		t.Fatal("Invalid log fields")
	}
}
