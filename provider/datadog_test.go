package provider

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/propagation"
	"github.com/devopsext/tracecore/tracer"
)

func datadogNewStdout() *Stdout {

	stdout := NewStdout(StdoutOptions{
		Format:          "template",
		Level:           "debug",
		Template:        "{{.msg}}",
		TimestampFormat: time.RFC3339Nano,
	})
	if stdout == nil {
		return nil
	}
	stdout.SetCallerOffset(1)
	return stdout
}

func datadogNewWriter(agentHost string) (*DataDogWriter, *Stdout) {

	stdout := datadogNewStdout()
	if stdout == nil {
		return nil, nil
	}

	datadog := NewDataDogWriter(DataDogTracerOptions{
		AgentHost: agentHost,
		AgentPort: 8126,
		DataDogOptions: DataDogOptions{
			ServiceName: "tracecore-datadog-writer-test",
			Tags:        "tag1=value1,,tag3=${key3:value3}",
			Debug:       true,
		},
	}, nil, nil, stdout)

	return datadog, stdout
}

func datadogNewMeter(agentHost string) (*DataDogMeter, *Stdout) {

	stdout := datadogNewStdout()
	if stdout == nil {
		return nil, nil
	}

	datadog := NewDataDogMeter(DataDogMeterOptions{
		AgentHost: agentHost,
		AgentPort: 8125,
		Prefix:    "test",
		DataDogOptions: DataDogOptions{
			ServiceName: "tracecore-datadog-meter-test",
			Tags:        "tag1=value1,,tag3=${key3:value3}",
			Debug:       true,
		},
	}, nil, stdout)

	return datadog, stdout
}

func datadogNewLogger(agentHost string) (*DataDogLogger, *Stdout) {

	stdout := datadogNewStdout()
	if stdout == nil {
		return nil, nil
	}

	datadog := NewDataDogLogger(DataDogLoggerOptions{
		AgentHost: agentHost,
		AgentPort: 10518,
		Level:     "debug",
		DataDogOptions: DataDogOptions{
			ServiceName: "tracecore-datadog-logger-test",
			Tags:        "tag1=value1,,tag3=${key3:value3}",
			Debug:       true,
		},
	}, nil, stdout)

	return datadog, stdout
}

func TestDataDogWriter(t *testing.T) {

	datadog, stdout := datadogNewWriter("localhost")
	if datadog == nil {
		t.Fatal("Invalid datadog")
	}

	tr := tracer.New(tracer.Options{ServiceName: "tracecore-datadog-writer-test"}, datadog, nil, stdout)

	root := tr.StartSpan(context.Background(), "root", tracer.ResourceName("GET /"))
	child := tr.StartSpan(context.Background(), "child", tracer.ChildOf(root.Context()), tracer.SpanType("db"))
	child.Error(errors.New("some-child-error"))
	child.Finish()
	root.Finish()

	extracted := propagation.NewExtractedContext(common.TraceID{Low: 42}, 7, 1, "synthetics", nil)
	remote := tr.StartSpan(context.Background(), "remote", tracer.FromExtracted(extracted))
	if remote.Context().ParentID() != 7 {
		t.Fatal("Invalid remote parent")
	}

	parent, err := dataDogParent(remote)
	if err != nil {
		t.Fatal(err)
	}
	if parent.TraceID() != 42 {
		t.Fatal("Invalid dd trace ID")
	}
	if parent.SpanID() != 7 {
		t.Fatal("Invalid dd parent ID")
	}
	remote.Finish()

	tr.Stop()
}

func TestDataDogWriterWrongAgentHost(t *testing.T) {

	datadog, _ := datadogNewWriter("")
	if datadog != nil {
		t.Fatal("Valid datadog")
	}
}

func TestDataDogInternalLogger(t *testing.T) {

	stdout := datadogNewStdout()
	if stdout == nil {
		t.Fatal("Invalid stdout")
	}

	internalLogger := DataDogInternalLogger{
		logger: stdout,
	}

	internalLogger.Log("Some message")
}

func TestDataDogMeter(t *testing.T) {

	datadog, _ := datadogNewMeter("localhost")
	if datadog == nil {
		t.Fatal("Invalid datadog")
	}

	counter := datadog.Counter("some", "description", common.Labels{"one": "1"}, "counter")
	if counter == nil {
		t.Fatal("Invalid counter")
	}

	c := counter.(*DataDogCounter)
	if c.name != "test.counter.some" {
		t.Fatal("Invalid counter name")
	}

	maxCounter := 5
	for i := 0; i < maxCounter; i++ {
		counter.Inc()
	}
	counter.Add(2)

	gauge := datadog.Gauge("rates", "description", nil)
	if gauge == nil {
		t.Fatal("Invalid gauge")
	}
	gauge.Set(0.5)

	datadog.Stop()
}

func TestDataDogMeterWrongAgentHost(t *testing.T) {

	datadog, _ := datadogNewMeter("")
	if datadog != nil {
		t.Fatal("Valid datadog")
	}
}

func TestDataDogLogger(t *testing.T) {

	datadog, stdout := datadogNewLogger("localhost")
	if datadog == nil {
		t.Fatal("Invalid datadog")
	}
	datadog.Info(nil)
	datadog.Info("info")
	datadog.Warn("warn")
	datadog.Debug("debug")

	datadog.Error("error")
	datadog.Error(errors.New("some error"))
	datadog.Error("error => %s", "message")

	tr := tracer.New(tracer.Options{ServiceName: "tracecore-datadog-logger-test"}, nil, nil, stdout)
	span := tr.StartSpan(context.Background(), "op")
	defer span.Finish()

	fields := datadog.addSpanFields(span, map[string]interface{}{})
	if fields["dd.trace_id"] != strconv.FormatUint(span.Context().TraceID().Low, 10) {
		t.Fatal("Invalid dd.trace_id")
	}
	if fields["dd.span_id"] != strconv.FormatUint(span.Context().SpanID(), 10) {
		t.Fatal("Invalid dd.span_id")
	}
	datadog.SpanInfo(span, "span info")
}
