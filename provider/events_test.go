package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/tracer"
)

type testEvent struct {
	name       string
	attributes map[string]string
	begin, end time.Time
}

type testEventer struct {
	mu     sync.Mutex
	events []testEvent
}

func (te *testEventer) Now(name string, attributes map[string]string) error {
	return te.At(name, attributes, time.Now())
}

func (te *testEventer) At(name string, attributes map[string]string, when time.Time) error {
	return te.Interval(name, attributes, when, when)
}

func (te *testEventer) Interval(name string, attributes map[string]string, begin, end time.Time) error {

	te.mu.Lock()
	defer te.mu.Unlock()
	te.events = append(te.events, testEvent{name: name, attributes: attributes, begin: begin, end: end})
	return nil
}

func (te *testEventer) Stop() {}

func eventsNewStdout() *Stdout {

	return NewStdout(StdoutOptions{
		Format:          "template",
		Level:           "debug",
		Template:        "{{.msg}}",
		TimestampFormat: time.RFC3339Nano,
	})
}

func TestGrafanaEventer(t *testing.T) {

	var annotation GrafanaAnnotation
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/annotations" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &annotation)
		w.Write([]byte(`{"message":"Annotation added","id":1}`))
	}))
	defer server.Close()

	grafana := NewGrafanaEventer(GrafanaEventerOptions{
		GrafanaOptions: GrafanaOptions{
			URL:     server.URL,
			ApiKey:  "key",
			Tags:    "team=sre",
			Timeout: 5,
		},
	}, nil, eventsNewStdout())
	if grafana == nil {
		t.Fatal("Invalid grafana")
	}
	defer grafana.Stop()

	begin := time.Unix(100, 0)
	err := grafana.Interval("deploy", map[string]string{"service": "api"}, begin, begin.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}

	if auth != "Bearer key" {
		t.Fatal("Invalid authorization")
	}
	if annotation.Text != "deploy" {
		t.Fatal("Invalid annotation text")
	}
	if annotation.Time != 100000 || annotation.TimeEnd != 101000 {
		t.Fatal("Invalid annotation interval")
	}
	if strings.Join(annotation.Tags, ",") != "service:api,team=sre" {
		t.Fatalf("Invalid annotation tags %v", annotation.Tags)
	}

	grafana.options.Endpoint = "/wrong"
	if grafana.Now("deploy", nil) == nil {
		t.Fatal("Valid wrong endpoint")
	}
}

func TestGrafanaEventerDisabled(t *testing.T) {

	if NewGrafanaEventer(GrafanaEventerOptions{}, nil, eventsNewStdout()) != nil {
		t.Fatal("Valid grafana")
	}
}

func TestSlackEventer(t *testing.T) {

	var message slackMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &message)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	slack := NewSlackEventer(SlackOptions{WebHook: server.URL, Timeout: 5}, nil, eventsNewStdout())
	if slack == nil {
		t.Fatal("Invalid slack")
	}
	defer slack.Stop()

	if err := slack.Now("deploy", map[string]string{"service": "api"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(message.Text, "*deploy*") {
		t.Fatal("Invalid slack text")
	}
	if !strings.Contains(message.Text, "service: `api`") {
		t.Fatal("Invalid slack attributes")
	}

	if NewSlackEventer(SlackOptions{}, nil, eventsNewStdout()) != nil {
		t.Fatal("Valid slack")
	}
}

func TestEventsInterceptor(t *testing.T) {

	eventer := &testEventer{}
	events := common.NewEvents()
	events.Register(eventer)

	tr := tracer.New(tracer.Options{ServiceName: "events-test"}, nil, nil, nil)
	interceptor := NewEventsInterceptor(EventsInterceptorOptions{Priority: 10}, events, nil)
	if err := tr.AddInterceptor(interceptor); err != nil {
		t.Fatal(err)
	}

	ok := tr.StartSpan(context.Background(), "ok")
	ok.Finish()
	if len(eventer.events) != 0 {
		t.Fatal("Unexpected event for healthy trace")
	}

	root := tr.StartSpan(context.Background(), "root", tracer.ResourceName("GET /items"))
	child := tr.StartSpan(context.Background(), "child", tracer.ChildOf(root.Context()))
	child.Error(errors.New("boom"))
	child.Finish()
	root.Finish()
	interceptor.Stop()

	if len(eventer.events) != 1 {
		t.Fatal("Invalid events count")
	}
	e := eventer.events[0]
	if e.name != ErrorTraceEvent {
		t.Fatal("Invalid event name")
	}
	if e.attributes["trace_id"] != root.Context().TraceID().String() {
		t.Fatal("Invalid event trace id")
	}
	if e.attributes["resource"] != "GET /items" {
		t.Fatal("Invalid event resource")
	}
	if e.attributes["span"] != "child" {
		t.Fatal("Invalid event span")
	}
	if e.attributes[tracer.ErrorMessageTag] != "boom" {
		t.Fatal("Invalid event error message")
	}
	if !e.begin.Equal(root.StartTime()) {
		t.Fatal("Invalid event begin")
	}
}

type blockingEventer struct {
	testEventer
	release chan struct{}
}

func (be *blockingEventer) Interval(name string, attributes map[string]string, begin, end time.Time) error {
	<-be.release
	return be.testEventer.Interval(name, attributes, begin, end)
}

func TestEventsInterceptorNotBlocking(t *testing.T) {

	eventer := &blockingEventer{release: make(chan struct{})}
	interceptor := NewEventsInterceptor(EventsInterceptorOptions{Priority: 10, QueueSize: 1}, eventer, nil)

	tr := tracer.New(tracer.Options{ServiceName: "events-test"}, nil, nil, nil)
	if err := tr.AddInterceptor(interceptor); err != nil {
		t.Fatal(err)
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 3; i++ {
			span := tr.StartSpan(context.Background(), "failed")
			span.Error(errors.New("boom"))
			span.Finish()
		}
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Span finish blocked by eventer")
	}

	close(eventer.release)
	interceptor.Stop()
	interceptor.Stop()

	eventer.mu.Lock()
	defer eventer.mu.Unlock()
	if n := len(eventer.events); n < 1 || n > 2 {
		t.Fatalf("Invalid events count %d", n)
	}

	// events after stop are ignored
	span := tr.StartSpan(context.Background(), "late")
	span.Error(errors.New("boom"))
	span.Finish()
}
