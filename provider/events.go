package provider

import (
	"fmt"
	"sync"
	"time"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/tracer"
)

const ErrorTraceEvent = "trace error"

type EventsInterceptorOptions struct {
	Priority  int
	QueueSize int
}

type traceEvent struct {
	root       *tracer.Span
	attributes map[string]string
	begin      time.Time
	end        time.Time
}

// EventsInterceptor reports completed traces holding an errored span as
// events spanning the root. Spans pass through unchanged. Events are posted
// by a single worker, so a slow backend never blocks Span.Finish; when the
// queue is full the event is dropped.
type EventsInterceptor struct {
	options EventsInterceptorOptions
	events  common.Eventer
	logger  common.Logger
	queue   chan traceEvent
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

func (ei *EventsInterceptor) Priority() int {
	return ei.options.Priority
}

func (ei *EventsInterceptor) OnTraceComplete(spans []*tracer.Span) []*tracer.Span {

	var failed *tracer.Span
	for _, s := range spans {
		if s.IsError() {
			failed = s
			break
		}
	}
	if failed == nil {
		return spans
	}

	root := failed.Context().Trace().RootSpan()
	if root == nil {
		root = failed
	}

	attributes := map[string]string{
		"trace_id": root.Context().TraceID().String(),
		"service":  root.ServiceName(),
		"resource": root.ResourceName(),
		"span":     failed.Name(),
	}
	if msg, ok := failed.Tag(tracer.ErrorMessageTag); ok {
		attributes[tracer.ErrorMessageTag] = fmt.Sprintf("%v", msg)
	}

	begin := root.StartTime()
	ei.enqueue(traceEvent{
		root:       root,
		attributes: attributes,
		begin:      begin,
		end:        begin.Add(root.Duration()),
	})
	return spans
}

func (ei *EventsInterceptor) enqueue(e traceEvent) {

	ei.mu.Lock()
	defer ei.mu.Unlock()

	if ei.stopped {
		return
	}
	select {
	case ei.queue <- e:
	default:
		ei.logger.SpanWarn(e.root, "Trace event dropped, queue is full")
	}
}

func (ei *EventsInterceptor) run() {

	defer ei.wg.Done()
	for e := range ei.queue {
		if err := ei.events.Interval(ErrorTraceEvent, e.attributes, e.begin, e.end); err != nil {
			ei.logger.SpanWarn(e.root, "Trace event failed: %v", err)
		}
	}
}

// Stop posts the queued events and waits for the worker.
func (ei *EventsInterceptor) Stop() {

	ei.mu.Lock()
	if ei.stopped {
		ei.mu.Unlock()
		return
	}
	ei.stopped = true
	close(ei.queue)
	ei.mu.Unlock()

	ei.wg.Wait()
}

func NewEventsInterceptor(options EventsInterceptorOptions, events common.Eventer, logger common.Logger) *EventsInterceptor {

	if logger == nil {
		logger = common.NewLogs()
	}
	if options.QueueSize <= 0 {
		options.QueueSize = 100
	}

	ei := &EventsInterceptor{
		options: options,
		events:  events,
		logger:  logger,
		queue:   make(chan traceEvent, options.QueueSize),
	}
	ei.wg.Add(1)
	go ei.run()
	return ei
}
