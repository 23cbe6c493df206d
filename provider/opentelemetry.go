package provider

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/tracer"
	"github.com/devopsext/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	controller "go.opentelemetry.io/otel/sdk/metric/controller/basic"
	processor "go.opentelemetry.io/otel/sdk/metric/processor/basic"
	"go.opentelemetry.io/otel/sdk/metric/selector/simple"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

type OpentelemetryOptions struct {
	ServiceName string
	Version     string
	Environment string
	Attributes  string
}

type OpentelemetryTracerOptions struct {
	OpentelemetryOptions
	AgentHost string
	AgentPort int
}

type OpentelemetryMeterOptions struct {
	OpentelemetryOptions
	AgentHost     string
	AgentPort     int
	Prefix        string
	CollectPeriod int64
}

type opentelemetryIDsKey struct{}

type opentelemetryIDs struct {
	traceID trace.TraceID
	spanID  trace.SpanID
}

// opentelemetryIDGenerator hands out the ids of the span being replayed.
type opentelemetryIDGenerator struct{}

// OpentelemetryWriter exports finished spans over OTLP keeping their ids.
type OpentelemetryWriter struct {
	options    OpentelemetryTracerOptions
	logger     common.Logger
	tracer     trace.Tracer
	provider   *sdktrace.TracerProvider
	attributes []attribute.KeyValue
	traces     common.Counter
}

type OpentelemetryCounter struct {
	counter metric.Int64Counter
	labels  []attribute.KeyValue
}

type OpentelemetryGauge struct {
	value uint64
}

type OpentelemetryMeter struct {
	options    OpentelemetryMeterOptions
	logger     common.Logger
	meter      *metric.Meter
	controller *controller.Controller
	exporter   *otlpmetric.Exporter
	attributes []attribute.KeyValue
}

func (g opentelemetryIDGenerator) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {

	ids, _ := ctx.Value(opentelemetryIDsKey{}).(opentelemetryIDs)
	return ids.traceID, ids.spanID
}

func (g opentelemetryIDGenerator) NewSpanID(ctx context.Context, traceID trace.TraceID) trace.SpanID {

	ids, _ := ctx.Value(opentelemetryIDsKey{}).(opentelemetryIDs)
	return ids.spanID
}

func opentelemetryTraceID(id common.TraceID) trace.TraceID {

	tID, _ := trace.TraceIDFromHex(id.Hex())
	return tID
}

func opentelemetrySpanID(id uint64) trace.SpanID {

	sID, _ := trace.SpanIDFromHex(common.SpanIDUint64ToHex(id))
	return sID
}

func opentelemetryAttribute(key string, value interface{}) attribute.KeyValue {

	attr := attribute.Key(key)
	switch value := value.(type) {
	case bool:
		return attr.Bool(value)
	case int:
		return attr.Int(value)
	case int64:
		return attr.Int64(value)
	case string:
		return attr.String(value)
	case float64:
		return attr.Float64(value)
	default:
		return attr.String(fmt.Sprintf("%v", value))
	}
}

func opentelemetryContext(span *tracer.Span) context.Context {

	sc := span.Context()
	traceID := opentelemetryTraceID(sc.TraceID())

	ctx := context.WithValue(context.Background(), opentelemetryIDsKey{}, opentelemetryIDs{
		traceID: traceID,
		spanID:  opentelemetrySpanID(sc.SpanID()),
	})

	if sc.ParentID() == 0 {
		return ctx
	}

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     opentelemetrySpanID(sc.ParentID()),
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, parent)
}

func (otw *OpentelemetryWriter) replay(span *tracer.Span) {

	attributes := append([]attribute.KeyValue{}, otw.attributes...)
	attributes = append(attributes,
		attribute.String("service", span.ServiceName()),
		attribute.String("resource", span.ResourceName()),
	)
	if t := span.SpanType(); !utils.IsEmpty(t) {
		attributes = append(attributes, attribute.String("span.type", t))
	}
	for k, v := range span.Tags() {
		attributes = append(attributes, opentelemetryAttribute(k, v))
	}
	for k, v := range span.Metrics() {
		attributes = append(attributes, attribute.Float64(k, v))
	}

	_, s := otw.tracer.Start(opentelemetryContext(span), span.Name(),
		trace.WithTimestamp(span.StartTime()),
		trace.WithAttributes(attributes...),
	)

	if span.IsError() {
		msg, _ := span.Tag("error.message")
		s.SetStatus(codes.Error, fmt.Sprintf("%v", msg))
	}
	s.End(trace.WithTimestamp(span.StartTime().Add(span.Duration())))
}

func (otw *OpentelemetryWriter) Write(spans []*tracer.Span) {
	for _, span := range spans {
		otw.replay(span)
	}
}

func (otw *OpentelemetryWriter) Start() {
	otw.logger.Debug("Opentelemetry writer is started on %s:%d", otw.options.AgentHost, otw.options.AgentPort)
}

func (otw *OpentelemetryWriter) Close() {

	if otw.provider == nil {
		return
	}
	if err := otw.provider.Shutdown(context.Background()); err != nil {
		otw.logger.Error(err)
	}
}

func (otw *OpentelemetryWriter) IncrementTraceCount() {
	otw.traces.Inc()
}

func parseOpentelemetryAttributes(sAttributes string) []attribute.KeyValue {

	attributes := make([]attribute.KeyValue, 0)
	for _, kv := range common.MapToArray(common.GetKeyValues(sAttributes)) {
		pair := strings.SplitN(kv, "=", 2)
		attributes = append(attributes, attribute.String(pair[0], pair[1]))
	}
	return attributes
}

func opentelemetryResource(ctx context.Context, options OpentelemetryOptions) (*resource.Resource, error) {

	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(options.ServiceName),
			semconv.ServiceVersionKey.String(options.Version),
			semconv.DeploymentEnvironmentKey.String(options.Environment),
		),
	)
}

func startOpentelemetryTracer(options OpentelemetryTracerOptions, stdout *Stdout) (trace.Tracer, *sdktrace.TracerProvider) {

	if utils.IsEmpty(options.AgentHost) {
		return nil, nil
	}

	ctx := context.Background()

	res, err := opentelemetryResource(ctx, options.OpentelemetryOptions)
	if err != nil {
		stdout.Error(err)
		return nil, nil
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort)),
	)
	if err != nil {
		stdout.Error(err)
		return nil, nil
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
		sdktrace.WithIDGenerator(opentelemetryIDGenerator{}),
	)

	return tracerProvider.Tracer("github.com/devopsext/tracecore"), tracerProvider
}

func NewOpentelemetryWriter(options OpentelemetryTracerOptions, meter common.Meter, logger common.Logger, stdout *Stdout) *OpentelemetryWriter {

	if logger == nil {
		logger = stdout
	}

	t, provider := startOpentelemetryTracer(options, stdout)
	if t == nil {
		stdout.Debug("Opentelemetry writer is disabled.")
		return nil
	}

	if meter == nil {
		meter = common.NewMetrics()
	}

	logger.Info("Opentelemetry writer is up...")

	return &OpentelemetryWriter{
		options:    options,
		logger:     logger,
		tracer:     t,
		provider:   provider,
		attributes: parseOpentelemetryAttributes(options.Attributes),
		traces:     meter.Counter("opentelemetry_traces", "Traces seen by Opentelemetry writer", nil),
	}
}

func (otc *OpentelemetryCounter) Inc() common.Counter {
	return otc.Add(1)
}

func (otc *OpentelemetryCounter) Add(value int) common.Counter {

	otc.counter.Add(context.Background(), int64(value), otc.labels...)
	return otc
}

func (otg *OpentelemetryGauge) Set(value float64) common.Gauge {

	atomic.StoreUint64(&otg.value, math.Float64bits(value))
	return otg
}

func (otg *OpentelemetryGauge) get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&otg.value))
}

func (otm *OpentelemetryMeter) name(name string, prefixes ...string) string {

	var names []string

	if !utils.IsEmpty(otm.options.Prefix) {
		names = append(names, otm.options.Prefix)
	}
	names = append(names, prefixes...)
	names = append(names, name)
	return strings.Join(names, ".")
}

func (otm *OpentelemetryMeter) labels(labels common.Labels) []attribute.KeyValue {

	attributes := append([]attribute.KeyValue{}, otm.attributes...)
	for _, kv := range common.MapToArray(labels) {
		pair := strings.SplitN(kv, "=", 2)
		attributes = append(attributes, attribute.String(pair[0], pair[1]))
	}
	return attributes
}

func (otm *OpentelemetryMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {

	counter := metric.Must(*otm.meter).NewInt64Counter(otm.name(name, prefixes...), metric.WithDescription(description))
	return &OpentelemetryCounter{
		counter: counter,
		labels:  otm.labels(labels),
	}
}

func (otm *OpentelemetryMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {

	gauge := &OpentelemetryGauge{}
	attributes := otm.labels(labels)

	metric.Must(*otm.meter).NewFloat64GaugeObserver(otm.name(name, prefixes...),
		func(_ context.Context, result metric.Float64ObserverResult) {
			result.Observe(gauge.get(), attributes...)
		},
		metric.WithDescription(description),
	)
	return gauge
}

func (otm *OpentelemetryMeter) Stop() {

	ctx := context.Background()
	if otm.controller != nil {
		if err := otm.controller.Stop(ctx); err != nil {
			otm.logger.Error(err)
		}
	}
	if otm.exporter != nil {
		if err := otm.exporter.Shutdown(ctx); err != nil {
			otm.logger.Error(err)
		}
	}
}

func startOpentelemetryMeter(options OpentelemetryMeterOptions, stdout *Stdout) (*metric.Meter, *controller.Controller, *otlpmetric.Exporter) {

	if utils.IsEmpty(options.AgentHost) {
		return nil, nil, nil
	}

	ctx := context.Background()

	res, err := opentelemetryResource(ctx, options.OpentelemetryOptions)
	if err != nil {
		stdout.Error(err)
		return nil, nil, nil
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithEndpoint(fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort)),
	)
	if err != nil {
		stdout.Error(err)
		return nil, nil, nil
	}

	collectPeriod := options.CollectPeriod
	if collectPeriod == 0 {
		collectPeriod = 1000
	}

	cont := controller.New(
		processor.New(
			simple.NewWithExactDistribution(),
			metricExporter,
		),
		controller.WithCollectPeriod(time.Duration(collectPeriod)*time.Millisecond),
		controller.WithExporter(metricExporter),
		controller.WithResource(res),
	)

	err = cont.Start(ctx)
	if err != nil {
		stdout.Error(err)
		return nil, nil, nil
	}

	meter := cont.MeterProvider().Meter("github.com/devopsext/tracecore")
	return &meter, cont, metricExporter
}

func NewOpentelemetryMeter(options OpentelemetryMeterOptions, logger common.Logger, stdout *Stdout) *OpentelemetryMeter {

	if logger == nil {
		logger = stdout
	}

	meter, controller, exporter := startOpentelemetryMeter(options, stdout)
	if meter == nil {
		stdout.Debug("Opentelemetry meter is disabled.")
		return nil
	}

	logger.Info("Opentelemetry meter is up...")

	return &OpentelemetryMeter{
		options:    options,
		logger:     logger,
		meter:      meter,
		controller: controller,
		exporter:   exporter,
		attributes: parseOpentelemetryAttributes(options.Attributes),
	}
}
