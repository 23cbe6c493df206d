package provider

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/tracer"
	"github.com/devopsext/utils"
	"github.com/opentracing/opentracing-go"
	opentracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/uber/jaeger-client-go"
	jaegerConfig "github.com/uber/jaeger-client-go/config"
)

type JaegerOptions struct {
	ServiceName         string
	AgentHost           string
	AgentPort           int
	Endpoint            string
	User                string
	Password            string
	BufferFlushInterval int
	QueueSize           int
	Tags                string
	Version             string
}

// JaegerWriter reports finished spans to Jaeger with their original ids.
type JaegerWriter struct {
	options JaegerOptions
	tracer  opentracing.Tracer
	closer  io.Closer
	logger  common.Logger
	traces  common.Counter
}

type JaegerLogger struct {
	logger common.Logger
}

func jaegerLogFields(fields map[string]interface{}) []opentracingLog.Field {

	var logFields []opentracingLog.Field

	for k, v := range fields {

		if v == nil {
			continue
		}

		switch t := v.(type) {
		case bool:
			logFields = append(logFields, opentracingLog.Bool(k, t))
		case int:
			logFields = append(logFields, opentracingLog.Int(k, t))
		case int64:
			logFields = append(logFields, opentracingLog.Int64(k, t))
		case string:
			logFields = append(logFields, opentracingLog.String(k, t))
		case float32:
			logFields = append(logFields, opentracingLog.Float32(k, t))
		case float64:
			logFields = append(logFields, opentracingLog.Float64(k, t))
		case error:
			logFields = append(logFields, opentracingLog.Error(t))
		default:
			logFields = append(logFields, opentracingLog.String(k, fmt.Sprintf("%v", t)))
		}
	}
	return logFields
}

func jaegerSpanContext(span *tracer.Span) jaeger.SpanContext {

	sc := span.Context()
	id := sc.TraceID()

	baggage := make(map[string]string)
	sc.ForeachBaggageItem(func(k, v string) bool {
		baggage[k] = v
		return true
	})

	sampled := true
	if p, ok := sc.SamplingPriority(); ok {
		sampled = p > 0
	}

	return jaeger.NewSpanContext(
		jaeger.TraceID{High: id.High, Low: id.Low},
		jaeger.SpanID(sc.SpanID()),
		jaeger.SpanID(sc.ParentID()),
		sampled,
		baggage,
	)
}

func (j *JaegerWriter) replay(span *tracer.Span) {

	tags := opentracing.Tags{
		"service":  span.ServiceName(),
		"resource": span.ResourceName(),
	}
	if t := span.SpanType(); !utils.IsEmpty(t) {
		tags["span.type"] = t
	}
	for k, v := range span.Tags() {
		tags[k] = v
	}
	for k, v := range span.Metrics() {
		tags[k] = v
	}

	s := j.tracer.StartSpan(span.Name(),
		jaeger.SelfRef(jaegerSpanContext(span)),
		opentracing.StartTime(span.StartTime()),
		tags,
	)

	var records []opentracing.LogRecord
	if span.IsError() {
		s.SetTag("error", true)
		msg, _ := span.Tag("error.message")
		records = append(records, opentracing.LogRecord{
			Timestamp: span.StartTime().Add(span.Duration()),
			Fields:    jaegerLogFields(map[string]interface{}{"error.message": msg}),
		})
	}

	s.FinishWithOptions(opentracing.FinishOptions{
		FinishTime: span.StartTime().Add(span.Duration()),
		LogRecords: records,
	})
}

func (j *JaegerWriter) Write(spans []*tracer.Span) {
	for _, span := range spans {
		j.replay(span)
	}
}

func (j *JaegerWriter) Start() {
	j.logger.Debug("Jaeger writer is started for %s", j.options.ServiceName)
}

func (j *JaegerWriter) Close() {

	if j.closer == nil {
		return
	}
	if err := j.closer.Close(); err != nil {
		j.logger.Error(err)
	}
}

func (j *JaegerWriter) IncrementTraceCount() {
	j.traces.Inc()
}

func (j *JaegerLogger) Error(msg string) {
	j.logger.Stack(-2).Error(msg).Stack(2)
}

func (j *JaegerLogger) Infof(msg string, args ...interface{}) {

	if utils.IsEmpty(msg) {
		return
	}

	msg = strings.TrimSpace(msg)
	if args != nil {
		j.logger.Stack(-2).Info(msg, args...).Stack(2)
	} else {
		j.logger.Stack(-2).Info(msg).Stack(2)
	}
}

func parseJaegerTags(sTags string) []opentracing.Tag {

	tags := make([]opentracing.Tag, 0)
	for _, kv := range common.MapToArray(common.GetKeyValues(sTags)) {
		pair := strings.SplitN(kv, "=", 2)
		tags = append(tags, opentracing.Tag{Key: pair[0], Value: pair[1]})
	}
	return tags
}

func newJaegerTracer(options JaegerOptions, logger common.Logger, stdout *Stdout) (opentracing.Tracer, io.Closer) {

	disabled := utils.IsEmpty(options.AgentHost) && utils.IsEmpty(options.Endpoint)
	if disabled {
		return nil, nil
	}

	tags := parseJaegerTags(options.Tags)
	tags = append(tags, opentracing.Tag{
		Key:   "version",
		Value: options.Version,
	})

	cfg := &jaegerConfig.Configuration{

		ServiceName: options.ServiceName,
		Disabled:    disabled,
		Tags:        tags,

		// sampling is decided upstream, so keep everything that reaches the writer
		Sampler: &jaegerConfig.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},

		Reporter: &jaegerConfig.ReporterConfig{
			User:                options.User,
			Password:            options.Password,
			LocalAgentHostPort:  fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort),
			CollectorEndpoint:   options.Endpoint,
			BufferFlushInterval: time.Duration(options.BufferFlushInterval) * time.Second,
			QueueSize:           options.QueueSize,
		},
	}

	t, closer, err := cfg.NewTracer(
		jaegerConfig.Logger(&JaegerLogger{logger: logger}),
		jaegerConfig.Gen128Bit(true),
	)
	if err != nil {
		stdout.Error(err)
		return nil, nil
	}
	return t, closer
}

func NewJaegerWriter(options JaegerOptions, meter common.Meter, logger common.Logger, stdout *Stdout) *JaegerWriter {

	if logger == nil {
		logger = stdout
	}

	t, closer := newJaegerTracer(options, logger, stdout)
	if t == nil {
		stdout.Debug("Jaeger writer is disabled.")
		return nil
	}

	if meter == nil {
		meter = common.NewMetrics()
	}

	logger.Info("Jaeger writer is up...")

	return &JaegerWriter{
		options: options,
		tracer:  t,
		closer:  closer,
		logger:  logger,
		traces:  meter.Counter("jaeger_traces", "Traces seen by Jaeger writer", nil),
	}
}
