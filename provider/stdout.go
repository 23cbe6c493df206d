package provider

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"text/template"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/tracer"
	"github.com/sirupsen/logrus"
)

type StdoutOptions struct {
	Format          string
	Level           string
	Template        string
	TimestampFormat string
	Version         string
	TextColors      bool
	Spans           bool
}

// StdoutWriter prints finished traces, one log line per span.
type StdoutWriter struct {
	stdout *Stdout
	traces common.Counter
}

type Stdout struct {
	log          *logrus.Logger
	options      StdoutOptions
	callerOffset int
}

type templateFormatter struct {
	template        *template.Template
	timestampFormat string
}

func (f *templateFormatter) Format(entry *logrus.Entry) ([]byte, error) {

	r := entry.Message
	m := make(map[string]interface{})

	for k, v := range entry.Data {
		switch v := v.(type) {
		case error:
			m[k] = v.Error()
		default:
			m[k] = v
		}
	}

	m["msg"] = entry.Message
	m["time"] = entry.Time.Format(f.timestampFormat)
	m["level"] = entry.Level.String()

	var err error

	if f.template != nil {

		var b bytes.Buffer
		err = f.template.Execute(&b, m)
		if err == nil {

			r = fmt.Sprintf("%s\n", b.String())
		}
	}

	return []byte(r), err
}

func (so *Stdout) addSpanFields(span common.TracerSpan, fields logrus.Fields) logrus.Fields {

	if span == nil {
		return fields
	}

	ctx := span.GetContext()
	if ctx == nil {
		return fields
	}

	fields["trace_id"] = ctx.GetTraceID().String()
	fields["span_id"] = strconv.FormatUint(ctx.GetSpanID(), 10)
	return fields
}

func (so *Stdout) addCallerFields(offset int) logrus.Fields {

	function, file, line := common.GetCallerInfo(so.callerOffset + offset)
	return logrus.Fields{
		"file": fmt.Sprintf("%s:%d", file, line),
		"func": function,
	}
}

func prepare(message string, args ...interface{}) string {

	if len(args) > 0 {
		return fmt.Sprintf(message, args...)
	} else {
		return message
	}
}

func (so *Stdout) exists(level logrus.Level, obj interface{}, args ...interface{}) (bool, string) {

	if obj == nil {
		return false, ""
	}

	message := ""

	switch v := obj.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = "not implemented"
	}

	flag := message != "" && so.log.IsLevelEnabled(level)
	if flag {
		message = prepare(message, args...)
	}
	return flag, message
}

// write logs with caller fields of the frame that called a level method,
// plus span ids when span is set.
func (so *Stdout) write(level logrus.Level, span common.TracerSpan, obj interface{}, args ...interface{}) {

	exists, message := so.exists(level, obj, args...)
	if !exists {
		return
	}
	so.log.WithFields(so.addSpanFields(span, so.addCallerFields(4))).Log(level, message)
}

func (so *Stdout) Info(obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.InfoLevel, nil, obj, args...)
	return so
}

func (so *Stdout) SpanInfo(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.InfoLevel, span, obj, args...)
	return so
}

func (so *Stdout) Warn(obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.WarnLevel, nil, obj, args...)
	return so
}

func (so *Stdout) SpanWarn(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.WarnLevel, span, obj, args...)
	return so
}

func (so *Stdout) Error(obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.ErrorLevel, nil, obj, args...)
	return so
}

func (so *Stdout) SpanError(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.ErrorLevel, span, obj, args...)
	return so
}

func (so *Stdout) Debug(obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.DebugLevel, nil, obj, args...)
	return so
}

func (so *Stdout) SpanDebug(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.DebugLevel, span, obj, args...)
	return so
}

func (so *Stdout) Panic(obj interface{}, args ...interface{}) {
	so.write(logrus.PanicLevel, nil, obj, args...)
}

func (so *Stdout) SpanPanic(span common.TracerSpan, obj interface{}, args ...interface{}) {
	so.write(logrus.PanicLevel, span, obj, args...)
}

func (so *Stdout) Stack(offset int) common.Logger {
	so.callerOffset = so.callerOffset - offset
	return so
}

func parseLevel(level string) logrus.Level {

	switch level {
	case "error":
		return logrus.ErrorLevel
	case "panic":
		return logrus.PanicLevel
	case "warn":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

func newLog(options StdoutOptions) *logrus.Logger {

	log := logrus.New()

	switch options.Format {
	case "json":
		formatter := &logrus.JSONFormatter{}
		formatter.TimestampFormat = options.TimestampFormat
		log.SetFormatter(formatter)
	case "template":
		t, err := template.New("").Parse(options.Template)
		if err != nil {
			log.Panic(err)
		}
		log.SetFormatter(&templateFormatter{template: t, timestampFormat: options.TimestampFormat})
	default:
		formatter := &logrus.TextFormatter{}
		formatter.TimestampFormat = options.TimestampFormat
		formatter.ForceColors = options.TextColors
		formatter.FullTimestamp = true
		log.SetFormatter(formatter)
	}

	log.SetLevel(parseLevel(options.Level))

	log.SetOutput(os.Stdout)
	return log
}

func spanFields(span *tracer.Span) logrus.Fields {

	sc := span.Context()
	fields := logrus.Fields{
		"trace_id":  sc.TraceID().String(),
		"span_id":   strconv.FormatUint(sc.SpanID(), 10),
		"parent_id": strconv.FormatUint(sc.ParentID(), 10),
		"service":   span.ServiceName(),
		"resource":  span.ResourceName(),
		"duration":  span.Duration().String(),
	}
	if t := span.SpanType(); t != "" {
		fields["type"] = t
	}
	if span.IsError() {
		fields["error"] = true
	}
	if priority, ok := span.SamplingPriority(); ok {
		fields["priority"] = common.PriorityName(priority)
	}
	for k, v := range span.Tags() {
		fields["tag."+k] = v
	}
	return fields
}

func (sw *StdoutWriter) Write(spans []*tracer.Span) {

	for _, span := range spans {
		sw.stdout.log.WithFields(spanFields(span)).Infoln(span.Name())
	}
}

func (sw *StdoutWriter) Start() {
	sw.stdout.Debug("Stdout writer is started.")
}

func (sw *StdoutWriter) Close() {
	sw.stdout.Debug("Stdout writer is closed.")
}

func (sw *StdoutWriter) IncrementTraceCount() {
	sw.traces.Inc()
}

func NewStdoutWriter(stdout *Stdout, meter common.Meter) *StdoutWriter {

	if stdout == nil || !stdout.options.Spans {
		return nil
	}
	if meter == nil {
		meter = common.NewMetrics()
	}
	return &StdoutWriter{
		stdout: stdout,
		traces: meter.Counter("stdout_traces", "Traces seen by stdout writer", nil),
	}
}

func (so *Stdout) SetCallerOffset(offset int) {
	so.callerOffset = offset
}

func NewStdout(options StdoutOptions) *Stdout {

	log := newLog(options)

	return &Stdout{
		log:          log,
		options:      options,
		callerOffset: 1,
	}
}
