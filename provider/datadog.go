package provider

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/tracer"
	"github.com/devopsext/utils"
	"github.com/sirupsen/logrus"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
	ddtracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

type DataDogOptions struct {
	ServiceName string
	Environment string
	Version     string
	Tags        string
	Debug       bool
}

type DataDogTracerOptions struct {
	DataDogOptions
	AgentHost string
	AgentPort int
}

type DataDogLoggerOptions struct {
	DataDogOptions
	AgentHost string
	AgentPort int
	Level     string
}

type DataDogMeterOptions struct {
	DataDogOptions
	AgentHost string
	AgentPort int
	Prefix    string
}

type DataDogInternalLogger struct {
	logger common.Logger
}

// DataDogWriter replays finished spans through dd-trace-go keeping their ids.
type DataDogWriter struct {
	options DataDogTracerOptions
	logger  common.Logger
	traces  common.Counter
}

type DataDogLogger struct {
	connection   *net.UDPConn
	stdout       *Stdout
	log          *logrus.Logger
	options      DataDogLoggerOptions
	callerOffset int
}

type DataDogCounter struct {
	meter *DataDogMeter
	name  string
	tags  []string
}

type DataDogGauge struct {
	meter *DataDogMeter
	name  string
	tags  []string
}

type DataDogMeter struct {
	options DataDogMeterOptions
	logger  common.Logger
	client  *statsd.Client
}

func (ddtl *DataDogInternalLogger) Log(msg string) {
	ddtl.logger.Debug(msg)
}

func dataDogParent(span *tracer.Span) (ddtrace.SpanContext, error) {

	sc := span.Context()
	carrier := ddtracer.TextMapCarrier{
		"x-datadog-trace-id":  strconv.FormatUint(sc.TraceID().Low, 10),
		"x-datadog-parent-id": strconv.FormatUint(sc.ParentID(), 10),
	}
	if origin := sc.Origin(); !utils.IsEmpty(origin) {
		carrier["x-datadog-origin"] = origin
	}
	return ddtracer.Extract(carrier)
}

func (dd *DataDogWriter) replay(span *tracer.Span) error {

	sc := span.Context()
	opts := []ddtracer.StartSpanOption{
		ddtracer.WithSpanID(sc.SpanID()),
		ddtracer.StartTime(span.StartTime()),
		ddtracer.ServiceName(span.ServiceName()),
		ddtracer.ResourceName(span.ResourceName()),
	}

	if sc.ParentID() != 0 {
		parent, err := dataDogParent(span)
		if err != nil {
			return err
		}
		opts = append(opts, ddtracer.ChildOf(parent))
	}

	if t := span.SpanType(); !utils.IsEmpty(t) {
		opts = append(opts, ddtracer.SpanType(t))
	}
	for k, v := range span.Tags() {
		opts = append(opts, ddtracer.Tag(k, v))
	}
	for k, v := range span.Metrics() {
		opts = append(opts, ddtracer.Tag(k, v))
	}
	if span.Context().Trace().RootSpan() == span {
		if priority, ok := span.SamplingPriority(); ok {
			opts = append(opts, ddtracer.Tag(ext.SamplingPriority, priority))
		}
	}

	s := ddtracer.StartSpan(span.Name(), opts...)

	var finish []ddtrace.FinishOption
	finish = append(finish, ddtracer.FinishTime(span.StartTime().Add(span.Duration())))
	if span.IsError() {
		msg, _ := span.Tag("error.message")
		finish = append(finish, ddtracer.WithError(fmt.Errorf("%v", msg)))
	}
	s.Finish(finish...)
	return nil
}

func (dd *DataDogWriter) Write(spans []*tracer.Span) {

	// parents first so dd-trace-go sees complete local traces
	sorted := append([]*tracer.Span{}, spans...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime().Before(sorted[j].StartTime())
	})

	for _, span := range sorted {
		if err := dd.replay(span); err != nil {
			dd.logger.SpanError(span, err)
		}
	}
}

func (dd *DataDogWriter) Start() {

	addr := net.JoinHostPort(
		dd.options.AgentHost,
		strconv.Itoa(dd.options.AgentPort),
	)

	var opts []ddtracer.StartOption
	opts = append(opts, ddtracer.WithAgentAddr(addr))
	opts = append(opts, ddtracer.WithServiceName(dd.options.ServiceName))
	opts = append(opts, ddtracer.WithServiceVersion(dd.options.Version))
	opts = append(opts, ddtracer.WithEnv(dd.options.Environment))

	if dd.options.Debug {
		opts = append(opts, ddtracer.WithLogger(&DataDogInternalLogger{logger: dd.logger}))
	}

	for k, v := range common.GetKeyValues(dd.options.Tags) {
		opts = append(opts, ddtracer.WithGlobalTag(k, v))
	}

	ddtracer.Start(opts...)
	dd.logger.Debug("DataDog writer is started on %s", addr)
}

func (dd *DataDogWriter) Close() {
	ddtracer.Stop()
}

func (dd *DataDogWriter) IncrementTraceCount() {
	dd.traces.Inc()
}

func NewDataDogWriter(options DataDogTracerOptions, meter common.Meter, logger common.Logger, stdout *Stdout) *DataDogWriter {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.AgentHost) {
		stdout.Debug("DataDog writer is disabled.")
		return nil
	}

	if meter == nil {
		meter = common.NewMetrics()
	}

	logger.Info("DataDog writer is up...")

	return &DataDogWriter{
		options: options,
		logger:  logger,
		traces:  meter.Counter("datadog_traces", "Traces seen by DataDog writer", nil),
	}
}

func (dd *DataDogLogger) addSpanFields(span common.TracerSpan, fields logrus.Fields) logrus.Fields {

	if span == nil {
		return fields
	}

	ctx := span.GetContext()
	if ctx == nil {
		return fields
	}

	fields["dd.trace_id"] = strconv.FormatUint(ctx.GetTraceID().Low, 10)
	fields["dd.span_id"] = strconv.FormatUint(ctx.GetSpanID(), 10)
	return fields
}

func (dd *DataDogLogger) Info(obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.InfoLevel, obj, args...); exists {
		dd.log.WithFields(fields).Infoln(message)
	}
	return dd
}

func (dd *DataDogLogger) SpanInfo(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.InfoLevel, obj, args...); exists {
		fields = dd.addSpanFields(span, fields)
		dd.log.WithFields(fields).Infoln(message)
	}
	return dd
}

func (dd *DataDogLogger) Warn(obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.WarnLevel, obj, args...); exists {
		dd.log.WithFields(fields).Warnln(message)
	}
	return dd
}

func (dd *DataDogLogger) SpanWarn(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.WarnLevel, obj, args...); exists {
		fields = dd.addSpanFields(span, fields)
		dd.log.WithFields(fields).Warnln(message)
	}
	return dd
}

func (dd *DataDogLogger) Error(obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.ErrorLevel, obj, args...); exists {
		dd.log.WithFields(fields).Errorln(message)
	}
	return dd
}

func (dd *DataDogLogger) SpanError(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.ErrorLevel, obj, args...); exists {
		fields = dd.addSpanFields(span, fields)
		dd.log.WithFields(fields).Errorln(message)
	}
	return dd
}

func (dd *DataDogLogger) Debug(obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.DebugLevel, obj, args...); exists {
		dd.log.WithFields(fields).Debugln(message)
	}
	return dd
}

func (dd *DataDogLogger) SpanDebug(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {

	if exists, fields, message := dd.exists(logrus.DebugLevel, obj, args...); exists {
		fields = dd.addSpanFields(span, fields)
		dd.log.WithFields(fields).Debugln(message)
	}
	return dd
}

func (dd *DataDogLogger) Panic(obj interface{}, args ...interface{}) {

	if exists, fields, message := dd.exists(logrus.PanicLevel, obj, args...); exists {
		dd.log.WithFields(fields).Panicln(message)
	}
}

func (dd *DataDogLogger) SpanPanic(span common.TracerSpan, obj interface{}, args ...interface{}) {

	if exists, fields, message := dd.exists(logrus.PanicLevel, obj, args...); exists {
		fields = dd.addSpanFields(span, fields)
		dd.log.WithFields(fields).Panicln(message)
	}
}

func (dd *DataDogLogger) Stack(offset int) common.Logger {
	dd.callerOffset = dd.callerOffset - offset
	return dd
}

func (dd *DataDogLogger) exists(level logrus.Level, obj interface{}, args ...interface{}) (bool, logrus.Fields, string) {

	message := ""

	switch v := obj.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = "not implemented"
	}

	if utils.IsEmpty(message) || !dd.log.IsLevelEnabled(level) {
		return false, nil, ""
	}

	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}

	function, file, line := common.GetCallerInfo(dd.callerOffset + 5)
	fields := logrus.Fields{
		"file":    fmt.Sprintf("%s:%d", file, line),
		"func":    function,
		"service": dd.options.ServiceName,
		"version": dd.options.Version,
		"env":     dd.options.Environment,
	}
	return true, fields, message
}

func NewDataDogLogger(options DataDogLoggerOptions, logger common.Logger, stdout *Stdout) *DataDogLogger {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.AgentHost) {
		stdout.Debug("DataDog logger is disabled.")
		return nil
	}

	address := fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort)
	serverAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	connection, err := net.DialUDP("udp", nil, serverAddr)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	formatter := &logrus.JSONFormatter{}
	formatter.TimestampFormat = time.RFC3339Nano

	log := logrus.New()
	log.SetFormatter(formatter)
	log.SetLevel(parseLevel(options.Level))
	log.SetOutput(connection)

	logger.Info("DataDog logger is up...")

	return &DataDogLogger{
		connection:   connection,
		stdout:       stdout,
		log:          log,
		options:      options,
		callerOffset: 1,
	}
}

func (ddm *DataDogMeter) tags(labels common.Labels) []string {

	var tags []string

	for k, v := range common.GetKeyValues(ddm.options.Tags) {
		tags = append(tags, fmt.Sprintf("%s:%s", k, v))
	}
	tags = append(tags, fmt.Sprintf("dd.service:%s", ddm.options.ServiceName))
	tags = append(tags, fmt.Sprintf("dd.version:%s", ddm.options.Version))
	tags = append(tags, fmt.Sprintf("dd.env:%s", ddm.options.Environment))

	for k, v := range labels {
		tags = append(tags, fmt.Sprintf("%s:%s", k, v))
	}
	sort.Strings(tags)
	return tags
}

func (ddm *DataDogMeter) name(name string, prefixes ...string) string {

	var names []string

	if !utils.IsEmpty(ddm.options.Prefix) {
		names = append(names, ddm.options.Prefix)
	}
	if len(prefixes) > 0 {
		names = append(names, strings.Join(prefixes, "_"))
	}
	names = append(names, name)
	return strings.Join(names, ".")
}

func (ddmc *DataDogCounter) Inc() common.Counter {
	return ddmc.Add(1)
}

func (ddmc *DataDogCounter) Add(value int) common.Counter {

	if err := ddmc.meter.client.Count(ddmc.name, int64(value), ddmc.tags, 1); err != nil {
		ddmc.meter.logger.Error(err)
	}
	return ddmc
}

func (ddmg *DataDogGauge) Set(value float64) common.Gauge {

	if err := ddmg.meter.client.Gauge(ddmg.name, value, ddmg.tags, 1); err != nil {
		ddmg.meter.logger.Error(err)
	}
	return ddmg
}

func (ddm *DataDogMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {

	return &DataDogCounter{
		meter: ddm,
		name:  ddm.name(name, prefixes...),
		tags:  ddm.tags(labels),
	}
}

func (ddm *DataDogMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {

	return &DataDogGauge{
		meter: ddm,
		name:  ddm.name(name, prefixes...),
		tags:  ddm.tags(labels),
	}
}

func (ddm *DataDogMeter) Stop() {

	if err := ddm.client.Close(); err != nil {
		ddm.logger.Error(err)
	}
}

func NewDataDogMeter(options DataDogMeterOptions, logger common.Logger, stdout *Stdout) *DataDogMeter {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.AgentHost) {
		stdout.Debug("DataDog meter is disabled.")
		return nil
	}

	client, err := statsd.New(fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort))
	if err != nil {
		logger.Error(err)
		return nil
	}

	logger.Info("DataDog meter is up...")

	return &DataDogMeter{
		options: options,
		logger:  logger,
		client:  client,
	}
}
