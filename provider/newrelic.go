package provider

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/tracer"
	utils "github.com/devopsext/utils"
	telemetry "github.com/newrelic/newrelic-telemetry-sdk-go/telemetry"
	"github.com/sirupsen/logrus"
)

type NewRelicOptions struct {
	ApiKey      string
	ServiceName string
	Environment string
	Version     string
	Attributes  string
	Debug       bool
}

type NewRelicTracerOptions struct {
	NewRelicOptions
	Endpoint string
}

type NewRelicLoggerOptions struct {
	NewRelicOptions
	Endpoint  string
	AgentHost string
	AgentPort int
	Level     string
}

type NewRelicMeterOptions struct {
	NewRelicOptions
	Endpoint string
	Prefix   string
}

// NewRelicWriter sends finished spans to the trace API through a harvester.
type NewRelicWriter struct {
	harvester *telemetry.Harvester
	options   NewRelicTracerOptions
	logger    common.Logger
	traces    common.Counter
}

type NewRelicLogger struct {
	harvester    *telemetry.Harvester
	connection   *net.TCPConn
	stdout       *Stdout
	log          *logrus.Logger
	options      NewRelicLoggerOptions
	callerOffset int
}

type NewRelicCounter struct {
	meter      *NewRelicMeter
	name       string
	attributes map[string]interface{}
}

type NewRelicGauge struct {
	meter      *NewRelicMeter
	name       string
	attributes map[string]interface{}
}

type NewRelicMeter struct {
	harvester *telemetry.Harvester
	options   NewRelicMeterOptions
	logger    common.Logger
}

func newrelicAttributes(s string) map[string]interface{} {

	attributes := make(map[string]interface{})
	for k, v := range common.GetKeyValues(s) {
		attributes[k] = v
	}
	return attributes
}

func newrelicConfigs(options NewRelicOptions, stdout *Stdout, cfgs ...func(*telemetry.Config)) []func(*telemetry.Config) {

	cfgs = append(cfgs,
		telemetry.ConfigAPIKey(options.ApiKey),
		telemetry.ConfigCommonAttributes(newrelicAttributes(options.Attributes)),
	)

	if options.Debug {
		cfgs = append(cfgs,
			telemetry.ConfigBasicErrorLogger(stdout.log.Writer()),
			telemetry.ConfigBasicDebugLogger(stdout.log.Writer()),
		)
	}
	return cfgs
}

func newrelicSpan(span *tracer.Span) telemetry.Span {

	sc := span.Context()

	attributes := map[string]interface{}{
		"resource": span.ResourceName(),
	}
	if t := span.SpanType(); !utils.IsEmpty(t) {
		attributes["span.type"] = t
	}
	for k, v := range span.Tags() {
		attributes[k] = v
	}
	for k, v := range span.Metrics() {
		attributes[k] = v
	}
	if span.IsError() {
		attributes["error"] = true
	}

	parentID := ""
	if sc.ParentID() != 0 {
		parentID = common.SpanIDUint64ToHex(sc.ParentID())
	}

	return telemetry.Span{
		ID:          common.SpanIDUint64ToHex(sc.SpanID()),
		TraceID:     sc.TraceID().Hex(),
		ParentID:    parentID,
		Name:        span.Name(),
		ServiceName: span.ServiceName(),
		Timestamp:   span.StartTime(),
		Duration:    span.Duration(),
		Attributes:  attributes,
	}
}

func (nr *NewRelicWriter) Write(spans []*tracer.Span) {

	for _, span := range spans {
		if err := nr.harvester.RecordSpan(newrelicSpan(span)); err != nil {
			nr.logger.SpanError(span, err)
		}
	}
}

func (nr *NewRelicWriter) Start() {
	nr.logger.Debug("NewRelic writer is started on %s", nr.options.Endpoint)
}

func (nr *NewRelicWriter) Close() {
	nr.harvester.HarvestNow(context.Background())
}

func (nr *NewRelicWriter) IncrementTraceCount() {
	nr.traces.Inc()
}

func NewNewRelicWriter(options NewRelicTracerOptions, meter common.Meter, logger common.Logger, stdout *Stdout) *NewRelicWriter {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.Endpoint) {
		stdout.Debug("NewRelic writer is disabled.")
		return nil
	}

	harvester, err := telemetry.NewHarvester(newrelicConfigs(options.NewRelicOptions, stdout,
		telemetry.ConfigSpansURLOverride(options.Endpoint),
	)...)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	if meter == nil {
		meter = common.NewMetrics()
	}

	logger.Info("NewRelic writer is up...")

	return &NewRelicWriter{
		harvester: harvester,
		options:   options,
		logger:    logger,
		traces:    meter.Counter("newrelic_traces", "Traces seen by NewRelic writer", nil),
	}
}

func (nr *NewRelicLogger) addSpanFields(span common.TracerSpan, fields logrus.Fields) logrus.Fields {

	if span == nil {
		return fields
	}

	ctx := span.GetContext()
	if ctx == nil {
		return fields
	}

	fields["trace.id"] = ctx.GetTraceID().Hex()
	fields["span.id"] = common.SpanIDUint64ToHex(ctx.GetSpanID())

	return fields
}

func (nr *NewRelicLogger) logToApi(level logrus.Level, message string, fields logrus.Fields) {

	if nr.harvester == nil {
		return
	}

	attributes := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		attributes[k] = v
	}
	attributes["level"] = level.String()

	err := nr.harvester.RecordLog(telemetry.Log{
		Timestamp:  time.Now(),
		Message:    message,
		Attributes: attributes,
	})
	if err != nil {
		nr.stdout.Error(err)
	}
}

// write sends a record to the agent connection when present, otherwise to
// the log API. Panic level panics after the record is handed over.
func (nr *NewRelicLogger) write(level logrus.Level, span common.TracerSpan, obj interface{}, args ...interface{}) {

	exists, fields, message := nr.exists(level, obj, args...)
	if !exists {
		return
	}
	fields = nr.addSpanFields(span, fields)

	if nr.log != nil {
		nr.log.WithFields(fields).Log(level, message)
		return
	}
	nr.logToApi(level, message, fields)
	if level == logrus.PanicLevel {
		panic(message)
	}
}

func (nr *NewRelicLogger) Info(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.InfoLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanInfo(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.InfoLevel, span, obj, args...)
	return nr
}

func (nr *NewRelicLogger) Warn(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.WarnLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanWarn(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.WarnLevel, span, obj, args...)
	return nr
}

func (nr *NewRelicLogger) Error(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.ErrorLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanError(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.ErrorLevel, span, obj, args...)
	return nr
}

func (nr *NewRelicLogger) Debug(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.DebugLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanDebug(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.DebugLevel, span, obj, args...)
	return nr
}

func (nr *NewRelicLogger) Panic(obj interface{}, args ...interface{}) {
	nr.write(logrus.PanicLevel, nil, obj, args...)
}

func (nr *NewRelicLogger) SpanPanic(span common.TracerSpan, obj interface{}, args ...interface{}) {
	nr.write(logrus.PanicLevel, span, obj, args...)
}

func (nr *NewRelicLogger) Stack(offset int) common.Logger {
	nr.callerOffset = nr.callerOffset - offset
	return nr
}

func (nr *NewRelicLogger) exists(level logrus.Level, obj interface{}, args ...interface{}) (bool, logrus.Fields, string) {

	message := ""

	switch v := obj.(type) {
	case nil:
		return false, nil, ""
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = "not implemented"
	}

	if utils.IsEmpty(message) {
		return false, nil, ""
	}
	if nr.log != nil && !nr.log.IsLevelEnabled(level) {
		return false, nil, ""
	}

	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}

	function, file, line := common.GetCallerInfo(nr.callerOffset + 6)
	fields := logrus.Fields{
		"file":    fmt.Sprintf("%s:%d", file, line),
		"func":    function,
		"service": nr.options.ServiceName,
		"version": nr.options.Version,
		"env":     nr.options.Environment,
	}

	for k, v := range common.GetKeyValues(nr.options.Attributes) {
		fields[k] = v
	}

	return true, fields, message
}

func (nr *NewRelicLogger) Stop() {
	if nr.connection != nil {
		nr.connection.Close()
	}
	if nr.harvester != nil {
		nr.harvester.HarvestNow(context.Background())
	}
}

func NewNewRelicLogger(options NewRelicLoggerOptions, logger common.Logger, stdout *Stdout) *NewRelicLogger {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.Endpoint) && utils.IsEmpty(options.AgentHost) {
		stdout.Debug("NewRelic logger is disabled.")
		return nil
	}

	var connection *net.TCPConn = nil
	var log *logrus.Logger = nil

	if utils.IsEmpty(options.Endpoint) && !utils.IsEmpty(options.AgentHost) {

		address := fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort)
		serverAddr, err := net.ResolveTCPAddr("tcp", address)
		if err != nil {
			stdout.Error(err)
			return nil
		}

		connection, err = net.DialTCP("tcp", nil, serverAddr)
		if err != nil {
			stdout.Error(err)
			return nil
		}

		formatter := &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		}
		formatter.TimestampFormat = time.RFC3339Nano

		log = logrus.New()
		log.SetFormatter(formatter)
		log.SetLevel(parseLevel(options.Level))

		if connection != nil {
			log.SetOutput(connection)
		}
	}

	var harvester *telemetry.Harvester = nil

	if !utils.IsEmpty(options.Endpoint) {

		cfgs := newrelicConfigs(options.NewRelicOptions, stdout,
			telemetry.ConfigLogsURLOverride(options.Endpoint),
		)

		h, err := telemetry.NewHarvester(cfgs...)
		if err != nil {
			stdout.Error(err)
			return nil
		}
		harvester = h
	}

	logger.Info("NewRelic logger is up...")

	return &NewRelicLogger{
		harvester:    harvester,
		connection:   connection,
		stdout:       stdout,
		log:          log,
		options:      options,
		callerOffset: 1,
	}
}

func (nrc *NewRelicCounter) Inc() common.Counter {
	return nrc.Add(1)
}

func (nrc *NewRelicCounter) Add(value int) common.Counter {

	nrc.meter.harvester.RecordMetric(telemetry.Count{
		Timestamp:  time.Now(),
		Name:       nrc.name,
		Value:      float64(value),
		Attributes: nrc.attributes,
	})
	return nrc
}

func (nrg *NewRelicGauge) Set(value float64) common.Gauge {

	nrg.meter.harvester.RecordMetric(telemetry.Gauge{
		Timestamp:  time.Now(),
		Name:       nrg.name,
		Value:      value,
		Attributes: nrg.attributes,
	})
	return nrg
}

func (nrm *NewRelicMeter) name(name string, prefixes ...string) string {

	var names []string

	if !utils.IsEmpty(nrm.options.Prefix) {
		names = append(names, nrm.options.Prefix)
	}

	names = append(names, prefixes...)
	names = append(names, name)
	return strings.Join(names, ".")
}

func (nrm *NewRelicMeter) attributes(labels common.Labels) map[string]interface{} {

	attributes := make(map[string]interface{})
	for k, v := range labels {
		attributes[k] = v
	}
	return attributes
}

func (nrm *NewRelicMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {

	return &NewRelicCounter{
		meter:      nrm,
		name:       nrm.name(name, prefixes...),
		attributes: nrm.attributes(labels),
	}
}

func (nrm *NewRelicMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {

	return &NewRelicGauge{
		meter:      nrm,
		name:       nrm.name(name, prefixes...),
		attributes: nrm.attributes(labels),
	}
}

func (nrm *NewRelicMeter) Stop() {
	if nrm.harvester != nil {
		nrm.harvester.HarvestNow(context.Background())
	}
}

func NewNewRelicMeter(options NewRelicMeterOptions, logger common.Logger, stdout *Stdout) *NewRelicMeter {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.Endpoint) {
		stdout.Debug("NewRelic meter is disabled.")
		return nil
	}

	cfgs := newrelicConfigs(options.NewRelicOptions, stdout,
		telemetry.ConfigMetricsURLOverride(options.Endpoint),
	)

	harvester, err := telemetry.NewHarvester(cfgs...)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	logger.Info("NewRelic meter is up...")

	return &NewRelicMeter{
		harvester: harvester,
		options:   options,
		logger:    logger,
	}
}
