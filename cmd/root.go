package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/propagation"
	"github.com/devopsext/tracecore/provider"
	"github.com/devopsext/tracecore/sampling"
	"github.com/devopsext/tracecore/scope"
	"github.com/devopsext/tracecore/tracer"
	"github.com/spf13/cobra"
)

var VERSION = "unknown"

var logs = common.NewLogs()
var metrics = common.NewMetrics()
var writers = tracer.NewWriters()
var events = common.NewEvents()
var stdout *provider.Stdout
var newrelicLogger *provider.NewRelicLogger
var eventsInterceptor *provider.EventsInterceptor
var mainWG sync.WaitGroup

type RootOptions struct {
	Logs    []string
	Meters  []string
	Writers []string
	Events  []string
	Steps   int
}

var rootOptions = RootOptions{

	Logs:    []string{"stdout"},
	Meters:  []string{},
	Writers: []string{"stdout"},
	Events:  []string{},
	Steps:   5,
}

var tracerOptions = tracer.Options{

	ServiceName:     "tracecore",
	Environment:     "none",
	ScopeDepthLimit: scope.DefaultDepthLimit,
	NamingSchema:    "v0",
}

var stdoutOptions = provider.StdoutOptions{

	Format:          "text",
	Level:           "info",
	Template:        "{{.file}} {{.msg}}",
	TimestampFormat: time.RFC3339Nano,
	TextColors:      true,
	Spans:           true,
}

var prometheusOptions = provider.PrometheusOptions{

	URL:    "/metrics",
	Listen: "127.0.0.1:8080",
	Prefix: "tracecore",
}

var jaegerOptions = provider.JaegerOptions{
	AgentHost:           "",
	AgentPort:           6831,
	Endpoint:            "",
	User:                "",
	Password:            "",
	BufferFlushInterval: 0,
	QueueSize:           0,
	Tags:                "",
}

var datadogOptions = provider.DataDogOptions{
	Tags: "",
}

var datadogTracerOptions = provider.DataDogTracerOptions{
	AgentHost: "",
	AgentPort: 8126,
}

var datadogLoggerOptions = provider.DataDogLoggerOptions{
	AgentHost: "",
	AgentPort: 10518,
	Level:     "info",
}

var datadogMeterOptions = provider.DataDogMeterOptions{
	AgentHost: "",
	AgentPort: 8125,
	Prefix:    "tracecore",
}

var opentelemetryOptions = provider.OpentelemetryOptions{
	Attributes: "",
}

var opentelemetryTracerOptions = provider.OpentelemetryTracerOptions{
	AgentHost: "",
	AgentPort: 4317,
}

var opentelemetryMeterOptions = provider.OpentelemetryMeterOptions{
	AgentHost: "",
	AgentPort: 4317,
	Prefix:    "tracecore",
}

var newrelicOptions = provider.NewRelicOptions{
	ApiKey:     "",
	Attributes: "",
}

var newrelicTracerOptions = provider.NewRelicTracerOptions{
	Endpoint: "",
}

var newrelicLoggerOptions = provider.NewRelicLoggerOptions{
	Endpoint:  "",
	AgentHost: "",
	AgentPort: 5171,
	Level:     "info",
}

var newrelicMeterOptions = provider.NewRelicMeterOptions{
	Endpoint: "",
	Prefix:   "tracecore",
}

var grafanaOptions = provider.GrafanaEventerOptions{
	GrafanaOptions: provider.GrafanaOptions{
		URL:     "",
		Timeout: 5,
	},
	Endpoint: "/api/annotations",
}

var slackOptions = provider.SlackOptions{
	WebHook: "",
	Timeout: 5,
}

var eventsInterceptorOptions = provider.EventsInterceptorOptions{
	Priority:  100,
	QueueSize: 100,
}

var sampleOptions = struct {
	Rate float64
	Bits int
}{
	Rate: 1,
	Bits: 64,
}

func interceptSyscall() {

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-c
		logs.Info("Exiting...")
		writers.Close()
		stopEvents()
		metrics.Stop()
		stopLogs()
		os.Exit(1)
	}()
}

func syncProviderOptions() {

	stdoutOptions.Version = VERSION
	if tracerOptions.Version == "" {
		tracerOptions.Version = VERSION
	}

	datadogOptions.ServiceName = tracerOptions.ServiceName
	datadogOptions.Environment = tracerOptions.Environment
	datadogOptions.Version = tracerOptions.Version
	datadogTracerOptions.DataDogOptions = datadogOptions
	datadogLoggerOptions.DataDogOptions = datadogOptions
	datadogMeterOptions.DataDogOptions = datadogOptions

	jaegerOptions.ServiceName = tracerOptions.ServiceName
	jaegerOptions.Version = tracerOptions.Version

	opentelemetryOptions.ServiceName = tracerOptions.ServiceName
	opentelemetryOptions.Environment = tracerOptions.Environment
	opentelemetryOptions.Version = tracerOptions.Version
	opentelemetryTracerOptions.OpentelemetryOptions = opentelemetryOptions
	opentelemetryMeterOptions.OpentelemetryOptions = opentelemetryOptions

	newrelicOptions.ServiceName = tracerOptions.ServiceName
	newrelicOptions.Environment = tracerOptions.Environment
	newrelicOptions.Version = tracerOptions.Version
	newrelicTracerOptions.NewRelicOptions = newrelicOptions
	newrelicLoggerOptions.NewRelicOptions = newrelicOptions
	newrelicMeterOptions.NewRelicOptions = newrelicOptions
}

func registerLogs() {

	stdout = provider.NewStdout(stdoutOptions)
	stdout.SetCallerOffset(2)
	if common.HasElem(rootOptions.Logs, "stdout") {
		logs.Register(stdout)
	}

	if common.HasElem(rootOptions.Logs, "datadog") {
		if l := provider.NewDataDogLogger(datadogLoggerOptions, logs, stdout); l != nil {
			logs.Register(l)
		}
	}

	if common.HasElem(rootOptions.Logs, "newrelic") {
		if l := provider.NewNewRelicLogger(newrelicLoggerOptions, logs, stdout); l != nil {
			newrelicLogger = l
			logs.Register(l)
		}
	}
}

func stopLogs() {
	if newrelicLogger != nil {
		newrelicLogger.Stop()
	}
}

func registerMeters() {

	if common.HasElem(rootOptions.Meters, "prometheus") {
		if m := provider.NewPrometheusMeter(prometheusOptions, logs, stdout); m != nil {
			m.StartInWaitGroup(&mainWG)
			metrics.Register(m)
		}
	}

	if common.HasElem(rootOptions.Meters, "datadog") {
		if m := provider.NewDataDogMeter(datadogMeterOptions, logs, stdout); m != nil {
			metrics.Register(m)
		}
	}

	if common.HasElem(rootOptions.Meters, "opentelemetry") {
		if m := provider.NewOpentelemetryMeter(opentelemetryMeterOptions, logs, stdout); m != nil {
			metrics.Register(m)
		}
	}

	if common.HasElem(rootOptions.Meters, "newrelic") {
		if m := provider.NewNewRelicMeter(newrelicMeterOptions, logs, stdout); m != nil {
			metrics.Register(m)
		}
	}
}

func registerWriters() {

	if common.HasElem(rootOptions.Writers, "stdout") {
		if w := provider.NewStdoutWriter(stdout, metrics); w != nil {
			writers.Register(w)
		}
	}

	if common.HasElem(rootOptions.Writers, "datadog") {
		if w := provider.NewDataDogWriter(datadogTracerOptions, metrics, logs, stdout); w != nil {
			writers.Register(w)
		}
	}

	if common.HasElem(rootOptions.Writers, "jaeger") {
		if w := provider.NewJaegerWriter(jaegerOptions, metrics, logs, stdout); w != nil {
			writers.Register(w)
		}
	}

	if common.HasElem(rootOptions.Writers, "opentelemetry") {
		if w := provider.NewOpentelemetryWriter(opentelemetryTracerOptions, metrics, logs, stdout); w != nil {
			writers.Register(w)
		}
	}

	if common.HasElem(rootOptions.Writers, "newrelic") {
		if w := provider.NewNewRelicWriter(newrelicTracerOptions, metrics, logs, stdout); w != nil {
			writers.Register(w)
		}
	}
}

func registerEvents(t *tracer.Tracer) {

	if common.HasElem(rootOptions.Events, "grafana") {
		if e := provider.NewGrafanaEventer(grafanaOptions, logs, stdout); e != nil {
			events.Register(e)
		}
	}

	if common.HasElem(rootOptions.Events, "slack") {
		if e := provider.NewSlackEventer(slackOptions, logs, stdout); e != nil {
			events.Register(e)
		}
	}

	if events.Len() == 0 {
		return
	}
	ei := provider.NewEventsInterceptor(eventsInterceptorOptions, events, logs)
	if err := t.AddInterceptor(ei); err != nil {
		ei.Stop()
		logs.Error(err)
		return
	}
	eventsInterceptor = ei
}

func stopEvents() {
	if eventsInterceptor != nil {
		eventsInterceptor.Stop()
	}
	events.Stop()
}

// demo runs a root span, a chain of scoped children, a worker continuation
// and an inject/extract round trip through http headers.
func demo(t *tracer.Tracer) {

	ctx := scope.NewExecutionContext(context.Background())

	root := t.StartSpan(ctx, "tracecore.demo", tracer.ResourceName("demo"))
	rootScope := t.Activate(ctx, root, true)
	logs.SpanInfo(root, "This message has correlation with span...")

	counter := metrics.Counter("demo_steps", "Demo steps", nil)

	for i := 0; i < rootOptions.Steps; i++ {

		span := t.StartSpan(ctx, "tracecore.step", tracer.Tag("step", i))
		s := t.Activate(ctx, span, true)

		time.Sleep(time.Duration(10*i) * time.Millisecond)
		counter.Inc()
		logs.SpanDebug(span, "Step %d", i)

		s.Close()
	}

	var wg sync.WaitGroup
	cont := t.Capture(ctx)
	wg.Add(1)

	go func() {
		defer wg.Done()

		wctx := scope.NewExecutionContext(context.Background())
		s, err := cont.Activate(wctx)
		if err != nil {
			logs.Error(err)
			return
		}
		defer s.Close()

		span := t.StartSpan(wctx, "tracecore.worker", tracer.SpanType("worker"))
		defer span.Finish()

		h := make(http.Header)
		if err := t.Inject(span.Context(), propagation.HTTPHeadersCarrier(h)); err != nil {
			logs.SpanError(span, err)
			return
		}

		remote := t.StartSpan(context.Background(), "http.request",
			tracer.FromExtracted(t.Extract(propagation.HTTPHeadersCarrier(h))),
			tracer.ServiceName(tracerOptions.ServiceName+"-downstream"),
			tracer.Tag("http.url", "/v1/items/42"),
			tracer.Tag("http.status_code", 200),
		)
		logs.SpanInfo(remote, "Continued trace %s from headers", remote.Context().TraceID())
		remote.Finish()
	}()

	wg.Wait()
	rootScope.Close()
}

func Execute() {

	rootCmd := &cobra.Command{
		Use:   "tracecore",
		Short: "Tracecore",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {

			syncProviderOptions()
			registerLogs()

			logs.Info("Booting...")

			registerMeters()
		},
		Run: func(cmd *cobra.Command, args []string) {

			registerWriters()

			t := tracer.New(tracerOptions, writers, metrics, logs)
			registerEvents(t)
			if !tracer.Install(t) {
				logs.Warn("Global tracer is already installed")
			}

			demo(tracer.Global())
			t.Stop()
			stopEvents()
			defer stopLogs()

			if common.HasElem(rootOptions.Meters, "prometheus") {
				logs.Info("Wait until it will be interrupted...")
			}
			mainWG.Wait()
		},
	}

	flags := rootCmd.PersistentFlags()

	flags.StringSliceVar(&rootOptions.Logs, "logs", rootOptions.Logs, "Log providers: stdout, datadog, newrelic")
	flags.StringSliceVar(&rootOptions.Meters, "meters", rootOptions.Meters, "Meter providers: prometheus, datadog, opentelemetry, newrelic")
	flags.StringSliceVar(&rootOptions.Writers, "writers", rootOptions.Writers, "Trace writers: stdout, datadog, jaeger, opentelemetry, newrelic")
	flags.StringSliceVar(&rootOptions.Events, "events", rootOptions.Events, "Eventers notified about errored traces: grafana, slack")
	flags.IntVar(&eventsInterceptorOptions.QueueSize, "events-queue-size", eventsInterceptorOptions.QueueSize, "Errored trace events waiting to be posted, extra events are dropped")
	flags.IntVar(&rootOptions.Steps, "steps", rootOptions.Steps, "Demo child spans")

	flags.StringVar(&tracerOptions.ServiceName, "service-name", tracerOptions.ServiceName, "Service name")
	flags.StringVar(&tracerOptions.Environment, "environment", tracerOptions.Environment, "Environment")
	flags.StringVar(&tracerOptions.Version, "service-version", tracerOptions.Version, "Service version")
	flags.StringVar(&tracerOptions.Tags, "tags", tracerOptions.Tags, "Global tags, comma separated list of name=value")
	flags.IntVar(&tracerOptions.ScopeDepthLimit, "scope-depth-limit", tracerOptions.ScopeDepthLimit, "Scope stack depth limit")
	flags.BoolVar(&tracerOptions.Trace128Bit, "trace-128-bit", tracerOptions.Trace128Bit, "Generate 128-bit trace ids")
	flags.StringVar(&tracerOptions.HeaderTags, "header-tags", tracerOptions.HeaderTags, "Headers to tags, comma separated list of header:tag")
	flags.StringVar(&tracerOptions.ServiceMapping, "service-mapping", tracerOptions.ServiceMapping, "Service mapping, comma separated list of from:to")
	flags.StringVar(&tracerOptions.PeerServiceMapping, "peer-service-mapping", tracerOptions.PeerServiceMapping, "Peer service mapping, comma separated list of from:to")
	flags.StringVar(&tracerOptions.NamingSchema, "naming-schema", tracerOptions.NamingSchema, "Naming schema: v0, v1")
	flags.StringVar(&tracerOptions.DisabledDecorators, "disabled-decorators", tracerOptions.DisabledDecorators, "Disabled tag decorators, comma separated")
	flags.StringVar(&tracerOptions.AgentRates, "agent-rates", tracerOptions.AgentRates, "Agent rate_by_service JSON")
	flags.BoolVar(&tracerOptions.WriteDropped, "write-dropped", tracerOptions.WriteDropped, "Write traces with drop priority")

	flags.StringVar(&stdoutOptions.Format, "stdout-format", stdoutOptions.Format, "Stdout format: json, text, template")
	flags.StringVar(&stdoutOptions.Level, "stdout-level", stdoutOptions.Level, "Stdout level: info, warn, error, debug, panic")
	flags.StringVar(&stdoutOptions.Template, "stdout-template", stdoutOptions.Template, "Stdout template")
	flags.StringVar(&stdoutOptions.TimestampFormat, "stdout-timestamp-format", stdoutOptions.TimestampFormat, "Stdout timestamp format")
	flags.BoolVar(&stdoutOptions.TextColors, "stdout-text-colors", stdoutOptions.TextColors, "Stdout text colors")
	flags.BoolVar(&stdoutOptions.Spans, "stdout-spans", stdoutOptions.Spans, "Stdout writes finished spans")

	flags.StringVar(&prometheusOptions.URL, "prometheus-url", prometheusOptions.URL, "Prometheus endpoint url")
	flags.StringVar(&prometheusOptions.Listen, "prometheus-listen", prometheusOptions.Listen, "Prometheus listen")
	flags.StringVar(&prometheusOptions.Prefix, "prometheus-prefix", prometheusOptions.Prefix, "Prometheus prefix")

	flags.StringVar(&jaegerOptions.AgentHost, "jaeger-agent-host", jaegerOptions.AgentHost, "Jaeger agent host")
	flags.IntVar(&jaegerOptions.AgentPort, "jaeger-agent-port", jaegerOptions.AgentPort, "Jaeger agent port")
	flags.StringVar(&jaegerOptions.Endpoint, "jaeger-endpoint", jaegerOptions.Endpoint, "Jaeger endpoint")
	flags.StringVar(&jaegerOptions.User, "jaeger-user", jaegerOptions.User, "Jaeger user")
	flags.StringVar(&jaegerOptions.Password, "jaeger-password", jaegerOptions.Password, "Jaeger password")
	flags.IntVar(&jaegerOptions.BufferFlushInterval, "jaeger-buffer-flush-interval", jaegerOptions.BufferFlushInterval, "Jaeger buffer flush interval")
	flags.IntVar(&jaegerOptions.QueueSize, "jaeger-queue-size", jaegerOptions.QueueSize, "Jaeger queue size")
	flags.StringVar(&jaegerOptions.Tags, "jaeger-tags", jaegerOptions.Tags, "Jaeger tags, comma separated list of name=value")

	flags.StringVar(&datadogOptions.Tags, "datadog-tags", datadogOptions.Tags, "DataDog tags")
	flags.BoolVar(&datadogOptions.Debug, "datadog-debug", datadogOptions.Debug, "DataDog debug")

	flags.StringVar(&datadogTracerOptions.AgentHost, "datadog-tracer-host", datadogTracerOptions.AgentHost, "DataDog tracer host")
	flags.IntVar(&datadogTracerOptions.AgentPort, "datadog-tracer-port", datadogTracerOptions.AgentPort, "Datadog tracer port")

	flags.StringVar(&datadogLoggerOptions.AgentHost, "datadog-logger-host", datadogLoggerOptions.AgentHost, "DataDog logger host")
	flags.IntVar(&datadogLoggerOptions.AgentPort, "datadog-logger-port", datadogLoggerOptions.AgentPort, "Datadog logger port")
	flags.StringVar(&datadogLoggerOptions.Level, "datadog-logger-level", datadogLoggerOptions.Level, "DataDog logger level: info, warn, error, debug, panic")

	flags.StringVar(&datadogMeterOptions.AgentHost, "datadog-meter-host", datadogMeterOptions.AgentHost, "DataDog meter host")
	flags.IntVar(&datadogMeterOptions.AgentPort, "datadog-meter-port", datadogMeterOptions.AgentPort, "Datadog meter port")
	flags.StringVar(&datadogMeterOptions.Prefix, "datadog-meter-prefix", datadogMeterOptions.Prefix, "DataDog meter prefix")

	flags.StringVar(&opentelemetryOptions.Attributes, "opentelemetry-attributes", opentelemetryOptions.Attributes, "Opentelemetry attributes")
	flags.StringVar(&opentelemetryTracerOptions.AgentHost, "opentelemetry-tracer-host", opentelemetryTracerOptions.AgentHost, "Opentelemetry tracer host")
	flags.IntVar(&opentelemetryTracerOptions.AgentPort, "opentelemetry-tracer-port", opentelemetryTracerOptions.AgentPort, "Opentelemetry tracer port")
	flags.StringVar(&opentelemetryMeterOptions.AgentHost, "opentelemetry-meter-host", opentelemetryMeterOptions.AgentHost, "Opentelemetry meter host")
	flags.IntVar(&opentelemetryMeterOptions.AgentPort, "opentelemetry-meter-port", opentelemetryMeterOptions.AgentPort, "Opentelemetry meter port")
	flags.StringVar(&opentelemetryMeterOptions.Prefix, "opentelemetry-meter-prefix", opentelemetryMeterOptions.Prefix, "Opentelemetry meter prefix")
	flags.Int64Var(&opentelemetryMeterOptions.CollectPeriod, "opentelemetry-meter-collect-period", opentelemetryMeterOptions.CollectPeriod, "Opentelemetry meter collect period in msecs")

	flags.StringVar(&newrelicOptions.ApiKey, "newrelic-api-key", newrelicOptions.ApiKey, "NewRelic API key")
	flags.StringVar(&newrelicOptions.Attributes, "newrelic-attributes", newrelicOptions.Attributes, "NewRelic attributes")
	flags.BoolVar(&newrelicOptions.Debug, "newrelic-debug", newrelicOptions.Debug, "NewRelic debug")
	flags.StringVar(&newrelicTracerOptions.Endpoint, "newrelic-tracer-endpoint", newrelicTracerOptions.Endpoint, "NewRelic trace API endpoint")
	flags.StringVar(&newrelicLoggerOptions.Endpoint, "newrelic-logger-endpoint", newrelicLoggerOptions.Endpoint, "NewRelic log API endpoint")
	flags.StringVar(&newrelicLoggerOptions.AgentHost, "newrelic-logger-host", newrelicLoggerOptions.AgentHost, "NewRelic agent TCP logs host")
	flags.IntVar(&newrelicLoggerOptions.AgentPort, "newrelic-logger-port", newrelicLoggerOptions.AgentPort, "NewRelic agent TCP logs port")
	flags.StringVar(&newrelicLoggerOptions.Level, "newrelic-logger-level", newrelicLoggerOptions.Level, "NewRelic logger level: info, warn, error, debug, panic")
	flags.StringVar(&newrelicMeterOptions.Endpoint, "newrelic-meter-endpoint", newrelicMeterOptions.Endpoint, "NewRelic metric API endpoint")
	flags.StringVar(&newrelicMeterOptions.Prefix, "newrelic-meter-prefix", newrelicMeterOptions.Prefix, "NewRelic meter prefix")

	flags.StringVar(&grafanaOptions.URL, "grafana-url", grafanaOptions.URL, "Grafana URL")
	flags.StringVar(&grafanaOptions.ApiKey, "grafana-api-key", grafanaOptions.ApiKey, "Grafana API key or user:password")
	flags.StringVar(&grafanaOptions.Tags, "grafana-tags", grafanaOptions.Tags, "Grafana annotation tags")
	flags.IntVar(&grafanaOptions.Timeout, "grafana-timeout", grafanaOptions.Timeout, "Grafana timeout in seconds")
	flags.StringVar(&grafanaOptions.Endpoint, "grafana-endpoint", grafanaOptions.Endpoint, "Grafana annotations endpoint")

	flags.StringVar(&slackOptions.WebHook, "slack-webhook", slackOptions.WebHook, "Slack webhook")
	flags.StringVar(&slackOptions.Tags, "slack-tags", slackOptions.Tags, "Slack message tags")
	flags.IntVar(&slackOptions.Timeout, "slack-timeout", slackOptions.Timeout, "Slack timeout in seconds")

	interceptSyscall()

	sampleCmd := &cobra.Command{
		Use:   "sample [trace-id]",
		Short: "Print the deterministic sampling decision for a trace id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {

			traceID, err := common.ParseTraceID(args[0], 10, sampleOptions.Bits)
			if err != nil {
				return err
			}

			sampler := sampling.NewDeterministicSampler(sampleOptions.Rate)
			if sampleOptions.Bits == 128 {
				sampler = sampling.NewDeterministicSampler128(sampleOptions.Rate)
			}
			fmt.Printf("trace_id=%s rate=%g sampled=%t\n", traceID, sampler.Rate(), sampler.Sample(traceID))
			return nil
		},
	}
	sampleCmd.Flags().Float64Var(&sampleOptions.Rate, "rate", sampleOptions.Rate, "Sampling rate in [0,1]")
	sampleCmd.Flags().IntVar(&sampleOptions.Bits, "bits", sampleOptions.Bits, "Trace id width: 64, 128")
	rootCmd.AddCommand(sampleCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(VERSION)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		logs.Error(err)
		os.Exit(1)
	}
}
