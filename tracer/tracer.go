package tracer

import (
	"context"
	"strings"
	"time"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/tracecore/decorator"
	"github.com/devopsext/tracecore/naming"
	"github.com/devopsext/tracecore/propagation"
	"github.com/devopsext/tracecore/sampling"
	"github.com/devopsext/tracecore/scope"
	"github.com/devopsext/utils"
)

type Tracer struct {
	options       Options
	writer        Writer
	meter         common.Meter
	logger        common.Logger
	scopes        *scope.Manager
	codec         *propagation.Codec
	sampler       *sampling.RateByServiceSampler
	schema        *naming.Schema
	decorators    *decorator.Chain
	processors    []decorator.PostProcessor
	interceptors  interceptors
	runtimeID     string
	tags          map[string]string
	tracesWritten common.Counter
	tracesDropped common.Counter
	spansFinished common.Counter
	ratesGauge    common.Gauge
	decisions     map[int]common.Counter
}

func (t *Tracer) Options() Options {
	return t.options
}

func (t *Tracer) Schema() *naming.Schema {
	return t.schema
}

func (t *Tracer) ScopeManager() *scope.Manager {
	return t.scopes
}

func (t *Tracer) Sampler() *sampling.RateByServiceSampler {
	return t.sampler
}

func (t *Tracer) RuntimeID() string {
	return t.runtimeID
}

func (t *Tracer) newRootContext(spanID uint64, start time.Time) *SpanContext {

	traceID := common.TraceID{Low: spanID}
	if t.options.Trace128Bit {
		traceID.High = uint64(start.Unix()) << 32
	}
	return &SpanContext{
		traceID: traceID,
		spanID:  spanID,
		baggage: common.NewBaggage(),
		trace:   newTrace(t, common.PriorityUnset, nil),
	}
}

func (t *Tracer) newContext(cfg *startSpanConfig, spanID uint64, start time.Time) *SpanContext {

	if p := cfg.parent; p != nil {
		return &SpanContext{
			traceID:  p.traceID,
			spanID:   spanID,
			parentID: p.spanID,
			origin:   p.origin,
			baggage:  p.baggage.Copy(),
			trace:    p.trace,
		}
	}

	e := cfg.extracted
	if e == nil {
		return t.newRootContext(spanID, start)
	}

	var c *SpanContext
	if e.IsTagOnly() {
		c = t.newRootContext(spanID, start)
	} else {
		c = &SpanContext{
			traceID:  e.TraceID(),
			spanID:   spanID,
			parentID: e.SpanID(),
			trace:    newTrace(t, e.SamplingPriority(), e.PropagatingTags()),
		}
	}
	c.origin = e.Origin()
	c.baggage = e.Baggage()
	return c
}

// StartSpan starts a child of the explicit parent, the extracted context or
// the span active in ctx, in that order, or else a new root.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...StartSpanOption) *Span {

	cfg := &startSpanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.parent == nil && cfg.extracted == nil && !cfg.ignoreActive {
		if active := t.ActiveSpan(ctx); active != nil {
			cfg.parent = active.Context()
		}
	}

	start := cfg.start
	if start.IsZero() {
		start = time.Now()
	}
	spanID := cfg.spanID
	if spanID == 0 {
		spanID = randomID()
	}

	sc := t.newContext(cfg, spanID, start)

	service := cfg.service
	if utils.IsEmpty(service) && cfg.parent != nil && cfg.parent.span != nil {
		service = cfg.parent.span.ServiceName()
	}
	if utils.IsEmpty(service) {
		service = t.options.ServiceName
	}

	span := &Span{
		tracer:   t,
		context:  sc,
		name:     name,
		service:  service,
		resource: name,
		spanType: cfg.spanType,
		start:    start,
		tags:     make(map[string]interface{}),
		metrics:  make(map[string]float64),
	}
	if !utils.IsEmpty(cfg.resource) {
		span.resource = cfg.resource
		span.resourcePriority = decorator.ResourcePriorityManual
	}
	sc.span = span

	sc.trace.spanStarted(span)

	if sc.trace.RootSpan() == span {
		t.decorateRoot(span, cfg)
	}
	for _, tg := range cfg.tags {
		span.SetTag(tg.key, tg.value)
	}
	return span
}

func (t *Tracer) decorateRoot(span *Span, cfg *startSpanConfig) {

	span.setTag(RuntimeIDTag, t.runtimeID)
	if !utils.IsEmpty(t.options.Environment) {
		span.SetTag(EnvTag, t.options.Environment)
	}
	if !utils.IsEmpty(t.options.Version) {
		span.SetTag(VersionTag, t.options.Version)
	}
	for k, v := range t.tags {
		span.SetTag(k, v)
	}
	if traceID := span.context.traceID; traceID.Is128() {
		span.setTag(propagation.TraceIDHighTag, traceID.HighHex())
	}
	if cfg.extracted != nil {
		for k, v := range cfg.extracted.Tags() {
			span.SetTag(k, v)
		}
	}
}

// Inject resolves the sampling decision before writing sc into carrier.
func (t *Tracer) Inject(sc *SpanContext, carrier propagation.Setter) error {

	if sc == nil {
		return propagation.ErrInvalidCarrier
	}
	sc.trace.ForceSampling()
	return t.codec.Inject(sc, carrier)
}

// Extract never fails, a malformed carrier yields nil.
func (t *Tracer) Extract(carrier propagation.Visitor) *propagation.ExtractedContext {
	return t.codec.Extract(carrier)
}

func (t *Tracer) Activate(ctx context.Context, span *Span, finishOnClose bool) scope.Scope {

	if span == nil {
		return scope.NoopScope
	}
	return t.scopes.Activate(ctx, span, finishOnClose)
}

func (t *Tracer) ActiveSpan(ctx context.Context) *Span {

	s, _ := t.scopes.ActiveSpan(ctx).(*Span)
	return s
}

func (t *Tracer) Capture(ctx context.Context) *scope.Continuation {
	return t.scopes.Capture(ctx)
}

func (t *Tracer) CaptureConcurrent(ctx context.Context) *scope.Continuation {
	return t.scopes.CaptureConcurrent(ctx)
}

func (t *Tracer) AddScopeListener(l scope.Listener) {
	t.scopes.AddListener(l)
}

func (t *Tracer) AddScopeContext(sc scope.ScopeContext) {
	t.scopes.AddScopeContext(sc)
}

func (t *Tracer) AddInterceptor(i TraceInterceptor) error {

	if i == nil {
		return nil
	}
	if err := t.interceptors.add(i); err != nil {
		t.logger.Warn("Trace interceptor with priority %d rejected: %v", i.Priority(), err)
		return err
	}
	return nil
}

func (t *Tracer) UpdateRates(rates map[string]float64) {

	t.sampler.Update(rates)
	t.ratesGauge.Set(float64(len(t.sampler.Rates())))
	t.logger.Debug("Sampling rates updated: %v", rates)
}

func (t *Tracer) UpdateRatesFromJSON(body []byte) error {

	if err := t.sampler.UpdateFromJSON(body); err != nil {
		t.logger.Warn("Sampling rates not updated: %v", err)
		return err
	}
	t.ratesGauge.Set(float64(len(t.sampler.Rates())))
	return nil
}

func (t *Tracer) decision(priority int) {

	if c, ok := t.decisions[priority]; ok {
		c.Inc()
	}
}

func (t *Tracer) write(tr *Trace, spans []*Span) {

	spans = t.interceptors.run(spans)
	tr.ForceSampling()
	t.writer.IncrementTraceCount()

	if len(spans) == 0 {
		t.tracesDropped.Inc()
		return
	}

	priority, _ := tr.SamplingPriority()
	if root := tr.RootSpan(); root != nil {
		root.SetMetric(SamplingPriorityTag, float64(priority))
	}

	if !common.IsKept(priority) && !t.options.WriteDropped {
		t.tracesDropped.Inc()
		t.logger.Debug("Trace %s dropped with priority %s", spans[0].context.traceID, common.PriorityName(priority))
		return
	}

	t.writer.Write(spans)
	t.tracesWritten.Inc()
	t.logger.Debug("Trace %s written with %d spans", spans[0].context.traceID, len(spans))
}

func (t *Tracer) Stop() {

	t.writer.Close()
	t.logger.Info("Tracer is stopped.")
}

func disabledDecorators(s string) []string {

	var r []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			r = append(r, d)
		}
	}
	return r
}

func New(options Options, writer Writer, meter common.Meter, logger common.Logger) *Tracer {

	if logger == nil {
		logger = common.NewLogs()
	}
	if meter == nil {
		meter = common.NewMetrics()
	}
	if writer == nil {
		writer = NewWriters()
	}

	version, err := naming.ParseVersion(options.NamingSchema)
	if err != nil {
		logger.Warn("%v, using %s", err, version)
	}
	schema := naming.New(version, options.ServiceName)
	labels := common.Labels{"service": options.ServiceName}
	peerMapping := common.GetColonPairs(options.PeerServiceMapping)

	t := &Tracer{
		options: options,
		writer:  writer,
		meter:   meter,
		logger:  logger,
		scopes:  scope.NewManager(scope.Options{DepthLimit: options.ScopeDepthLimit}, logger, meter),
		sampler: sampling.NewRateByServiceSampler(),
		schema:  schema,
		decorators: decorator.New(decorator.Options{
			DefaultService:     options.ServiceName,
			ServiceMapping:     common.GetColonPairs(options.ServiceMapping),
			PeerServiceMapping: peerMapping,
			Disabled:           disabledDecorators(options.DisabledDecorators),
		}, schema),
		processors: []decorator.PostProcessor{
			decorator.NewPeerServiceCalculator(schema, peerMapping),
			decorator.NewBaseServiceProcessor(options.ServiceName),
		},
		runtimeID:     common.NewRuntimeID(),
		tags:          common.GetKeyValues(options.Tags),
		tracesWritten: meter.Counter("traces_written", "Traces handed to writers", labels),
		tracesDropped: meter.Counter("traces_dropped", "Traces dropped by sampling or interceptors", labels),
		spansFinished: meter.Counter("spans_finished", "Finished spans", labels),
		ratesGauge:    meter.Gauge("rates_by_service", "Configured sampling rates", labels),
		decisions:     make(map[int]common.Counter),
	}

	for _, p := range []int{common.PriorityUserDrop, common.PrioritySamplerDrop, common.PrioritySamplerKeep, common.PriorityUserKeep} {
		t.decisions[p] = meter.Counter("sampling_decisions", "Locked sampling decisions", labels.With("priority", common.PriorityName(p)))
	}

	extractErrors := meter.Counter("extract_errors", "Malformed inbound trace contexts", labels)
	t.codec = propagation.NewCodec(propagation.Options{
		TaggedHeaders: propagation.ParseTaggedHeaders(options.HeaderTags),
		OnError: func(err error) {
			extractErrors.Inc()
		},
	}, logger)

	if !utils.IsEmpty(options.AgentRates) {
		if err := t.UpdateRatesFromJSON([]byte(options.AgentRates)); err != nil {
			logger.Warn("Agent rates ignored: %v", err)
		}
	}
	t.ratesGauge.Set(float64(len(t.sampler.Rates())))

	writer.Start()
	logger.Info("Tracer is up...")
	return t
}
