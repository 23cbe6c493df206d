package provider

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/utils"
)

type PrometheusOptions struct {
	URL     string
	Listen  string
	Version string
	Prefix  string
}

type PrometheusCounter struct {
	counter *metrics.Counter
}

type PrometheusGauge struct {
	value uint64
	gauge *metrics.Gauge
}

type PrometheusMeter struct {
	options  PrometheusOptions
	logger   common.Logger
	set      *metrics.Set
	listener net.Listener
	mu       sync.Mutex
}

func (p *PrometheusMeter) buildIdent(name string, labels common.Labels, prefixes ...string) string {

	var names []string

	if !utils.IsEmpty(p.options.Prefix) {
		names = append(names, p.options.Prefix)
	}

	names = append(names, prefixes...)
	names = append(names, name)
	name = strings.Join(names, "_")

	lbs := ""
	if len(labels) > 0 {
		arr := []string{}
		for k, v := range labels {
			arr = append(arr, fmt.Sprintf(`%s="%s"`, k, v))
		}
		sort.Strings(arr)
		lbs = fmt.Sprintf("{%s}", strings.Join(arr, ","))
	}
	return fmt.Sprintf(`%s%s`, name, lbs)
}

func (pc *PrometheusCounter) Inc() common.Counter {

	pc.counter.Inc()
	return pc
}

func (pc *PrometheusCounter) Add(value int) common.Counter {

	pc.counter.Add(value)
	return pc
}

func (p *PrometheusMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {

	return &PrometheusCounter{
		counter: p.set.GetOrCreateCounter(p.buildIdent(name, labels, prefixes...)),
	}
}

func (pg *PrometheusGauge) Set(value float64) common.Gauge {

	atomic.StoreUint64(&pg.value, math.Float64bits(value))
	return pg
}

func (pg *PrometheusGauge) get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&pg.value))
}

func (p *PrometheusMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {

	gauge := &PrometheusGauge{}
	gauge.gauge = p.set.GetOrCreateGauge(p.buildIdent(name, labels, prefixes...), gauge.get)
	return gauge
}

func (p *PrometheusMeter) handler(w http.ResponseWriter, req *http.Request) {

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	p.set.WritePrometheus(w)
}

func (p *PrometheusMeter) Start() bool {

	p.logger.Info("Start prometheus endpoint...")

	mux := http.NewServeMux()
	mux.HandleFunc(p.options.URL, p.handler)

	listener, err := net.Listen("tcp", p.options.Listen)
	if err != nil {
		p.logger.Error(err)
		return false
	}

	p.mu.Lock()
	p.listener = listener
	p.mu.Unlock()

	p.logger.Info("Prometheus is up. Listening...")
	err = http.Serve(listener, mux)
	if err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		p.logger.Error(err)
		return false
	}
	return true
}

func (p *PrometheusMeter) StartInWaitGroup(wg *sync.WaitGroup) {

	wg.Add(1)

	go func(wg *sync.WaitGroup) {

		defer wg.Done()
		p.Start()
	}(wg)
}

func (p *PrometheusMeter) Stop() {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener != nil {
		p.listener.Close()
	}
}

func NewPrometheusMeter(options PrometheusOptions, logger common.Logger, stdout *Stdout) *PrometheusMeter {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.Listen) {
		stdout.Debug("Prometheus meter is disabled.")
		return nil
	}

	if utils.IsEmpty(options.URL) {
		options.URL = "/metrics"
	}

	return &PrometheusMeter{
		options: options,
		logger:  logger,
		set:     metrics.NewSet(),
	}
}
