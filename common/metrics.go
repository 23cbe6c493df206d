package common

type MetricsCounter struct {
	counters []Counter
}

type MetricsGauge struct {
	gauges []Gauge
}

// Metrics fans instruments out to every registered meter. An empty Metrics
// is a valid no-op meter.
type Metrics struct {
	meters []Meter
}

func (mc *MetricsCounter) Inc() Counter {

	for _, c := range mc.counters {
		c.Inc()
	}
	return mc
}

func (mc *MetricsCounter) Add(value int) Counter {

	for _, c := range mc.counters {
		c.Add(value)
	}
	return mc
}

func (mg *MetricsGauge) Set(value float64) Gauge {

	for _, g := range mg.gauges {
		g.Set(value)
	}
	return mg
}

func (ms *Metrics) Counter(name, description string, labels Labels, prefixes ...string) Counter {

	counter := &MetricsCounter{}
	for _, m := range ms.meters {
		if c := m.Counter(name, description, labels, prefixes...); c != nil {
			counter.counters = append(counter.counters, c)
		}
	}
	return counter
}

func (ms *Metrics) Gauge(name, description string, labels Labels, prefixes ...string) Gauge {

	gauge := &MetricsGauge{}
	for _, m := range ms.meters {
		if g := m.Gauge(name, description, labels, prefixes...); g != nil {
			gauge.gauges = append(gauge.gauges, g)
		}
	}
	return gauge
}

func (ms *Metrics) Stop() {

	for _, m := range ms.meters {
		m.Stop()
	}
}

func (ms *Metrics) Len() int {
	return len(ms.meters)
}

// Register must be called before the tracer is created, instruments are
// bound to the meters known at creation time.
func (ms *Metrics) Register(m Meter) {
	if ms != nil && m != nil {
		ms.meters = append(ms.meters, m)
	}
}

func NewMetrics() *Metrics {
	return &Metrics{}
}
