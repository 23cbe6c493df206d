package common

// Labels are attached to every sample of a counter or gauge.
type Labels map[string]string

// With returns a copy of l extended by key. The receiver is left untouched
// so a base label set can be shared between counters.
func (l Labels) With(key, value string) Labels {

	r := make(Labels, len(l)+1)
	for k, v := range l {
		r[k] = v
	}
	r[key] = value
	return r
}

type Counter interface {
	Inc() Counter
	Add(value int) Counter
}

type Gauge interface {
	Set(value float64) Gauge
}

// Meter creates instruments. A backend that cannot create an instrument
// returns nil and the instrument is skipped by Metrics.
type Meter interface {
	Counter(name, description string, labels Labels, prefixes ...string) Counter
	Gauge(name, description string, labels Labels, prefixes ...string) Gauge
	Stop()
}
