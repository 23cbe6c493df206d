package sampling

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/devopsext/tracecore/common"
)

const (
	DefaultKey    = "service:,env:"
	DefaultRate   = 1.0
	AgentRateTag  = "_dd.agent_psr"
	rateKeyFormat = "service:%s,env:%s"
)

// Target is the span side of a sampling decision.
type Target interface {
	GetServiceName() string
	GetEnv() string
	GetTraceID() common.TraceID
	SetSamplingPriorityOnce(priority, mechanism int) bool
	SetMetric(key string, value float64)
}

type rates map[string]*DeterministicSampler

type RateByServiceSampler struct {
	rates atomic.Pointer[rates]
}

type agentResponse struct {
	RateByService map[string]float64 `json:"rate_by_service"`
}

func Key(service, env string) string {
	return fmt.Sprintf(rateKeyFormat, service, env)
}

func (rs *RateByServiceSampler) snapshot() rates {

	r := rs.rates.Load()
	if r == nil {
		return nil
	}
	return *r
}

func (rs *RateByServiceSampler) sampler(service, env string) (*DeterministicSampler, bool) {

	r := rs.snapshot()
	if s, ok := r[Key(service, env)]; ok {
		return s, true
	}
	if s, ok := r[DefaultKey]; ok {
		return s, false
	}
	return NewDeterministicSampler(DefaultRate), false
}

// SetSamplingPriority decides on target and reports whether this call locked the priority.
func (rs *RateByServiceSampler) SetSamplingPriority(target Target) bool {

	s, configured := rs.sampler(target.GetServiceName(), target.GetEnv())

	priority := common.PrioritySamplerDrop
	if s.Sample(target.GetTraceID()) {
		priority = common.PrioritySamplerKeep
	}

	mechanism := common.MechanismDefault
	if configured {
		mechanism = common.MechanismAgentRate
	}

	if !target.SetSamplingPriorityOnce(priority, mechanism) {
		return false
	}
	target.SetMetric(AgentRateTag, s.Rate())
	return true
}

// Update swaps the whole mapping, the default key is always present.
func (rs *RateByServiceSampler) Update(m map[string]float64) {

	r := make(rates, len(m)+1)
	for k, v := range m {
		r[k] = NewDeterministicSampler(v)
	}
	if _, ok := r[DefaultKey]; !ok {
		r[DefaultKey] = NewDeterministicSampler(DefaultRate)
	}
	rs.rates.Store(&r)
}

func (rs *RateByServiceSampler) UpdateFromJSON(body []byte) error {

	var resp agentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("invalid rate by service payload: %w", err)
	}
	if resp.RateByService == nil {
		return fmt.Errorf("invalid rate by service payload: no rate_by_service")
	}
	rs.Update(resp.RateByService)
	return nil
}

func (rs *RateByServiceSampler) Rates() map[string]float64 {

	r := rs.snapshot()
	m := make(map[string]float64, len(r))
	for k, s := range r {
		m[k] = s.Rate()
	}
	return m
}

func NewRateByServiceSampler() *RateByServiceSampler {

	rs := &RateByServiceSampler{}
	rs.Update(nil)
	return rs
}
