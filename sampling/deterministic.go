package sampling

import (
	"math"
	"math/big"
	"math/bits"

	"github.com/devopsext/tracecore/common"
)

// KnuthFactor is the multiplicative hash constant shared by every tracer
// implementation, so services agree on keep/drop without coordination.
const KnuthFactor uint64 = 1111111111111111111

// NormalizeRate maps NaN and values outside [0,1] to 1.
func NormalizeRate(rate float64) float64 {

	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return 1
	}
	return rate
}

type DeterministicSampler struct {
	rate     float64
	wide     bool
	cutoff   uint64
	cutoffHi uint64
	cutoffLo uint64
}

func (s *DeterministicSampler) Rate() float64 {
	return s.rate
}

// Sample keeps the trace iff traceID*KnuthFactor mod 2^w < floor(rate*2^w).
func (s *DeterministicSampler) Sample(traceID common.TraceID) bool {

	switch {
	case s.rate >= 1:
		return true
	case s.rate <= 0:
		return false
	}

	if !s.wide {
		return traceID.Low*KnuthFactor < s.cutoff
	}

	hi, lo := hash128(traceID)
	if hi != s.cutoffHi {
		return hi < s.cutoffHi
	}
	return lo < s.cutoffLo
}

func hash128(traceID common.TraceID) (uint64, uint64) {

	hi, lo := bits.Mul64(traceID.Low, KnuthFactor)
	hi += traceID.High * KnuthFactor
	return hi, lo
}

func cutoff64(rate float64) uint64 {
	// rate < 1 so the product is below 2^64 and exact
	return uint64(math.Ldexp(rate, 64))
}

func cutoff128(rate float64) (uint64, uint64) {

	f := new(big.Float).SetFloat64(rate)
	f.SetMantExp(f, 128)

	c, _ := f.Int(nil)
	lo := new(big.Int).And(c, new(big.Int).SetUint64(math.MaxUint64)).Uint64()
	hi := new(big.Int).Rsh(c, 64).Uint64()
	return hi, lo
}

// NewDeterministicSampler hashes the low 64 bits of the trace id.
func NewDeterministicSampler(rate float64) *DeterministicSampler {

	rate = NormalizeRate(rate)
	s := &DeterministicSampler{rate: rate}
	if rate > 0 && rate < 1 {
		s.cutoff = cutoff64(rate)
	}
	return s
}

// NewDeterministicSampler128 hashes the full 128 bit trace id.
func NewDeterministicSampler128(rate float64) *DeterministicSampler {

	rate = NormalizeRate(rate)
	s := &DeterministicSampler{rate: rate, wide: true}
	if rate > 0 && rate < 1 {
		s.cutoffHi, s.cutoffLo = cutoff128(rate)
	}
	return s
}
