package devicesim

import (
	"math"
	"math/rand/v2"
	"time"
)

// A Sampler computes the next simulated value for a given moment in time. It is
// the capability an Updater tick exercises: concrete signal generators and
// state machines implement Sampler, so using an "abstract" producer is a
// compile-time error rather than a runtime failure.
//
// Sample returning nil means there is no value for this tick and the Updater
// skips the write. The built-in signal generators never return nil.
//
// A Sampler is owned by exactly one Updater and is only ever called from that
// Updater's scheduling loop, so implementations need not be safe for concurrent
// use.
type Sampler interface {
	Sample(now time.Time) any
}

// SamplerFunc adapts an ordinary function to a Sampler.
type SamplerFunc func(now time.Time) any

func (f SamplerFunc) Sample(now time.Time) any { return f(now) }

// Sine returns a Sampler producing sin(t), with t the wall-clock time in
// seconds. Values are always within [-1, 1].
func Sine() Sampler {
	return SamplerFunc(func(now time.Time) any {
		return math.Sin(unixSeconds(now))
	})
}

// Cosine returns a Sampler producing cos(t), with t the wall-clock time in
// seconds. Values are always within [-1, 1].
func Cosine() Sampler {
	return SamplerFunc(func(now time.Time) any {
		return math.Cos(unixSeconds(now))
	})
}

// Noise returns a Sampler producing base + amplitude*U with U drawn uniformly
// from [0,1) freshly on every tick. Values are always within
// [base, base+amplitude).
//
// A nil rng selects an unseeded private source; pass a seeded *rand.Rand for
// reproducible sequences.
func Noise(base, amplitude float64, rng *rand.Rand) Sampler {
	if rng == nil {
		rng = newRand()
	}
	return SamplerFunc(func(time.Time) any {
		return base + amplitude*rng.Float64()
	})
}

// unixSeconds returns the time as floating-point seconds since the Unix epoch,
// the time base shared by the trigonometric samplers.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
