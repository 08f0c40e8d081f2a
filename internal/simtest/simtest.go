/*
Package simtest provides the shared test scaffolding of the simulation engine:
spy and failing sinks, deterministically seeded random sources, and scripted
sources that make individual draws of the engine's samplers predictable.

This package is intended to be used in tests only. It is not suitable for
production use.
*/
package simtest

import (
	"context"
	"math/rand/v2"
	"sync"
)

// A SpySink records every value written into it, so tests can assert what an
// Updater wrote, how often, and in what order.
//
// A SpySink is safe for concurrent use.
type SpySink struct {
	mu     sync.Mutex
	values []any
}

// Set implements devicesim.Sink and never fails.
func (s *SpySink) Set(ctx context.Context, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, value)
	return nil
}

// Count returns the number of accepted writes.
func (s *SpySink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Values returns a copy of the accepted writes, in order.
func (s *SpySink) Values() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := make([]any, len(s.values))
	copy(values, s.values)
	return values
}

// Last returns the most recently accepted write.
func (s *SpySink) Last() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return nil, false
	}
	return s.values[len(s.values)-1], true
}

// A FailingSink rejects every write with Err, for exercising the engine's
// log-and-continue failure handling.
type FailingSink struct {
	Err error

	mu       sync.Mutex
	attempts int
}

// Set implements devicesim.Sink by always returning Err.
func (s *FailingSink) Set(ctx context.Context, value any) error {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()
	return s.Err
}

// Attempts returns the number of rejected writes.
func (s *FailingSink) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Rand returns a deterministically seeded random source. Two sources built from
// the same seed yield identical sequences.
func Rand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// A ScriptedSource is a rand.Source that yields a fixed sequence of words and
// panics once exhausted, making every draw of the code under test explicit.
type ScriptedSource struct {
	words []uint64
	next  int
}

// Script returns a ScriptedSource yielding the given words in order.
func Script(words ...uint64) *ScriptedSource {
	return &ScriptedSource{words: words}
}

// Uint64 implements rand.Source.
func (s *ScriptedSource) Uint64() uint64 {
	if s.next >= len(s.words) {
		panic("simtest: scripted random source exhausted")
	}
	w := s.words[s.next]
	s.next++
	return w
}

// Draw returns the source word that makes rand.Rand.Float64 yield f. Use it
// with Script to pin the exact draw a sampler observes:
//
//	rng := rand.New(simtest.Script(simtest.Draw(0.5)))
//	rng.Float64() // == 0.5
//
// Float64 derives its result as a 53-bit numerator over 2^53, so f is
// reproduced exactly only when f is a multiple of 2^-53: any float64 in
// [0.5, 1) qualifies, below that stick to dyadic values (0.25, 0.0625, ...).
// Other values come back off by at most 2^-53, which still lands on the same
// side of any not-razor-thin threshold.
func Draw(f float64) uint64 {
	return uint64(f * (1 << 53))
}
