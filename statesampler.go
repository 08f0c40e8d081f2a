package devicesim

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// A dwellTimer tracks whether a randomized dwell has elapsed since the last
// change. The dwell is drawn uniformly from a fixed inclusive range of whole
// seconds and redrawn on every expiry, independent of what the expiry caused.
type dwellTimer struct {
	min, max   int // whole seconds, inclusive
	rng        *rand.Rand
	lastChange time.Time
	dwell      time.Duration
}

func newDwellTimer(min, max int, rng *rand.Rand) (*dwellTimer, error) {
	if min <= 0 || max < min {
		return nil, fmt.Errorf("devicesim: invalid dwell range [%d,%d]", min, max)
	}
	if rng == nil {
		rng = newRand()
	}
	d := &dwellTimer{min: min, max: max, rng: rng, lastChange: time.Now()}
	d.dwell = d.draw()
	return d, nil
}

func (d *dwellTimer) draw() time.Duration {
	return time.Duration(d.rng.IntN(d.max-d.min+1)+d.min) * time.Second
}

// expired reports whether the dwell has elapsed at the given moment; when it
// has, the timer resets and redraws the next dwell.
func (d *dwellTimer) expired(now time.Time) bool {
	if now.Sub(d.lastChange) <= d.dwell {
		return false
	}
	d.lastChange = now
	d.dwell = d.draw()
	return true
}

// A StateSampler wraps a StateGraph as a Sampler. On every sample it returns
// the graph's current state name, but it only advances the graph when a
// randomized dwell has elapsed since the last advancement - so the bound sink
// is refreshed at tick cadence even while the discrete state is stable.
//
// The dwell is redrawn after every advancement, whether or not the draw
// actually changed the state.
type StateSampler struct {
	graph *StateGraph
	timer *dwellTimer
}

// NewStateSampler returns a StateSampler advancing the given graph whenever a
// dwell drawn uniformly from [dwellMin, dwellMax] whole seconds (inclusive) has
// elapsed. Construction fails unless 0 < dwellMin <= dwellMax.
//
// A nil rng selects an unseeded private source for the dwell draws; the graph
// keeps its own source for transition draws.
func NewStateSampler(graph *StateGraph, dwellMin, dwellMax int, rng *rand.Rand) (*StateSampler, error) {
	timer, err := newDwellTimer(dwellMin, dwellMax, rng)
	if err != nil {
		return nil, err
	}
	return &StateSampler{graph: graph, timer: timer}, nil
}

// Graph returns the wrapped StateGraph.
func (s *StateSampler) Graph() *StateGraph { return s.graph }

// Sample implements Sampler. It never returns nil.
func (s *StateSampler) Sample(now time.Time) any {
	if s.timer.expired(now) {
		s.graph.NextState()
	}
	return s.graph.Current()
}

// An EventSampler produces a diagnostic message when its randomized dwell
// elapses and nil otherwise, so the owning Updater only writes on expiry. It
// suits sinks that represent event channels (e.g. a TopicSink) rather than
// variables refreshed every tick.
type EventSampler struct {
	timer *dwellTimer
}

// NewEventSampler returns an EventSampler firing whenever a dwell drawn
// uniformly from [dwellMin, dwellMax] whole seconds (inclusive) has elapsed.
// Construction fails unless 0 < dwellMin <= dwellMax.
func NewEventSampler(dwellMin, dwellMax int, rng *rand.Rand) (*EventSampler, error) {
	timer, err := newDwellTimer(dwellMin, dwellMax, rng)
	if err != nil {
		return nil, err
	}
	return &EventSampler{timer: timer}, nil
}

// Sample implements Sampler. The message carries the dwell that just elapsed.
func (s *EventSampler) Sample(now time.Time) any {
	elapsed := s.timer.dwell
	if !s.timer.expired(now) {
		return nil
	}
	return fmt.Sprintf("event: %d", int(elapsed/time.Second))
}
