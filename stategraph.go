package devicesim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
)

// A Transition records a single advancement of a StateGraph for diagnostics:
// the state before the draw, the sampled draw itself, and the state after.
type Transition struct {
	From string
	Draw float64
	To   string
}

func (t Transition) String() string {
	return fmt.Sprintf("%s --( %.2f )-> %s", t.From, t.Draw, t.To)
}

// A StateGraph is a probabilistic finite-state machine over a small, fixed
// vocabulary of named states. Each state has a row of probability thresholds,
// one per state in vocabulary order; rows are draw thresholds, not a
// distribution, and need not sum to 1.
//
// NextState advances the machine with a deliberately non-standard sampling
// rule (see its documentation); do not replace it with a cumulative
// distribution sample.
//
// The current state is mutated only by NextState, which is only called from
// the owning Updater's tick, so a StateGraph is not safe for concurrent use.
type StateGraph struct {
	states  []string
	probs   map[string][]float64
	current string
	rng     *rand.Rand

	// OnTransition, if non-nil, is invoked synchronously with the Transition
	// record whenever a draw selects a candidate state - including when the
	// selected candidate is the current state itself. Set it before the first
	// call to NextState.
	OnTransition func(Transition)
}

// NewStateGraph returns a StateGraph over the given ordered state vocabulary,
// starting at the first state.
//
// The transition table must contain a row for every state, and every row must
// have exactly one threshold per state, in vocabulary order. Construction fails
// otherwise.
//
// A nil rng selects an unseeded private source; pass a seeded *rand.Rand for
// reproducible state sequences.
func NewStateGraph(states []string, probs map[string][]float64, rng *rand.Rand) (*StateGraph, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("devicesim: state vocabulary is empty")
	}
	for _, s := range states {
		row, ok := probs[s]
		if !ok {
			return nil, fmt.Errorf("devicesim: no transition row for state %q", s)
		}
		if len(row) != len(states) {
			return nil, fmt.Errorf("devicesim: transition row for state %q has %d thresholds, want %d", s, len(row), len(states))
		}
	}
	for s := range probs {
		if !slices.Contains(states, s) {
			return nil, fmt.Errorf("devicesim: transition row for unknown state %q", s)
		}
	}
	if rng == nil {
		rng = newRand()
	}
	return &StateGraph{
		states:  slices.Clone(states),
		probs:   probs,
		current: states[0],
		rng:     rng,
	}, nil
}

// States returns the state vocabulary in order.
func (g *StateGraph) States() []string {
	return slices.Clone(g.states)
}

// Current returns the machine's current state name.
func (g *StateGraph) Current() string {
	return g.current
}

// NextState draws a single event uniformly from [0,1) and advances the machine.
//
// Scanning the current state's row in vocabulary order, the selected candidate
// is the one with the minimal threshold strictly greater than the draw. Ties on
// exact floating-point equality are resolved by choosing uniformly at random
// between the previously selected index and the contender. If no threshold
// exceeds the draw, the state is left unchanged.
//
// This biased rule is the machine's sampling policy - it is not a
// cumulative-distribution sample, and the tie-break on exact float equality is
// intentional.
//
// NextState returns the Transition record of the draw and whether a candidate
// was selected. When a candidate was selected, the record is also passed to the
// OnTransition hook and counted by the package's transition instrument.
func (g *StateGraph) NextState() (Transition, bool) {
	event := g.rng.Float64()
	row := g.probs[g.current]

	minProb := 1.0
	minIdx := -1
	for i, p := range row {
		if p > event && p <= minProb {
			if p == minProb {
				// A tie on exact equality: keep the previous pick or take the
				// contender, uniformly.
				if g.rng.IntN(2) == 1 {
					minIdx = i
				}
			} else {
				minProb = p
				minIdx = i
			}
		}
	}

	if minIdx < 0 {
		// The draw met or exceeded every threshold in the row.
		return Transition{From: g.current, Draw: event, To: g.current}, false
	}

	t := Transition{From: g.current, Draw: event, To: g.states[minIdx]}
	g.current = t.To
	measureTransition(context.Background(), t)
	if g.OnTransition != nil {
		g.OnTransition(t)
	}
	return t, true
}
