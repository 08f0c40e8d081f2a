package devicesim

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// A Twin is a device's simulation bundle: the Updaters bound to the sibling
// variables of one device instance, behind start/stop lifecycle operations
// invoked by an external command dispatcher.
//
// The lifecycle distinguishes between the scheduling loops and the writes they
// produce. Start and Stop merely enable and disable the owned Updaters (an
// already-running loop is never restarted; a disabled loop keeps idling at
// cadence), whereas StartSimulation and StopSimulation launch and terminally
// stop the loops themselves.
//
// A Twin's lifecycle operations are expected to arrive from a single external
// command stream; they are not protected against concurrent callers beyond the
// atomicity of the underlying Updater flags.
type Twin struct {
	device   string
	updaters []*Updater
	launch   sync.Once
}

// NewTwin returns a Twin for the device with the given identifier owning the
// given Updaters - by convention one state-machine Updater and zero or more
// signal Updaters, all created after the device's variables exist in the
// external node store.
func NewTwin(device string, updaters ...*Updater) *Twin {
	if len(updaters) == 0 {
		panic("devicesim: NewTwin called without updaters")
	}
	return &Twin{device: device, updaters: slices.Clone(updaters)}
}

// Device returns the twin's device identifier.
func (t *Twin) Device() string { return t.device }

// Updaters returns the owned Updaters. Do not mutate the returned slice.
func (t *Twin) Updaters() []*Updater { return slices.Clone(t.updaters) }

// Start enables every owned Updater. Already-running scheduling loops are left
// alone; loops not yet launched by StartSimulation begin writing once they are.
func (t *Twin) Start() {
	for _, u := range t.updaters {
		u.Enable()
	}
}

// Stop disables every owned Updater. Their scheduling loops keep idling at
// cadence and resume writing on the next Start.
func (t *Twin) Stop() {
	for _, u := range t.updaters {
		u.Disable()
	}
}

// StartSimulation launches every owned Updater's scheduling loop. Only the
// first call has an effect.
//
// Launching does not enable the Updaters; call Start to let ticks produce
// writes.
func (t *Twin) StartSimulation(ctx context.Context) {
	t.launch.Do(func() {
		for _, u := range t.updaters {
			u.Start(ctx)
		}
	})
}

// StopSimulation terminally stops every owned Updater and waits for their
// scheduling loops to exit, or for the context to be cancelled. Updaters whose
// loop was never launched are stopped without waiting.
//
// The twin owns no other resources, so a stopped twin may simply be discarded.
func (t *Twin) StopSimulation(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, u := range t.updaters {
		u.Stop()
		if !u.started.Load() {
			continue
		}
		g.Go(func() error {
			select {
			case <-u.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}
