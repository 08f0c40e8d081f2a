// Package devicesim provides a simulation engine for digital twins of
// industrial devices; A simulated device is a bundle of periodic value
// producers that evolve the device's measurements and discrete state over time
// and write the results into variables owned by an external node store.
//
// Specifically, the engine runs a set of independently scheduled Updaters.
// Each Updater wraps a Sampler (a sine or cosine signal, noise around a
// baseline, or a probabilistic StateGraph) and a write-only Sink, and ticks at
// a fixed cadence with enable/disable/stop lifecycle controls. A Twin groups
// the Updaters of one device instance behind start/stop operations, and a
// Registry routes externally invoked commands to the Twin that owns the
// invoking node identity.
//
// The addressable variable/object hierarchy itself is owned by an external
// collaborator; see the nodestore package for the consumed interfaces and the
// memstore package for an in-memory implementation.
package devicesim
