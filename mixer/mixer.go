/*
Package mixer wires a simulated mixer unit out of the devicesim engine and a
node store.

A mixer device exposes one analogue sensor (a sine signal) and a controller
whose discrete state walks a probabilistic Idle/Running/Error graph. The device
follows the two-phase construction protocol: DeclareType shapes the device
against the store's type system, and Bind instantiates a concrete device,
attaches Updaters to its variables, and registers the instance's "start" and
"stop" commands.
*/
package mixer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub"

	devicesim "github.com/go-digitaltwin/go-devicesim"
	"github.com/go-digitaltwin/go-devicesim/nodestore"
)

// The mixer controller's state vocabulary, in graph order.
const (
	StateIdle    = "Idle"
	StateRunning = "Running"
	StateError   = "Error"
)

// States returns the controller's state vocabulary in graph order.
func States() []string {
	return []string{StateIdle, StateRunning, StateError}
}

// DefaultTransitions returns the mixer controller's transition table: one row
// of draw thresholds per state, ordered like States. The returned map is fresh
// on every call and may be modified before constructing a graph from it.
func DefaultTransitions() map[string][]float64 {
	return map[string][]float64{
		StateIdle:    {0.3, 0.6, 0.1},
		StateRunning: {0.1, 0.7, 0.2},
		StateError:   {0.1, 0.8, 0.1},
	}
}

// DeclareType declares the mixer device's shape under the given namespace:
// a sensor1 variable, a device_id property and a controller sub-object with a
// state property, all instantiated on every device of this type.
//
// This is the first phase of the two-phase construction; no concrete sinks
// exist until the type is instantiated through a store.
func DeclareType(ns uint16) *nodestore.ObjectType {
	dev := nodestore.DeclareObjectType(qn(ns, "MixerDevice"))
	dev.Variable(qn(ns, "sensor1"), 1.0, true)
	dev.Property(qn(ns, "device_id"), "0340", true)
	ctrl := dev.Object(qn(ns, "controller"), true)
	ctrl.Property(qn(ns, "state"), StateIdle, true)
	return dev
}

// A Config customises Bind. The zero value selects sensible defaults.
type Config struct {
	// SensorPeriod is the sensor Updater's tick period. Defaults to 100ms.
	SensorPeriod time.Duration
	// StatePeriod is the controller-state Updater's tick period. Defaults to 1s.
	StatePeriod time.Duration
	// DwellMin and DwellMax bound the randomized dwell (inclusive, whole seconds)
	// between state-graph advancements. Both default to the [2,4] range.
	DwellMin, DwellMax int
	// Rand seeds the state graph's draws and the dwell draws. A nil Rand selects
	// an unseeded source.
	Rand *rand.Rand
	// Transitions, if non-nil, receives a gob-encoded record of every state
	// transition for out-of-process diagnostics.
	Transitions *pubsub.Topic
}

func (c Config) withDefaults() Config {
	if c.SensorPeriod <= 0 {
		c.SensorPeriod = 100 * time.Millisecond
	}
	if c.StatePeriod <= 0 {
		c.StatePeriod = time.Second
	}
	if c.DwellMin == 0 && c.DwellMax == 0 {
		c.DwellMin, c.DwellMax = 2, 4
	}
	return c
}

// A Mixer is one bound mixer device: its instantiated object in the node store
// and the Twin simulating it.
type Mixer struct {
	object nodestore.Object
	twin   *devicesim.Twin
	graph  *devicesim.StateGraph
}

// Object returns the device's instantiated node-store object.
func (m *Mixer) Object() nodestore.Object { return m.object }

// Twin returns the device's simulation bundle.
func (m *Mixer) Twin() *devicesim.Twin { return m.twin }

// Graph returns the controller's state graph. Read it for diagnostics only;
// the graph is advanced by the twin's state Updater.
func (m *Mixer) Graph() *devicesim.StateGraph { return m.graph }

// Bind is the second phase of the two-phase construction: it instantiates the
// declared type under the given instance name, binds a sine Updater to the
// sensor and a state-graph Updater to the controller state, registers the twin
// under the instance's node identity, and registers the instance's "start" and
// "stop" commands to route through the registry.
//
// The returned mixer's scheduling loops are not yet launched; call
// Twin().StartSimulation once the surrounding process is ready.
func Bind(ctx context.Context, store nodestore.Store, reg *devicesim.Registry, typ *nodestore.ObjectType, ns uint16, name string, cfg Config) (*Mixer, error) {
	cfg = cfg.withDefaults()

	object, err := store.Instantiate(ctx, typ, qn(ns, name))
	if err != nil {
		return nil, fmt.Errorf("instantiate %q: %w", name, err)
	}
	sensor, err := object.Child(qn(ns, "sensor1"))
	if err != nil {
		return nil, fmt.Errorf("resolve sensor: %w", err)
	}
	state, err := object.Child(qn(ns, "controller"), qn(ns, "state"))
	if err != nil {
		return nil, fmt.Errorf("resolve controller state: %w", err)
	}

	graph, err := devicesim.NewStateGraph(States(), DefaultTransitions(), cfg.Rand)
	if err != nil {
		return nil, fmt.Errorf("build state graph: %w", err)
	}
	graph.OnTransition = transitionHook(ctx, name, cfg.Transitions)
	sampler, err := devicesim.NewStateSampler(graph, cfg.DwellMin, cfg.DwellMax, cfg.Rand)
	if err != nil {
		return nil, fmt.Errorf("build state sampler: %w", err)
	}

	twin := devicesim.NewTwin(name,
		devicesim.NewUpdater(name+"/controller/state", state, sampler, cfg.StatePeriod),
		devicesim.NewUpdater(name+"/sensor1", sensor, devicesim.Sine(), cfg.SensorPeriod),
	)
	reg.Register(object.ID(), twin)

	if err := store.RegisterMethod(ctx, object.ID(), qn(ns, "start"), startCommand(reg)); err != nil {
		return nil, fmt.Errorf("register start command: %w", err)
	}
	if err := store.RegisterMethod(ctx, object.ID(), qn(ns, "stop"), stopCommand(reg)); err != nil {
		return nil, fmt.Errorf("register stop command: %w", err)
	}

	return &Mixer{object: object, twin: twin, graph: graph}, nil
}

// startCommand handles an inbound "start mixer" command. The store passes the
// invoking node's identity, which the registry resolves to the owning twin; an
// unknown identity surfaces as an error to the caller.
func startCommand(reg *devicesim.Registry) nodestore.Method {
	return func(ctx context.Context, node devicesim.NodeID, args ...any) ([]any, error) {
		return nil, reg.StartTwin(ctx, node)
	}
}

// stopCommand handles an inbound "stop mixer" command.
func stopCommand(reg *devicesim.Registry) nodestore.Method {
	return func(ctx context.Context, node devicesim.NodeID, args ...any) ([]any, error) {
		return nil, reg.StopTwin(ctx, node)
	}
}

// transitionHook logs every controller state transition and, when a topic is
// given, also publishes the record for out-of-process diagnostics.
func transitionHook(ctx context.Context, device string, topic *pubsub.Topic) func(devicesim.Transition) {
	logger := component.Logger(ctx).With(slog.String("device", device))
	publish := func(devicesim.Transition) {}
	if topic != nil {
		publish = devicesim.PublishTransitions(topic)
	}
	return func(t devicesim.Transition) {
		logger.Debug("Controller state transition", slog.String("transition", t.String()))
		publish(t)
	}
}

func qn(ns uint16, name string) nodestore.QualifiedName {
	return nodestore.QualifiedName{Namespace: ns, Name: name}
}
