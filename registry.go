package devicesim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// A NodeID is the opaque identity of a node in the external node store. The
// engine never inspects it; it only keys twins by it and receives it back as
// the first argument of inbound commands.
type NodeID string

// ErrUnboundCommand indicates an inbound command arrived for a node identity
// with no registered Twin. This is a configuration/wiring error: the command is
// surfaced to the caller and never retried.
var ErrUnboundCommand = errors.New("devicesim: no twin registered for node identity")

// A Registry maps external node identities to the Twin instance that owns them,
// so inbound commands can be routed to the right lifecycle controller.
//
// The Registry is process-scoped state owned by the coordinator that builds the
// twins: entries are added while instances are wired up and never removed. The
// access pattern is single-writer-at-setup, many-readers-at-runtime.
//
// The zero value is ready to use.
type Registry struct {
	twins sync.Map // map[NodeID]*Twin
}

// Register binds the given node identity to the given Twin. Identities are
// unique; registering a second Twin for the same identity panics, as that is
// always a wiring bug.
func (r *Registry) Register(id NodeID, twin *Twin) {
	if twin == nil {
		panic("devicesim: registering nil twin")
	}
	if prev, dup := r.twins.LoadOrStore(id, twin); dup && prev != twin {
		panic(fmt.Sprintf("devicesim: registering duplicate twins for %q", id))
	}
}

// Find returns the Twin registered for the given node identity.
func (r *Registry) Find(id NodeID) (*Twin, bool) {
	v, ok := r.twins.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Twin), true
}

// StartTwin routes an inbound "start" command: it resolves the invoking node
// identity to its Twin and enables the twin's Updaters. It returns
// ErrUnboundCommand (wrapped) for an unknown identity.
func (r *Registry) StartTwin(ctx context.Context, id NodeID) error {
	return r.command(ctx, "start", id, (*Twin).Start)
}

// StopTwin routes an inbound "stop" command: it resolves the invoking node
// identity to its Twin and disables the twin's Updaters. It returns
// ErrUnboundCommand (wrapped) for an unknown identity.
func (r *Registry) StopTwin(ctx context.Context, id NodeID) error {
	return r.command(ctx, "stop", id, (*Twin).Stop)
}

func (r *Registry) command(ctx context.Context, name string, id NodeID, op func(*Twin)) error {
	_, span := tracer.Start(ctx, "Registry."+name, trace.WithAttributes(
		attribute.String("node.id", string(id)),
	))
	defer span.End()

	twin, ok := r.Find(id)
	if !ok {
		err := fmt.Errorf("%s %q: %w", name, id, ErrUnboundCommand)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	op(twin)
	span.SetAttributes(attribute.String("twin.device", twin.Device()))
	return nil
}
