package devicesim

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub"
)

// Register the diagnostic record types published over pubsub. This is required
// to decode them on the consuming side using gob.
func init() {
	gob.Register(Transition{})
}

// PublishTransitions returns an OnTransition hook that gob-encodes every
// Transition record and sends it to the given topic, so state-machine
// diagnostics can be observed outside the process that runs the simulation.
//
// Sends are fire-and-forget: a failed send is logged and the next record is
// published regardless, mirroring how sink writes are handled. The caller
// retains ownership of the topic.
func PublishTransitions(topic *pubsub.Topic) func(Transition) {
	return func(t Transition) {
		// The hook is called synchronously from a scheduling loop, which has no
		// context of its own to offer.
		ctx := context.Background()
		var b bytes.Buffer
		if err := gob.NewEncoder(&b).Encode(t); err != nil {
			component.Logger(ctx).Error("Failed to encode transition record", "error", err, "transition", t.String())
			return
		}
		if err := topic.Send(ctx, &pubsub.Message{Body: b.Bytes()}); err != nil {
			component.Logger(ctx).Error("Failed to publish transition record", "error", err, "transition", t.String())
		}
	}
}

// WatchTransitions returns a component.Proc that continuously receives
// Transition records from the given subscription (as published by
// PublishTransitions) and passes each record to fn.
//
// This procedure runs sequentially: fn handles one record at a time, in the
// order the subscription delivers them.
func WatchTransitions(sub *pubsub.Subscription, fn func(Transition)) component.Proc {
	return func(l *component.L) {
		for l.Continue() {
			msg, err := sub.Receive(l.GraceContext())
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					// we're shutting down
					return
				}
				l.Errorf("receive: %v", err)
				continue
			}
			// always ack, even if we fail to decode.
			// otherwise, we might get stuck processing
			// the same failed message
			msg.Ack()

			var t Transition
			if err := gob.NewDecoder(bytes.NewReader(msg.Body)).Decode(&t); err != nil {
				l.Errorf("decode transition record: %v", err)
				continue
			}
			fn(t)
		}
	}
}
