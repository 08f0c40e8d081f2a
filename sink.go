package devicesim

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"gocloud.dev/pubsub"
)

// Register the primitive value types produced by the built-in samplers so that
// they can travel inside interface-typed message fields (TopicSink payloads and
// DataChanged notifications) after gob encoding.
func init() {
	gob.Register(float64(0))
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(false)
	gob.Register("")
}

// A Sink is an addressable, externally owned storage cell that accepts a typed
// value write. The engine only ever writes into a Sink; the collaborator that
// handed out the Sink owns the underlying storage and its lifetime, and may
// raise downstream notifications (e.g. subscriptions) on every accepted write.
//
// Implementations must be safe for concurrent use; sibling Updaters of the same
// variable domain may share a Sink reference.
type Sink interface {
	// Set writes the given value into the cell. A non-nil error indicates the
	// external owner rejected or failed the write; the write is fire-and-forget
	// from the engine's perspective, so callers log such errors and continue.
	Set(ctx context.Context, value any) error
}

// A TopicSink adapts a pubsub topic into a Sink so that an Updater can produce
// simulated values as messages instead of variable writes. Each accepted value
// is gob-encoded and sent as the body of a single message.
//
// Remember to register non-primitive value types with gob.Register() before
// writing them through a TopicSink.
type TopicSink struct {
	topic *pubsub.Topic
}

// NewTopicSink returns a TopicSink publishing to the given topic. The caller
// retains ownership of the topic and is responsible for shutting it down.
func NewTopicSink(topic *pubsub.Topic) TopicSink {
	return TopicSink{topic: topic}
}

// Set implements Sink by publishing the gob-encoded value to the topic.
func (s TopicSink) Set(ctx context.Context, value any) error {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(&value); err != nil {
		return fmt.Errorf("encode gob: %w", err)
	}
	if err := s.topic.Send(ctx, &pubsub.Message{Body: b.Bytes()}); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}
