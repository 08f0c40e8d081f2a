package devicesim_test

import (
	"bytes"
	"context"
	"encoding/gob"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gocloud.dev/pubsub/mempubsub"

	. "github.com/go-digitaltwin/go-devicesim"
)

func TestTopicSink(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	topic := mempubsub.NewTopic()
	defer topic.Shutdown(ctx)
	sub := mempubsub.NewSubscription(topic, time.Second)
	defer sub.Shutdown(ctx)

	sink := NewTopicSink(topic)

	for _, want := range []any{0.75, "Running", int64(42), true} {
		if err := sink.Set(ctx, want); err != nil {
			t.Fatalf("Set(%v) failed: %v", want, err)
		}

		msg, err := sub.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		msg.Ack()

		var got any
		if err := gob.NewDecoder(bytes.NewReader(msg.Body)).Decode(&got); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("published value mismatch (-want +got):\n%v", diff)
		}
	}
}
