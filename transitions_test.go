package devicesim_test

import (
	"bytes"
	"context"
	"encoding/gob"
	"testing"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/google/go-cmp/cmp"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/mempubsub"

	. "github.com/go-digitaltwin/go-devicesim"
)

func TestTransitionGobMarshalling(t *testing.T) {
	want := Transition{From: "Idle", Draw: 0.42, To: "Running"}

	var p bytes.Buffer
	if err := gob.NewEncoder(&p).Encode(want); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var got Transition
	if err := gob.NewDecoder(&p).Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reconstructed Transition differs (-want +got):\n%v", diff)
	}
}

func TestPublishTransitions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	topic := mempubsub.NewTopic()
	defer topic.Shutdown(ctx)
	sub := mempubsub.NewSubscription(topic, time.Second)
	defer sub.Shutdown(ctx)

	hook := PublishTransitions(topic)
	want := []Transition{
		{From: "Idle", Draw: 0.5, To: "Running"},
		{From: "Running", Draw: 0.05, To: "Error"},
	}
	for _, tr := range want {
		hook(tr)
	}

	var got []Transition
	for range want {
		msg, err := sub.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		msg.Ack()

		var tr Transition
		if err := gob.NewDecoder(bytes.NewReader(msg.Body)).Decode(&tr); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		got = append(got, tr)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("published records mismatch (-want +got):\n%v", diff)
	}
}

// The following example demonstrates observing the state-machine diagnostics of
// a remote simulation. This code is for illustration purposes only and is not
// meant to be executed as is.
func ExampleWatchTransitions() {
	// Normally, the subscription is opened by the component's bootstrap
	// function against the broker that carries the simulation's diagnostics.
	// For this example, we assume the outcome of that process is stored at the
	// following variable.
	var diagnostics *pubsub.Subscription

	component.RunProc(func(l *component.L) {
		l.Fork("watch transitions", WatchTransitions(diagnostics, func(t Transition) {
			l.Logf("observed %s", t)
		}))
	})
}
