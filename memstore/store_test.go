package memstore_test

import (
	"bytes"
	"context"
	"encoding/gob"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gocloud.dev/pubsub/mempubsub"

	devicesim "github.com/go-digitaltwin/go-devicesim"
	"github.com/go-digitaltwin/go-devicesim/memstore"
	"github.com/go-digitaltwin/go-devicesim/nodestore"
	"github.com/go-digitaltwin/go-devicesim/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) nodestore.Store {
		return memstore.New()
	})
}

func TestCallRequiresStartedStore(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	obj, err := s.Instantiate(ctx, mixerType(), qn("Mixer0001"))
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	noop := func(ctx context.Context, node devicesim.NodeID, args ...any) ([]any, error) {
		return nil, nil
	}
	if err := s.RegisterMethod(ctx, obj.ID(), qn("start"), noop); err != nil {
		t.Fatalf("RegisterMethod failed: %v", err)
	}

	// Commands are only dispatched while the store runs; registration and
	// variable writes work regardless.
	if _, err := s.Call(ctx, obj.ID(), qn("start")); err == nil {
		t.Error("Call succeeded on a store that was never started")
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := s.Call(ctx, obj.ID(), qn("start")); err != nil {
		t.Errorf("Call failed on a started store: %v", err)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := s.Call(ctx, obj.ID(), qn("start")); err == nil {
		t.Error("Call succeeded on a stopped store")
	}
}

func TestDataChangeNotifications(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	topic := mempubsub.NewTopic()
	defer topic.Shutdown(ctx)
	sub := mempubsub.NewSubscription(topic, time.Second)
	defer sub.Shutdown(ctx)

	s := memstore.New(memstore.WithDataChanges(topic))
	obj, err := s.Instantiate(ctx, mixerType(), qn("Mixer0001"))
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	state, err := obj.Child(qn("controller"), qn("state"))
	if err != nil {
		t.Fatalf("Child(controller, state) failed: %v", err)
	}

	before := time.Now().UTC()
	if err := state.Set(ctx, "Running"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	msg, err := sub.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	msg.Ack()

	if got := msg.Metadata["node"]; got != string(state.ID()) {
		t.Errorf("message metadata node = %q, want %q", got, state.ID())
	}

	var changed devicesim.DataChanged
	if err := gob.NewDecoder(bytes.NewReader(msg.Body)).Decode(&changed); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := devicesim.DataChanged{
		Node:  state.ID(),
		Path:  "2:Mixer0001/2:controller/2:state",
		Value: "Running",
	}
	if diff := cmp.Diff(want, changed, cmpopts.IgnoreFields(devicesim.DataChanged{}, "Timestamp")); diff != "" {
		t.Errorf("notification mismatch (-want +got):\n%v", diff)
	}
	if changed.Timestamp.Before(before) || changed.Timestamp.After(time.Now().UTC()) {
		t.Errorf("notification timestamp %v outside the write window", changed.Timestamp)
	}
}

// A store built without a notification topic accepts writes silently.
func TestWritesWithoutTopic(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	v, err := s.AddVariable(ctx, qn("standalone"), 6.7)
	if err != nil {
		t.Fatalf("AddVariable failed: %v", err)
	}
	if err := v.Set(ctx, 7.6); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := v.Value(); got != 7.6 {
		t.Errorf("Value() = %v, want 7.6", got)
	}
}

// mixerType declares the device shape shared across this package's tests.
func mixerType() *nodestore.ObjectType {
	dev := nodestore.DeclareObjectType(qn("MixerDevice"))
	dev.Variable(qn("sensor1"), 1.0, true)
	dev.Property(qn("device_id"), "0340", true)
	ctrl := dev.Object(qn("controller"), true)
	ctrl.Property(qn("state"), "Idle", true)
	return dev
}

func qn(name string) nodestore.QualifiedName {
	return nodestore.QualifiedName{Namespace: 2, Name: name}
}
