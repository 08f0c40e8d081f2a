package devicesim_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/go-digitaltwin/go-devicesim"
	"github.com/go-digitaltwin/go-devicesim/internal/simtest"
)

func newTestTwin(device string) *Twin {
	u := NewUpdater(device+"/sensor1", new(simtest.SpySink), Sine(), time.Second)
	return NewTwin(device, u)
}

func TestRegistryFind(t *testing.T) {
	var reg Registry

	twin := newTestTwin("Device0001")
	reg.Register("ns=2;s=Device0001", twin)

	got, ok := reg.Find("ns=2;s=Device0001")
	if !ok || got != twin {
		t.Errorf("Find() = %v, %t, want the registered twin", got, ok)
	}
	if _, ok := reg.Find("ns=2;s=Device0002"); ok {
		t.Error("Find() located a twin for an unregistered identity")
	}
}

func TestRegistryRegisterPanics(t *testing.T) {
	t.Run("NilTwin", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Register(nil) did not panic")
			}
		}()
		var reg Registry
		reg.Register("id", nil)
	})

	t.Run("DuplicateIdentity", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Register() of a second twin did not panic")
			}
		}()
		var reg Registry
		reg.Register("id", newTestTwin("Device0001"))
		reg.Register("id", newTestTwin("Device0002"))
	})

	// Re-registering the same twin for the same identity is harmless.
	t.Run("SameTwinTwice", func(t *testing.T) {
		var reg Registry
		twin := newTestTwin("Device0001")
		reg.Register("id", twin)
		reg.Register("id", twin)
	})
}

// Commands are routed by node identity; only the addressed twin changes state.
func TestRegistryRoutesCommands(t *testing.T) {
	var reg Registry

	first := newTestTwin("Device0001")
	second := newTestTwin("Device0002")
	reg.Register("id-1", first)
	reg.Register("id-2", second)

	ctx := context.Background()

	if err := reg.StartTwin(ctx, "id-1"); err != nil {
		t.Fatalf("StartTwin failed: %v", err)
	}
	if !first.Updaters()[0].Enabled() {
		t.Error("addressed twin not enabled by StartTwin")
	}
	if second.Updaters()[0].Enabled() {
		t.Error("unaddressed twin enabled by StartTwin")
	}

	if err := reg.StopTwin(ctx, "id-1"); err != nil {
		t.Fatalf("StopTwin failed: %v", err)
	}
	if first.Updaters()[0].Enabled() {
		t.Error("addressed twin still enabled after StopTwin")
	}
}

func TestRegistryUnboundCommand(t *testing.T) {
	var reg Registry
	ctx := context.Background()

	if err := reg.StartTwin(ctx, "nobody"); !errors.Is(err, ErrUnboundCommand) {
		t.Errorf("StartTwin(unbound) = %v, want ErrUnboundCommand", err)
	}
	if err := reg.StopTwin(ctx, "nobody"); !errors.Is(err, ErrUnboundCommand) {
		t.Errorf("StopTwin(unbound) = %v, want ErrUnboundCommand", err)
	}
}
