package devicesim_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/go-digitaltwin/go-devicesim"
	"github.com/go-digitaltwin/go-devicesim/internal/simtest"
)

// waitFor polls the condition until it holds or the test deadline budget runs
// out. Scheduling tests must tolerate arbitrary goroutine scheduling delays, so
// assertions about "eventually" go through here instead of a fixed sleep.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %v", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewUpdaterPanics(t *testing.T) {
	expectPanic := func(name string, fn func()) {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("NewUpdater did not panic")
				}
			}()
			fn()
		})
	}

	sink := new(simtest.SpySink)
	expectPanic("NilSink", func() { NewUpdater("u", nil, Sine(), time.Second) })
	expectPanic("NilSampler", func() { NewUpdater("u", sink, nil, time.Second) })
	expectPanic("ZeroPeriod", func() { NewUpdater("u", sink, Sine(), 0) })
}

func TestUpdaterLifecycle(t *testing.T) {
	var samples atomic.Int64
	counting := SamplerFunc(func(now time.Time) any {
		samples.Add(1)
		return Sine().Sample(now)
	})

	sink := new(simtest.SpySink)
	u := NewUpdater("Device0001/sensor1", sink, counting, 2*time.Millisecond)

	if u.Running() {
		t.Error("Running() = true before Start")
	}

	u.Start(context.Background())
	defer u.Stop()

	if !u.Running() {
		t.Error("Running() = false after Start")
	}

	// A started but disabled updater idles at cadence: no sampling, no writes.
	time.Sleep(30 * time.Millisecond)
	if n := samples.Load(); n != 0 {
		t.Errorf("disabled updater sampled %d times, want 0", n)
	}
	if n := sink.Count(); n != 0 {
		t.Errorf("disabled updater wrote %d values, want 0", n)
	}

	u.Enable()
	waitFor(t, "writes after Enable", func() bool { return sink.Count() >= 3 })
	if v, _ := sink.Last(); v.(float64) < -1 || v.(float64) > 1 {
		t.Errorf("written value %v, out of [-1, 1]", v)
	}

	// Disabling keeps the loop alive but silences it; at most one in-flight
	// tick may still land.
	u.Disable()
	time.Sleep(10 * time.Millisecond)
	before := sink.Count()
	time.Sleep(30 * time.Millisecond)
	if after := sink.Count(); after != before {
		t.Errorf("disabled updater wrote %d more values", after-before)
	}
	if !u.Running() {
		t.Error("Running() = false while disabled, want true")
	}

	// Stop is terminal: the loop exits and a later Enable revives nothing.
	u.Stop()
	select {
	case <-u.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the loop to exit")
	}
	if !u.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
	if u.Running() {
		t.Error("Running() = true after Stop")
	}

	u.Enable()
	before = sink.Count()
	time.Sleep(30 * time.Millisecond)
	if after := sink.Count(); after != before {
		t.Errorf("stopped updater wrote %d more values after Enable", after-before)
	}
}

func TestUpdaterContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	u := NewUpdater("u", new(simtest.SpySink), Sine(), time.Millisecond)
	u.Start(ctx)
	cancel()

	select {
	case <-u.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the loop to exit")
	}
	if !u.Stopped() {
		t.Error("Stopped() = false after context cancellation")
	}
}

func TestUpdaterSurvivesSinkFailures(t *testing.T) {
	sink := &simtest.FailingSink{Err: errors.New("variable gone")}
	u := NewUpdater("u", sink, Sine(), time.Millisecond)
	u.Enable()
	u.Start(context.Background())
	defer u.Stop()

	// Each tick is independent: the loop keeps attempting writes despite
	// every single one failing.
	waitFor(t, "repeated write attempts", func() bool { return sink.Attempts() >= 3 })
}

func TestUpdaterSkipsNilSamples(t *testing.T) {
	var ticks atomic.Int64
	sampler := SamplerFunc(func(time.Time) any {
		ticks.Add(1)
		return nil
	})

	sink := new(simtest.SpySink)
	u := NewUpdater("u", sink, sampler, time.Millisecond)
	u.Enable()
	u.Start(context.Background())
	defer u.Stop()

	waitFor(t, "sampler invocations", func() bool { return ticks.Load() >= 3 })
	if n := sink.Count(); n != 0 {
		t.Errorf("nil samples produced %d writes, want 0", n)
	}
}
