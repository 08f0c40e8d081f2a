/*
Package storetest provides a suite of tests designed to assess node-store
implementations (e.g. in-memory, OPC-UA backed).

The tests operate on the specific store via the [nodestore.Store] interface to
check functional correctness and compliance with the behaviours defined by that
interface: standalone variables, two-phase instantiation with mandatory and
optional children, browse-path resolution, and command dispatch.

Call storetest.Run in its own test to invoke the test-suite:

	func TestStore(t *testing.T) {
		storetest.Run(t, func(t *testing.T) nodestore.Store {
			return memstore.New()
		})
	}

Specific store implementations are encouraged to perform additional tests for
behaviour beyond the shared interface (e.g. change notifications, shape
import/export).
*/
package storetest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"

	devicesim "github.com/go-digitaltwin/go-devicesim"
	"github.com/go-digitaltwin/go-devicesim/nodestore"
)

// A Factory returns a fresh, not-yet-started store for a single test-case.
type Factory func(t *testing.T) nodestore.Store

type testCase struct {
	// Subtest name.
	name string
	// A path leading to the test-case's file and line in the source code.
	location string
	// The test-case body, handed a fresh, started store.
	run func(ctx context.Context, t *testing.T, s nodestore.Store)
}

// declareDevice declares the exemplar device type the suite instantiates: one
// mandatory variable, one mandatory property, a mandatory sub-object with a
// property of its own, and one optional variable that must never materialise.
func declareDevice() *nodestore.ObjectType {
	dev := nodestore.DeclareObjectType(qn("TestDevice"))
	dev.Variable(qn("sensor"), 1.5, true)
	dev.Property(qn("serial"), "A-100", true)
	dev.Variable(qn("diagnostic"), 0.0, false)
	ctrl := dev.Object(qn("controller"), true)
	ctrl.Property(qn("state"), "Idle", true)
	return dev
}

func qn(name string) nodestore.QualifiedName {
	return nodestore.QualifiedName{Namespace: 2, Name: name}
}

var cases = []testCase{
	{
		name:     "standalone-variable",
		location: locateSource(),
		run: func(ctx context.Context, t *testing.T, s nodestore.Store) {
			v, err := s.AddVariable(ctx, qn("MyVariable"), 6.7)
			if err != nil {
				t.Fatalf("AddVariable failed: %v", err)
			}
			if diff := cmp.Diff(6.7, v.Value()); diff != "" {
				t.Errorf("initial value mismatch (-want +got):\n%v", diff)
			}
			if err := v.Set(ctx, 9.9); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if diff := cmp.Diff(9.9, v.Value()); diff != "" {
				t.Errorf("written value mismatch (-want +got):\n%v", diff)
			}
		},
	},
	{
		name:     "instantiate-mandatory-children",
		location: locateSource(),
		run: func(ctx context.Context, t *testing.T, s nodestore.Store) {
			obj, err := s.Instantiate(ctx, declareDevice(), qn("Device0001"))
			if err != nil {
				t.Fatalf("Instantiate failed: %v", err)
			}
			if obj.ID() == "" {
				t.Error("instantiated object has empty node identity")
			}

			sensor, err := obj.Child(qn("sensor"))
			if err != nil {
				t.Fatalf("Child(sensor) failed: %v", err)
			}
			if diff := cmp.Diff(1.5, sensor.Value()); diff != "" {
				t.Errorf("sensor initial value mismatch (-want +got):\n%v", diff)
			}

			state, err := obj.Child(qn("controller"), qn("state"))
			if err != nil {
				t.Fatalf("Child(controller, state) failed: %v", err)
			}
			if diff := cmp.Diff("Idle", state.Value()); diff != "" {
				t.Errorf("state initial value mismatch (-want +got):\n%v", diff)
			}
		},
	},
	{
		name:     "optional-children-stay-declarative",
		location: locateSource(),
		run: func(ctx context.Context, t *testing.T, s nodestore.Store) {
			obj, err := s.Instantiate(ctx, declareDevice(), qn("Device0001"))
			if err != nil {
				t.Fatalf("Instantiate failed: %v", err)
			}
			// The diagnostic variable shapes the type but is not flagged for
			// instantiation, so no concrete node may exist for it.
			if _, err := obj.Child(qn("diagnostic")); !errors.Is(err, nodestore.ErrNodeNotFound) {
				t.Errorf("Child(diagnostic) = %v, want ErrNodeNotFound", err)
			}
		},
	},
	{
		name:     "missing-path-segment",
		location: locateSource(),
		run: func(ctx context.Context, t *testing.T, s nodestore.Store) {
			obj, err := s.Instantiate(ctx, declareDevice(), qn("Device0001"))
			if err != nil {
				t.Fatalf("Instantiate failed: %v", err)
			}
			if _, err := obj.Child(qn("conveyor"), qn("state")); !errors.Is(err, nodestore.ErrNodeNotFound) {
				t.Errorf("Child(conveyor, state) = %v, want ErrNodeNotFound", err)
			}
			if _, err := obj.Child(qn("controller"), qn("mode")); !errors.Is(err, nodestore.ErrNodeNotFound) {
				t.Errorf("Child(controller, mode) = %v, want ErrNodeNotFound", err)
			}
		},
	},
	{
		name:     "sibling-instances-are-independent",
		location: locateSource(),
		run: func(ctx context.Context, t *testing.T, s nodestore.Store) {
			typ := declareDevice()
			first, err := s.Instantiate(ctx, typ, qn("Device0001"))
			if err != nil {
				t.Fatalf("Instantiate(first) failed: %v", err)
			}
			second, err := s.Instantiate(ctx, typ, qn("Device0002"))
			if err != nil {
				t.Fatalf("Instantiate(second) failed: %v", err)
			}
			if first.ID() == second.ID() {
				t.Fatalf("sibling instances share node identity %q", first.ID())
			}

			sensor, err := first.Child(qn("sensor"))
			if err != nil {
				t.Fatalf("Child(sensor) failed: %v", err)
			}
			if err := sensor.Set(ctx, 42.0); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			other, err := second.Child(qn("sensor"))
			if err != nil {
				t.Fatalf("Child(sensor) on sibling failed: %v", err)
			}
			if diff := cmp.Diff(1.5, other.Value()); diff != "" {
				t.Errorf("sibling sensor value mismatch (-want +got):\n%v", diff)
			}
		},
	},
	{
		name:     "command-dispatch",
		location: locateSource(),
		run: func(ctx context.Context, t *testing.T, s nodestore.Store) {
			obj, err := s.Instantiate(ctx, declareDevice(), qn("Device0001"))
			if err != nil {
				t.Fatalf("Instantiate failed: %v", err)
			}

			var invokedWith devicesim.NodeID
			err = s.RegisterMethod(ctx, obj.ID(), qn("multiply"), func(ctx context.Context, node devicesim.NodeID, args ...any) ([]any, error) {
				invokedWith = node
				if len(args) != 2 {
					return nil, fmt.Errorf("want 2 args, got %d", len(args))
				}
				return []any{args[0].(int64) * args[1].(int64)}, nil
			})
			if err != nil {
				t.Fatalf("RegisterMethod failed: %v", err)
			}

			results, err := s.Call(ctx, obj.ID(), qn("multiply"), int64(6), int64(7))
			if err != nil {
				t.Fatalf("Call failed: %v", err)
			}
			if diff := cmp.Diff([]any{int64(42)}, results); diff != "" {
				t.Errorf("results mismatch (-want +got):\n%v", diff)
			}
			if invokedWith != obj.ID() {
				t.Errorf("method invoked with identity %q, want %q", invokedWith, obj.ID())
			}
		},
	},
	{
		name:     "unknown-method",
		location: locateSource(),
		run: func(ctx context.Context, t *testing.T, s nodestore.Store) {
			obj, err := s.Instantiate(ctx, declareDevice(), qn("Device0001"))
			if err != nil {
				t.Fatalf("Instantiate failed: %v", err)
			}
			if _, err := s.Call(ctx, obj.ID(), qn("explode")); !errors.Is(err, nodestore.ErrMethodNotFound) {
				t.Errorf("Call(explode) = %v, want ErrMethodNotFound", err)
			}
		},
	},
	{
		name:     "method-on-unknown-node",
		location: locateSource(),
		run: func(ctx context.Context, t *testing.T, s nodestore.Store) {
			noop := func(ctx context.Context, node devicesim.NodeID, args ...any) ([]any, error) {
				return nil, nil
			}
			if err := s.RegisterMethod(ctx, "no-such-node", qn("start"), noop); !errors.Is(err, nodestore.ErrNodeNotFound) {
				t.Errorf("RegisterMethod on unknown node = %v, want ErrNodeNotFound", err)
			}
		},
	},
}

// Run executes the suite against stores built by the given factory. Each
// test-case receives a fresh, started store, so cases are independent of one
// another.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	// We deliberately use the background context because this test-suite does not
	// check performance. Also, store implementations should not depend on specific
	// context values.
	ctx := context.Background()

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			// We encourage developers to read the source code directly, especially when
			// failures are not clear enough.
			t.Logf("Read the source for test-case %v at %v", c.name, c.location)
			s := factory(t)
			if err := s.Start(ctx); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			t.Cleanup(func() {
				if err := s.Stop(ctx); err != nil {
					t.Errorf("Stop failed: %v", err)
				}
			})
			c.run(ctx, t, s)
		})
	}
}

// locateSource must be called directly from the site a test-case is declared
// at; it returns that site's source path for failure messages.
func locateSource() (path string) {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		panic("runtime.Caller failed")
	}
	return fmt.Sprintf("%v:%v", file, line)
}
