package devicesim

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub"
)

// Register the notification type published by node stores. This is required to
// decode it on the consuming side using gob.
func init() {
	gob.Register(DataChanged{})
}

// DataChanged notifies that an externally owned variable accepted a new value.
// Node stores that support downstream notifications publish one DataChanged per
// accepted write, gob-encoded, to a topic of the store owner's choosing.
//
// IMPORTANT: non-primitive value types must be registered with gob.Register()
// before they can travel inside the Value field.
type DataChanged struct {
	// Node is the identity of the variable whose value changed.
	Node NodeID
	// Path is the human-readable browse path of the variable, composed of
	// slash-separated qualified names (e.g. "2:Device0001/2:controller/2:state").
	Path string
	// Value is the newly accepted value.
	Value any
	// The time, in UTC, the write was accepted. The information in this message is
	// accurate up to this timestamp, not a moment afterwards.
	Timestamp time.Time
}

// A ValueMap correlates variable node identities with the last value written to
// them, giving read-side components a cheap, always-current view of the
// simulation without consulting the node store.
//
// Use the map's Update and Find methods to modify and access the stored values
// by NodeID.
//
// ValueMap is designed to be concurrently safe and can be accessed by multiple
// goroutines simultaneously.
type ValueMap struct {
	m  map[NodeID]any
	mu sync.Mutex
}

// NewValueMap returns a view of the latest written values per variable node.
//
// If an existing map 'm' is provided to NewValueMap, its entries seed the view;
// otherwise, the view starts empty.
func NewValueMap(m map[NodeID]any) ValueMap {
	newMap := make(map[NodeID]any)
	if m != nil {
		maps.Copy(newMap, m)
	}
	return ValueMap{m: newMap}
}

// Find looks up the given NodeID and returns its last known value. If the given
// NodeID has not been written yet, Find indicates that by returning ok == false.
//
// Find is safe for concurrent use.
func (v *ValueMap) Find(id NodeID) (value any, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	value, ok = v.m[id]
	return value, ok
}

// Update stores the value carried by the given notification as the latest value
// of its node.
//
// Update is safe for concurrent use.
func (v *ValueMap) Update(changed DataChanged) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.m[changed.Node] = changed.Value
}

// Iter applies the provided function 'fn' to each node and its latest value.
// Iteration continues until 'fn' returns false, or once all nodes have been
// visited.
func (v *ValueMap) Iter(fn func(id NodeID, value any) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, val := range v.m {
		if !fn(k, val) {
			break
		}
	}
}

// TrackValues returns a component.Proc that consumes DataChanged notifications
// from the given subscription and maintains an up-to-date view of the latest
// value per variable node in the given ValueMap. Use the Find method of
// ValueMap to read the latest value of a specific node.
//
// This procedure runs sequentially over DataChanged messages and updates the
// given ValueMap one notification at a time.
func TrackValues(m *ValueMap, source *pubsub.Subscription) component.Proc {
	return func(l *component.L) {
		for l.Continue() {
			msg, err := source.Receive(l.GraceContext())
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return
				}
				l.Errorf("receive: %v", err)
				continue
			}
			var changed DataChanged
			if err := gob.NewDecoder(bytes.NewReader(msg.Body)).Decode(&changed); err != nil {
				l.Errorf("decode data-change notification: %v", err)
				msg.Ack()
				continue
			}
			m.Update(changed)
			msg.Ack()
		}
	}
}
