/*
Package memstore provides an in-memory [nodestore.Store]. It keeps the whole
address space in process memory, which makes it the reference implementation
for engine tests and for deployments where the real address-space server is
faked or not yet available.

Writes accepted by its variables may raise downstream notifications: construct
the store with [WithDataChanges] and every accepted write publishes a
gob-encoded [devicesim.DataChanged] to the given topic.
*/
package memstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/google/uuid"
	"gocloud.dev/pubsub"

	devicesim "github.com/go-digitaltwin/go-devicesim"
	"github.com/go-digitaltwin/go-devicesim/nodestore"
)

// Store is an in-memory address space. Use New to construct one; the zero value
// is not ready for use.
//
// A Store is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	running   bool
	variables map[devicesim.NodeID]*Variable
	objects   map[devicesim.NodeID]*Object
	methods   map[methodKey]nodestore.Method

	// Top-level nodes in creation order, for deterministic shape export.
	rootVariables []*Variable
	rootObjects   []*Object

	topic *pubsub.Topic // optional data-change notifications
}

type methodKey struct {
	node devicesim.NodeID
	name nodestore.QualifiedName
}

// An Option customises a Store during New.
type Option func(*Store)

// WithDataChanges makes every accepted variable write publish a
// [devicesim.DataChanged] notification to the given topic. The caller retains
// ownership of the topic and is responsible for shutting it down.
func WithDataChanges(topic *pubsub.Topic) Option {
	return func(s *Store) { s.topic = topic }
}

// New returns an empty, not-yet-started Store.
func New(opts ...Option) *Store {
	s := &Store{
		variables: make(map[devicesim.NodeID]*Variable),
		objects:   make(map[devicesim.NodeID]*Object),
		methods:   make(map[methodKey]nodestore.Method),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start makes the store dispatch commands. Variables accept writes regardless,
// so initial values can be written before Start.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	component.Logger(ctx).Info("In-memory node store started")
	return nil
}

// Stop withdraws command dispatch. Stored nodes and their values survive until
// the Store itself is discarded.
func (s *Store) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	component.Logger(ctx).Info("In-memory node store stopped")
	return nil
}

// AddVariable implements [nodestore.Store].
func (s *Store) AddVariable(ctx context.Context, name nodestore.QualifiedName, initial any) (nodestore.Variable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.newVariable(name, name.String(), initial, false)
	s.rootVariables = append(s.rootVariables, v)
	return v, nil
}

// Instantiate implements [nodestore.Store]. Children flagged mandatory are
// materialised recursively; the rest shape the type only.
func (s *Store) Instantiate(ctx context.Context, typ *nodestore.ObjectType, name nodestore.QualifiedName) (nodestore.Object, error) {
	if typ == nil {
		return nil, fmt.Errorf("memstore: instantiate: nil object type")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.instantiate(typ, name, name.String())
	s.rootObjects = append(s.rootObjects, o)
	return o, nil
}

// instantiate materialises one object and its mandatory children. The caller
// holds s.mu.
func (s *Store) instantiate(typ *nodestore.ObjectType, name nodestore.QualifiedName, path string) *Object {
	o := &Object{
		id:        s.newNodeID(),
		name:      name,
		path:      path,
		variables: make(map[nodestore.QualifiedName]*Variable),
		objects:   make(map[nodestore.QualifiedName]*Object),
	}
	s.objects[o.id] = o

	for _, child := range typ.Children() {
		if !child.Mandatory {
			continue
		}
		childPath := path + "/" + child.Name.String()
		switch child.Kind {
		case nodestore.KindVariable:
			o.variables[child.Name] = s.newVariable(child.Name, childPath, child.Initial, false)
		case nodestore.KindProperty:
			o.variables[child.Name] = s.newVariable(child.Name, childPath, child.Initial, true)
		case nodestore.KindObject:
			o.objects[child.Name] = s.instantiate(child.Object, child.Name, childPath)
		}
		o.order = append(o.order, child.Name)
	}
	return o
}

// newVariable mints a variable node. The caller holds s.mu.
func (s *Store) newVariable(name nodestore.QualifiedName, path string, initial any, property bool) *Variable {
	v := &Variable{
		store:    s,
		id:       s.newNodeID(),
		name:     name,
		path:     path,
		property: property,
		value:    initial,
	}
	s.variables[v.id] = v
	return v
}

func (s *Store) newNodeID() devicesim.NodeID {
	return devicesim.NodeID(uuid.NewString())
}

// RegisterMethod implements [nodestore.Store]. The addressed node must be an
// instantiated object.
func (s *Store) RegisterMethod(ctx context.Context, node devicesim.NodeID, name nodestore.QualifiedName, fn nodestore.Method) error {
	if fn == nil {
		return fmt.Errorf("memstore: register method %q: nil method", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[node]; !ok {
		return fmt.Errorf("memstore: register method %q on %q: %w", name, node, nodestore.ErrNodeNotFound)
	}
	s.methods[methodKey{node: node, name: name}] = fn
	return nil
}

// Call implements [nodestore.Store]. It dispatches the command with the
// addressed node's identity as the handler's first argument, mirroring how an
// address-space server passes the parent node to method handlers.
func (s *Store) Call(ctx context.Context, node devicesim.NodeID, method nodestore.QualifiedName, args ...any) ([]any, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("memstore: call %q on %q: store not started", method, node)
	}
	fn, ok := s.methods[methodKey{node: node, name: method}]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("memstore: call %q on %q: %w", method, node, nodestore.ErrMethodNotFound)
	}
	// The handler runs outside the store lock: it is free to consult the store.
	return fn(ctx, node, args...)
}

//=============================================================================

// A Variable is an in-memory storage cell implementing [nodestore.Variable].
type Variable struct {
	store    *Store
	id       devicesim.NodeID
	name     nodestore.QualifiedName
	path     string
	property bool

	mu    sync.Mutex
	value any
}

func (v *Variable) ID() devicesim.NodeID          { return v.id }
func (v *Variable) Name() nodestore.QualifiedName { return v.name }

// Value returns the last accepted value.
func (v *Variable) Value() any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set implements [devicesim.Sink]. The write itself cannot fail in memory; a
// failed downstream notification is logged and does not fail the write, since
// the value has already been accepted.
func (v *Variable) Set(ctx context.Context, value any) error {
	v.mu.Lock()
	v.value = value
	v.mu.Unlock()
	v.store.notify(ctx, v, value)
	return nil
}

// notify publishes a DataChanged for the accepted write, if the store was
// constructed with a notification topic.
func (s *Store) notify(ctx context.Context, v *Variable, value any) {
	if s.topic == nil {
		return
	}
	changed := devicesim.DataChanged{
		Node:      v.id,
		Path:      v.path,
		Value:     value,
		Timestamp: time.Now().UTC(),
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(changed); err != nil {
		component.Logger(ctx).Error("Failed to encode data-change notification",
			slog.Any("error", err),
			slog.String("node.path", v.path),
		)
		return
	}
	// Fire-and-forget; the write has been accepted either way.
	msg := &pubsub.Message{Body: b.Bytes(), Metadata: map[string]string{"node": string(v.id)}}
	if err := s.topic.Send(ctx, msg); err != nil {
		component.Logger(ctx).Error("Failed to publish data-change notification",
			slog.Any("error", err),
			slog.String("node.path", v.path),
		)
	}
}

//=============================================================================

// An Object is an instantiated in-memory node implementing [nodestore.Object].
type Object struct {
	id   devicesim.NodeID
	name nodestore.QualifiedName
	path string

	variables map[nodestore.QualifiedName]*Variable
	objects   map[nodestore.QualifiedName]*Object
	order     []nodestore.QualifiedName // creation order, for deterministic export
}

func (o *Object) ID() devicesim.NodeID          { return o.id }
func (o *Object) Name() nodestore.QualifiedName { return o.name }

// Child implements [nodestore.Object]. Every path segment but the last must
// address a sub-object; the last must address a variable or property.
func (o *Object) Child(path ...nodestore.QualifiedName) (nodestore.Variable, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("memstore: child of %q: empty path", o.path)
	}
	current := o
	for _, segment := range path[:len(path)-1] {
		next, ok := current.objects[segment]
		if !ok {
			return nil, fmt.Errorf("memstore: child %q of %q: %w", segment, current.path, nodestore.ErrNodeNotFound)
		}
		current = next
	}
	leaf := path[len(path)-1]
	v, ok := current.variables[leaf]
	if !ok {
		return nil, fmt.Errorf("memstore: child %q of %q: %w", leaf, current.path, nodestore.ErrNodeNotFound)
	}
	return v, nil
}
