/*
Package nodestore defines the interfaces the simulation engine consumes from its
external address-space collaborator: an addressable, typed variable/object
hierarchy with command dispatch.

The engine never owns address-space storage. It declares object types through
the two-phase [ObjectType] builder, instantiates them through a [Store], binds
Updaters to the resulting [Variable] sinks, and registers command handlers that
the store routes back into the engine with the invoking node's identity.

Specific node stores (e.g. an OPC-UA server, the in-memory memstore package)
are expected to implement these interfaces.
*/
package nodestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	devicesim "github.com/go-digitaltwin/go-devicesim"
)

// ErrNodeNotFound indicates the addressed node does not exist in the store.
var ErrNodeNotFound = errors.New("nodestore: node not found")

// ErrMethodNotFound indicates no method with the given name is registered on
// the addressed node.
var ErrMethodNotFound = errors.New("nodestore: method not found")

// A QualifiedName addresses a node within its parent: a name qualified by the
// namespace it was registered under.
type QualifiedName struct {
	Namespace uint16
	Name      string
}

func (q QualifiedName) String() string {
	return fmt.Sprintf("%d:%s", q.Namespace, q.Name)
}

// ParseQualifiedName parses the "namespace:name" form produced by
// [QualifiedName.String].
func ParseQualifiedName(s string) (QualifiedName, error) {
	ns, name, ok := strings.Cut(s, ":")
	if !ok {
		return QualifiedName{}, fmt.Errorf("nodestore: malformed qualified name %q", s)
	}
	n, err := strconv.ParseUint(ns, 10, 16)
	if err != nil {
		return QualifiedName{}, fmt.Errorf("nodestore: malformed namespace in %q: %w", s, err)
	}
	return QualifiedName{Namespace: uint16(n), Name: name}, nil
}

// A Variable is a typed, writable storage cell in the store. It doubles as the
// engine's [devicesim.Sink]: the engine only ever calls Set on it, while
// clients of the store may read it back through Value.
type Variable interface {
	devicesim.Sink
	// ID returns the store-assigned identity of this variable's node.
	ID() devicesim.NodeID
	// Name returns the qualified name the variable was declared under.
	Name() QualifiedName
	// Value returns the last accepted value.
	Value() any
}

// An Object is an instantiated node with child variables, properties and
// sub-objects, addressable by a path of qualified names.
type Object interface {
	// ID returns the store-assigned identity of this object's node. Commands
	// registered on the object are invoked with this identity.
	ID() devicesim.NodeID
	// Name returns the qualified name the object was instantiated under.
	Name() QualifiedName
	// Child resolves a variable or property by its browse path relative to this
	// object (e.g. Child(controller, state)). It returns ErrNodeNotFound (wrapped)
	// when any path segment is missing.
	Child(path ...QualifiedName) (Variable, error)
}

// A Method is a callable command registered on an instantiated object. The
// store invokes it with the instance's node identity as the first argument,
// followed by the caller-supplied parameters, and relays the returned results.
type Method func(ctx context.Context, node devicesim.NodeID, args ...any) ([]any, error)

// A Store is the consumed surface of the external address-space collaborator.
//
// Implementations must be safe for concurrent use: sinks are written from
// scheduling loops while commands arrive from client sessions.
type Store interface {
	// AddVariable creates a standalone typed, writable variable with the given
	// initial value and returns its sink reference.
	AddVariable(ctx context.Context, name QualifiedName, initial any) (Variable, error)

	// Instantiate creates an object of the given declared type. Every child the
	// type flags as mandatory is instantiated with it, recursively, yielding
	// concrete sink references addressable through [Object.Child].
	Instantiate(ctx context.Context, typ *ObjectType, name QualifiedName) (Object, error)

	// RegisterMethod registers a callable command on the instantiated object with
	// the given node identity.
	RegisterMethod(ctx context.Context, node devicesim.NodeID, name QualifiedName, fn Method) error

	// Call invokes a command previously registered on the addressed node, passing
	// the node's identity as the method's first argument. It returns
	// ErrMethodNotFound (wrapped) when no such command exists.
	Call(ctx context.Context, node devicesim.NodeID, method QualifiedName, args ...any) ([]any, error)

	// Start makes the store available to clients; Stop withdraws it. Command
	// dispatch requires a started store, whereas the engine may write initial
	// values before Start.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Exporter is the interface implemented by stores that can export their
// address-space shape (objects, variables, properties and current values) to a
// structured file.
type Exporter interface {
	ExportShape(ctx context.Context, w io.Writer) error
}

// Importer is the interface implemented by stores that can reconstruct
// address-space nodes from a previously exported shape.
type Importer interface {
	ImportShape(ctx context.Context, r io.Reader) error
}
