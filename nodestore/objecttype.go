package nodestore

import "fmt"

// A ChildKind distinguishes the node kinds an ObjectType may declare.
type ChildKind int

const (
	KindVariable ChildKind = iota
	KindProperty
	KindObject
)

func (k ChildKind) String() string {
	switch k {
	case KindVariable:
		return "variable"
	case KindProperty:
		return "property"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("ChildKind(%d)", int(k))
	}
}

// A Child is one declared member of an ObjectType. Store implementations walk
// these to materialise instances.
type Child struct {
	Kind ChildKind
	Name QualifiedName
	// Initial is the initial value of a variable or property; unused for objects.
	Initial any
	// Mandatory flags the child for instantiation on every object of the type.
	// Non-mandatory children merely shape the type and yield no concrete node.
	Mandatory bool
	// Object carries the nested declaration when Kind is KindObject.
	Object *ObjectType
}

// An ObjectType is the declared shape of a device object: its variables,
// properties and sub-objects. Declaring the type is the first phase of the
// two-phase construction protocol; only after an instance exists in a store do
// concrete sink references become available for binding.
//
// Declare children with fluent calls:
//
//	dev := nodestore.DeclareObjectType(ns(idx, "MyDevice"))
//	dev.Variable(ns(idx, "sensor1"), 1.0, true)
//	dev.Property(ns(idx, "device_id"), "0340", true)
//	ctrl := dev.Object(ns(idx, "controller"), true)
//	ctrl.Property(ns(idx, "state"), "Idle", true)
//
// An ObjectType is not safe for concurrent mutation; declare it fully before
// sharing it with a store.
type ObjectType struct {
	name     QualifiedName
	children []Child
}

// DeclareObjectType starts the declaration of a new object type with the given
// qualified name.
func DeclareObjectType(name QualifiedName) *ObjectType {
	return &ObjectType{name: name}
}

// Name returns the type's qualified name.
func (t *ObjectType) Name() QualifiedName { return t.name }

// Children returns the declared members in declaration order. Do not mutate the
// returned slice.
func (t *ObjectType) Children() []Child {
	children := make([]Child, len(t.children))
	copy(children, t.children)
	return children
}

// Variable declares a child variable with the given initial value. It returns
// the receiver for chaining.
func (t *ObjectType) Variable(name QualifiedName, initial any, mandatory bool) *ObjectType {
	t.add(Child{Kind: KindVariable, Name: name, Initial: initial, Mandatory: mandatory})
	return t
}

// Property declares a child property with the given initial value. It returns
// the receiver for chaining.
func (t *ObjectType) Property(name QualifiedName, initial any, mandatory bool) *ObjectType {
	t.add(Child{Kind: KindProperty, Name: name, Initial: initial, Mandatory: mandatory})
	return t
}

// Object declares a nested sub-object and returns its declaration so that the
// sub-object's own children can be declared on it.
func (t *ObjectType) Object(name QualifiedName, mandatory bool) *ObjectType {
	nested := &ObjectType{name: name}
	t.add(Child{Kind: KindObject, Name: name, Mandatory: mandatory, Object: nested})
	return nested
}

func (t *ObjectType) add(c Child) {
	// Duplicate names within one type are always a declaration bug.
	for _, existing := range t.children {
		if existing.Name == c.Name {
			panic(fmt.Sprintf("nodestore: declaring duplicate child %q on object type %q", c.Name, t.name))
		}
	}
	t.children = append(t.children, c)
}
