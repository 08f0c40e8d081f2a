package nodestore_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-digitaltwin/go-devicesim/nodestore"
)

func TestQualifiedName(t *testing.T) {
	tests := []struct {
		Name   string
		Text   string
		Parsed nodestore.QualifiedName
	}{
		{
			Name:   "Plain",
			Text:   "2:sensor1",
			Parsed: nodestore.QualifiedName{Namespace: 2, Name: "sensor1"},
		},
		{
			Name:   "DefaultNamespace",
			Text:   "0:Server",
			Parsed: nodestore.QualifiedName{Namespace: 0, Name: "Server"},
		},
		{
			Name:   "NameWithColon",
			Text:   "2:a:b",
			Parsed: nodestore.QualifiedName{Namespace: 2, Name: "a:b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			got, err := nodestore.ParseQualifiedName(tt.Text)
			if err != nil {
				t.Fatalf("ParseQualifiedName(%q) failed: %v", tt.Text, err)
			}
			if diff := cmp.Diff(tt.Parsed, got); diff != "" {
				t.Errorf("ParseQualifiedName(%q) mismatch (-want +got):\n%v", tt.Text, diff)
			}
			if s := got.String(); s != tt.Text {
				t.Errorf("String() = %q, want %q", s, tt.Text)
			}
		})
	}

	for _, malformed := range []string{"", "sensor1", "x:sensor1", "70000:sensor1", "-1:sensor1"} {
		if _, err := nodestore.ParseQualifiedName(malformed); err == nil {
			t.Errorf("ParseQualifiedName(%q) succeeded, want error", malformed)
		}
	}
}

func TestObjectTypeDeclaration(t *testing.T) {
	qn := func(name string) nodestore.QualifiedName {
		return nodestore.QualifiedName{Namespace: 2, Name: name}
	}

	dev := nodestore.DeclareObjectType(qn("MixerDevice"))
	dev.Variable(qn("sensor1"), 1.0, true)
	dev.Property(qn("device_id"), "0340", true)
	dev.Variable(qn("diagnostic"), 0.0, false)
	ctrl := dev.Object(qn("controller"), true)
	ctrl.Property(qn("state"), "Idle", true)

	if got := dev.Name(); got != qn("MixerDevice") {
		t.Errorf("Name() = %v, want %v", got, qn("MixerDevice"))
	}

	children := dev.Children()
	want := []nodestore.Child{
		{Kind: nodestore.KindVariable, Name: qn("sensor1"), Initial: 1.0, Mandatory: true},
		{Kind: nodestore.KindProperty, Name: qn("device_id"), Initial: "0340", Mandatory: true},
		{Kind: nodestore.KindVariable, Name: qn("diagnostic"), Initial: 0.0, Mandatory: false},
		{Kind: nodestore.KindObject, Name: qn("controller"), Mandatory: true, Object: ctrl},
	}
	if diff := cmp.Diff(want, children, cmp.Comparer(func(a, b *nodestore.ObjectType) bool { return a == b })); diff != "" {
		t.Errorf("Children() mismatch (-want +got):\n%v", diff)
	}

	// The nested declaration carries its own children.
	nested := ctrl.Children()
	if len(nested) != 1 || nested[0].Name != qn("state") {
		t.Errorf("controller children = %v, want the single state property", nested)
	}

	t.Run("DuplicateChildPanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("declaring a duplicate child did not panic")
			}
		}()
		dev.Variable(qn("sensor1"), 2.0, true)
	})
}
