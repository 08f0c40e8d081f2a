package memstore

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/go-digitaltwin/go-devicesim/nodestore"
)

// The XML shape is a plain structural dump of the address space: top-level
// variables and objects, with nested variables, properties and sub-objects.
// Values are carried as attribute text with an explicit type tag so that a
// re-import reconstructs typed initial values.

type xmlShape struct {
	XMLName   xml.Name      `xml:"NodeSet"`
	Variables []xmlVariable `xml:"Variable"`
	Objects   []xmlObject   `xml:"Object"`
}

type xmlObject struct {
	Name       string        `xml:"name,attr"`
	Variables  []xmlVariable `xml:"Variable"`
	Properties []xmlVariable `xml:"Property"`
	Objects    []xmlObject   `xml:"Object"`
}

type xmlVariable struct {
	Name  string `xml:"name,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

// ExportShape implements [nodestore.Exporter]. The shape is deterministic:
// nodes appear in creation order.
func (s *Store) ExportShape(ctx context.Context, w io.Writer) error {
	s.mu.Lock()
	shape := xmlShape{}
	for _, v := range s.rootVariables {
		xv, err := formatVariable(v)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		shape.Variables = append(shape.Variables, xv)
	}
	for _, o := range s.rootObjects {
		xo, err := formatObject(o)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		shape.Objects = append(shape.Objects, xo)
	}
	s.mu.Unlock()

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(shape); err != nil {
		return fmt.Errorf("memstore: encode shape: %w", err)
	}
	return nil
}

func formatObject(o *Object) (xmlObject, error) {
	xo := xmlObject{Name: o.name.String()}
	for _, name := range o.order {
		if v, ok := o.variables[name]; ok {
			xv, err := formatVariable(v)
			if err != nil {
				return xmlObject{}, err
			}
			if v.property {
				xo.Properties = append(xo.Properties, xv)
			} else {
				xo.Variables = append(xo.Variables, xv)
			}
			continue
		}
		if nested, ok := o.objects[name]; ok {
			xn, err := formatObject(nested)
			if err != nil {
				return xmlObject{}, err
			}
			xo.Objects = append(xo.Objects, xn)
		}
	}
	return xo, nil
}

func formatVariable(v *Variable) (xmlVariable, error) {
	typ, text, err := formatValue(v.Value())
	if err != nil {
		return xmlVariable{}, fmt.Errorf("memstore: export %q: %w", v.path, err)
	}
	return xmlVariable{Name: v.name.String(), Type: typ, Value: text}, nil
}

// ImportShape implements [nodestore.Importer]. Imported nodes are created
// afresh with newly minted identities; an import never merges with existing
// nodes.
func (s *Store) ImportShape(ctx context.Context, r io.Reader) error {
	var shape xmlShape
	if err := xml.NewDecoder(r).Decode(&shape); err != nil {
		return fmt.Errorf("memstore: decode shape: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, xv := range shape.Variables {
		name, value, err := parseVariable(xv)
		if err != nil {
			return err
		}
		v := s.newVariable(name, name.String(), value, false)
		s.rootVariables = append(s.rootVariables, v)
	}
	for _, xo := range shape.Objects {
		o, err := s.importObject(xo, "")
		if err != nil {
			return err
		}
		s.rootObjects = append(s.rootObjects, o)
	}
	return nil
}

// importObject materialises one imported object subtree. The caller holds s.mu.
func (s *Store) importObject(xo xmlObject, parentPath string) (*Object, error) {
	name, err := nodestore.ParseQualifiedName(xo.Name)
	if err != nil {
		return nil, fmt.Errorf("memstore: import object: %w", err)
	}
	path := name.String()
	if parentPath != "" {
		path = parentPath + "/" + name.String()
	}
	o := &Object{
		id:        s.newNodeID(),
		name:      name,
		path:      path,
		variables: make(map[nodestore.QualifiedName]*Variable),
		objects:   make(map[nodestore.QualifiedName]*Object),
	}
	s.objects[o.id] = o

	addVariable := func(xv xmlVariable, property bool) error {
		childName, value, err := parseVariable(xv)
		if err != nil {
			return err
		}
		o.variables[childName] = s.newVariable(childName, path+"/"+childName.String(), value, property)
		o.order = append(o.order, childName)
		return nil
	}
	for _, xv := range xo.Variables {
		if err := addVariable(xv, false); err != nil {
			return nil, err
		}
	}
	for _, xv := range xo.Properties {
		if err := addVariable(xv, true); err != nil {
			return nil, err
		}
	}
	for _, nested := range xo.Objects {
		child, err := s.importObject(nested, path)
		if err != nil {
			return nil, err
		}
		o.objects[child.name] = child
		o.order = append(o.order, child.name)
	}
	return o, nil
}

func parseVariable(xv xmlVariable) (nodestore.QualifiedName, any, error) {
	name, err := nodestore.ParseQualifiedName(xv.Name)
	if err != nil {
		return nodestore.QualifiedName{}, nil, fmt.Errorf("memstore: import variable: %w", err)
	}
	value, err := parseValue(xv.Type, xv.Value)
	if err != nil {
		return nodestore.QualifiedName{}, nil, fmt.Errorf("memstore: import variable %q: %w", xv.Name, err)
	}
	return name, value, nil
}

func formatValue(value any) (typ, text string, err error) {
	switch v := value.(type) {
	case float64:
		return "Double", strconv.FormatFloat(v, 'g', -1, 64), nil
	case string:
		return "String", v, nil
	case bool:
		return "Boolean", strconv.FormatBool(v), nil
	case int:
		return "Int64", strconv.FormatInt(int64(v), 10), nil
	case int64:
		return "Int64", strconv.FormatInt(v, 10), nil
	case nil:
		return "Null", "", nil
	default:
		return "", "", fmt.Errorf("unsupported value type %T", value)
	}
}

func parseValue(typ, text string) (any, error) {
	switch typ {
	case "Double":
		return strconv.ParseFloat(text, 64)
	case "String":
		return text, nil
	case "Boolean":
		return strconv.ParseBool(text)
	case "Int64":
		return strconv.ParseInt(text, 10, 64)
	case "Null":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported value type tag %q", typ)
	}
}
