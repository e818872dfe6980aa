// Package schema reads the declarative type descriptions that parameterise the
// generic pools: one YAML document per module listing types, their properties and
// functions, and the enums they use.
package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/talaub/lowzero/internal/core/reflection"
)

// Document is one module's schema file.
type Document struct {
	Module string  `yaml:"module"`
	Types  []*Type `yaml:"-"`
	Enums  []*Enum `yaml:"-"`
	Source string  `yaml:"-"`
}

// Type describes one engine type.
type Type struct {
	Name   string `yaml:"-"`
	Module string `yaml:"-"`

	TypeID           uint16   `yaml:"type_id"`
	Component        bool     `yaml:"component"`
	Owner            string   `yaml:"owner"`
	UniqueID         bool     `yaml:"unique_id"`
	ReferenceCounted bool     `yaml:"reference_counted"`
	DynamicIncrease  bool     `yaml:"dynamic_increase"`
	Capacity         uint32   `yaml:"capacity"`
	DirtyFlags       []string `yaml:"dirty_flags"`

	Properties []*Property `yaml:"-"`
	Functions  []*Function `yaml:"-"`

	// Synthesized is set once Expand has added the implicit properties.
	Synthesized bool `yaml:"-"`
}

// Property describes one column of a type.
type Property struct {
	Name string `yaml:"-"`

	// Type is a kind name, or a type name when Handle is set, or an enum name when
	// Enum is set.
	Type   string `yaml:"type"`
	Handle bool   `yaml:"handle"`
	Enum   bool   `yaml:"enum"`
	Embed  bool   `yaml:"embed"`

	Static              bool       `yaml:"static"`
	NoGetter            bool       `yaml:"no_getter"`
	NoSetter            bool       `yaml:"no_setter"`
	PrivateGetter       bool       `yaml:"private_getter"`
	PrivateSetter       bool       `yaml:"private_setter"`
	DirtyFlag           StringList `yaml:"dirty_flag"`
	EditorEditable      bool       `yaml:"editor_editable"`
	SkipSerialization   bool       `yaml:"skip_serialization"`
	SkipDeserialization bool       `yaml:"skip_deserialization"`
	SkipDuplication     bool       `yaml:"skip_duplication"`

	// Default is the raw value node, decoded with the same rules as a serialized
	// value once the kind is known.
	Default *yaml.Node `yaml:"-"`
}

// Function describes a callable exposed to script bindings.
type Function struct {
	Name       string       `yaml:"-"`
	ReturnType string       `yaml:"return_type"`
	ReturnsRef bool         `yaml:"return_handle"`
	Static     bool         `yaml:"static"`
	Parameters []*Parameter `yaml:"parameters"`
}

type Parameter struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Handle bool   `yaml:"handle"`
	Enum   bool   `yaml:"enum"`
}

// Enum lists the symbolic values of an enum in numeric order.
type Enum struct {
	Name   string   `yaml:"-"`
	EnumID uint16   `yaml:"enum_id"`
	Values []string `yaml:"values"`
}

// StringList accepts either a scalar or a sequence of scalars.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return err
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", node.Line)
	}
}

// Property returns the named property.
func (t *Type) Property(name string) (*Property, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Kind resolves the reflection kind of p. Unknown kind names resolve to
// reflection.KindVoid; Validate reports them.
func (p *Property) Kind() reflection.Kind {
	switch {
	case p.Handle:
		return reflection.KindHandle
	case p.Enum:
		return reflection.KindEnum
	}
	k, _ := reflection.ParseKind(p.Type)
	return k
}

// Function returns the named function.
func (t *Type) Function(name string) (*Function, bool) {
	for _, f := range t.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Type returns the named type of the document.
func (d *Document) Type(name string) (*Type, bool) {
	for _, t := range d.Types {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
