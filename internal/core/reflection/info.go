package reflection

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/talaub/lowzero/internal/core/handle"
)

// PropertyInfo describes one property of a registered type. Accessors operate on an
// opaque handle so callers need no compile-time knowledge of the type.
type PropertyInfo struct {
	Name string
	Kind Kind

	// HandleType names the referenced type when Kind is KindHandle.
	HandleType string
	// Embedded handles are serialized as owned sub-documents instead of references.
	Embedded bool
	// EnumID identifies the enum when Kind is KindEnum.
	EnumID uint16

	Static              bool
	EditorEditable      bool
	PrivateGetter       bool
	PrivateSetter       bool
	SkipSerialization   bool
	SkipDeserialization bool
	SkipDuplication     bool

	// Get returns a copy of the current value. Nil when the property has no getter.
	Get func(h handle.Handle) any
	// Set commits v and notifies observers. Nil when the property has no setter.
	Set func(h handle.Handle, v any)
	// Into copies the current value into dst, which must be a pointer to the
	// property's Go type.
	Into func(h handle.Handle, dst any) error
}

func (p *PropertyInfo) Readable() bool { return p.Get != nil }
func (p *PropertyInfo) Writable() bool { return p.Set != nil }

type ParameterInfo struct {
	Name       string
	Kind       Kind
	HandleType string
	EnumID     uint16
}

// FunctionInfo describes a callable exposed to script bindings.
type FunctionInfo struct {
	Name             string
	Static           bool
	Return           Kind
	ReturnHandleType string
	Parameters       []ParameterInfo

	// Invoke is bound by the owner of the type; nil until then.
	Invoke func(h handle.Handle, args ...any) (any, error)
}

// Call runs the bound implementation.
func (f *FunctionInfo) Call(h handle.Handle, args ...any) (any, error) {
	if f.Invoke == nil {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrNoImplementation)
	}
	if len(args) != len(f.Parameters) {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", f.Name, len(f.Parameters), len(args))
	}
	return f.Invoke(h, args...)
}

// EnumInfo maps the numeric values of an enum to symbolic names.
type EnumInfo struct {
	ID     uint16
	Name   string
	Values []string
}

// EntryName returns the symbolic name of v, or "" when out of range.
func (e *EnumInfo) EntryName(v uint8) string {
	if int(v) >= len(e.Values) {
		return ""
	}
	return e.Values[v]
}

// EntryValue resolves a symbolic name.
func (e *EnumInfo) EntryValue(name string) (uint8, bool) {
	for i, n := range e.Values {
		if n == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// TypeInfo is the vtable of closures and metadata for a registered type.
type TypeInfo struct {
	ID        handle.TypeID
	Name      string
	Module    string
	Component bool
	UniqueID  bool

	// Properties and Functions are kept in declaration order.
	Properties []*PropertyInfo
	Functions  []*FunctionInfo

	properties map[string]*PropertyInfo
	functions  map[string]*FunctionInfo

	Capacity    func() uint32
	LivingCount func() int
	Living      func() []handle.Handle
	FindByIndex func(index uint32) handle.Handle
	// FindByName is nil for component types.
	FindByName func(name string) handle.Handle
	IsAlive    func(h handle.Handle) bool
	Destroy    func(h handle.Handle)
	// MakeDefault is nil for component types.
	MakeDefault func(name string) handle.Handle
	// MakeComponent is nil for non-component types.
	MakeComponent func(owner handle.Handle) handle.Handle
	Duplicate     func(h handle.Handle, name string) handle.Handle
	// DuplicateComponent is nil for non-component types.
	DuplicateComponent func(h, owner handle.Handle) handle.Handle
	Serialize          func(h handle.Handle, node *yaml.Node)
	Deserialize        func(node *yaml.Node, creator handle.Handle) handle.Handle
	Notify             func(subscriber, observed handle.Handle, observable string)
}

// AddProperty appends p in declaration order.
func (t *TypeInfo) AddProperty(p *PropertyInfo) {
	if t.properties == nil {
		t.properties = make(map[string]*PropertyInfo)
	}
	t.properties[p.Name] = p
	t.Properties = append(t.Properties, p)
}

// AddFunction appends f in declaration order.
func (t *TypeInfo) AddFunction(f *FunctionInfo) {
	if t.functions == nil {
		t.functions = make(map[string]*FunctionInfo)
	}
	t.functions[f.Name] = f
	t.Functions = append(t.Functions, f)
}

func (t *TypeInfo) Property(name string) (*PropertyInfo, bool) {
	p, ok := t.properties[name]
	return p, ok
}

func (t *TypeInfo) Function(name string) (*FunctionInfo, bool) {
	f, ok := t.functions[name]
	return f, ok
}

// GetProperty reads a property through its generic accessor.
func (t *TypeInfo) GetProperty(h handle.Handle, name string) (any, error) {
	p, ok := t.properties[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", t.Name, name, ErrUnknownProperty)
	}
	if p.Get == nil {
		return nil, fmt.Errorf("%s.%s: %w", t.Name, name, ErrNotReadable)
	}
	return p.Get(h), nil
}

// SetProperty writes a property through its generic accessor.
func (t *TypeInfo) SetProperty(h handle.Handle, name string, v any) error {
	p, ok := t.properties[name]
	if !ok {
		return fmt.Errorf("%s.%s: %w", t.Name, name, ErrUnknownProperty)
	}
	if p.Set == nil {
		return fmt.Errorf("%s.%s: %w", t.Name, name, ErrNotWritable)
	}
	p.Set(h, v)
	return nil
}
