package schema

import (
	"errors"
	"fmt"
	"slices"

	"github.com/talaub/lowzero/internal/core/reflection"
)

var ErrInvalidSchema = errors.New("invalid schema")

// Validate checks a set of expanded documents as a whole: type and enum ids are
// unique, every handle and enum reference resolves, and dirty flags name
// declared flags. All problems are reported together.
func Validate(docs ...*Document) error {
	types := make(map[string]*Type)
	typeIDs := make(map[uint16]string)
	enums := make(map[string]*Enum)
	enumIDs := make(map[uint16]string)

	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidSchema}, args...)...))
	}

	for _, doc := range docs {
		for _, e := range doc.Enums {
			if other, ok := enumIDs[e.EnumID]; ok {
				fail("enum %s: id %d already used by %s", e.Name, e.EnumID, other)
			}
			if _, ok := enums[e.Name]; ok {
				fail("enum %s declared twice", e.Name)
			}
			if len(e.Values) == 0 || len(e.Values) > 256 {
				fail("enum %s: needs between 1 and 256 values", e.Name)
			}
			enumIDs[e.EnumID] = e.Name
			enums[e.Name] = e
		}
		for _, t := range doc.Types {
			if t.TypeID == 0 {
				fail("type %s: type_id 0 is reserved", t.Name)
			}
			if other, ok := typeIDs[t.TypeID]; ok {
				fail("type %s: id %d already used by %s", t.Name, t.TypeID, other)
			}
			if _, ok := types[t.Name]; ok {
				fail("type %s declared twice", t.Name)
			}
			typeIDs[t.TypeID] = t.Name
			types[t.Name] = t
		}
	}

	for _, doc := range docs {
		for _, t := range doc.Types {
			if t.Component {
				owner, ok := types[t.Owner]
				switch {
				case !ok:
					fail("component %s: unknown owner type %s", t.Name, t.Owner)
				case owner.Component:
					fail("component %s: owner %s is itself a component", t.Name, t.Owner)
				}
			}
			if !t.DynamicIncrease && t.Capacity == 0 {
				fail("type %s: fixed capacity types need a capacity", t.Name)
			}
			for _, p := range t.Properties {
				if err := resolve(p.Type, p.Handle, p.Enum, types, enums); err != nil {
					fail("%s.%s: %v", t.Name, p.Name, err)
				}
				if p.Embed && !p.Handle {
					fail("%s.%s: embed requires a handle property", t.Name, p.Name)
				}
				for _, flag := range p.DirtyFlag {
					if !slices.Contains(t.DirtyFlags, flag) {
						fail("%s.%s: unknown dirty flag %s", t.Name, p.Name, flag)
					}
				}
			}
			for _, f := range t.Functions {
				if f.ReturnType != "" {
					if err := resolve(f.ReturnType, f.ReturnsRef, false, types, enums); err != nil {
						fail("%s.%s return: %v", t.Name, f.Name, err)
					}
				}
				for _, param := range f.Parameters {
					if err := resolve(param.Type, param.Handle, param.Enum, types, enums); err != nil {
						fail("%s.%s(%s): %v", t.Name, f.Name, param.Name, err)
					}
				}
			}
		}
	}

	return errors.Join(errs...)
}

func resolve(typ string, isHandle, isEnum bool, types map[string]*Type, enums map[string]*Enum) error {
	switch {
	case isHandle:
		if _, ok := types[typ]; !ok {
			return fmt.Errorf("unknown handle type %s", typ)
		}
	case isEnum:
		if _, ok := enums[typ]; !ok {
			return fmt.Errorf("unknown enum %s", typ)
		}
	default:
		if _, err := reflection.ParseKind(typ); err != nil {
			return err
		}
	}
	return nil
}
