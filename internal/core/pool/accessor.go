package pool

import (
	"fmt"

	"github.com/talaub/lowzero/internal/core/handle"
)

// Accessor is a typed view of one property, checked once when it is created.
type Accessor[T any] struct {
	pool *Pool
	spec *propertySpec
}

// Property returns the accessor for name. T must be the Go type stored for the
// property's kind.
func Property[T any](p *Pool, name string) (Accessor[T], error) {
	spec, ok := p.property(name)
	if !ok {
		return Accessor[T]{}, fmt.Errorf("%s.%s: %w", p.schema.Name, name, ErrUnknownProperty)
	}
	if _, ok := zeroValue(spec.info.Kind).(T); !ok {
		var want T
		return Accessor[T]{}, fmt.Errorf("%s.%s: %w: %s is not %T", p.schema.Name, name, ErrTypeMismatch, spec.info.Kind, want)
	}
	return Accessor[T]{pool: p, spec: spec}, nil
}

// MustProperty is Property for accessors created at initialisation.
func MustProperty[T any](p *Pool, name string) Accessor[T] {
	a, err := Property[T](p, name)
	if err != nil {
		p.fatal("property", handle.Dead, err)
	}
	return a
}

func (a Accessor[T]) Name() string { return a.spec.info.Name }

func (a Accessor[T]) Get(h handle.Handle) T {
	return a.pool.get(h, a.spec).(T)
}

func (a Accessor[T]) Set(h handle.Handle, v T) {
	a.pool.set(h, a.spec, v)
}
