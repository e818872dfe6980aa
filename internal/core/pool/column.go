package pool

import (
	"fmt"
	"maps"
	"slices"

	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/math"
	"github.com/talaub/lowzero/internal/core/reflection"
	"github.com/talaub/lowzero/internal/core/uniqueid"
)

// column is one property's storage across the slots of a page.
type column interface {
	get(slot uint32) any
	set(slot uint32, v any) error
	into(slot uint32, dst any) error
	equal(slot uint32, v any) bool
	reset(slot uint32)
}

type typedColumn[T comparable] struct {
	values []T
	def    T
}

func newTypedColumn[T comparable](size uint32, def any) *typedColumn[T] {
	c := &typedColumn[T]{values: make([]T, size), def: def.(T)}
	for i := range c.values {
		c.values[i] = c.def
	}
	return c
}

func (c *typedColumn[T]) get(slot uint32) any { return c.values[slot] }

func (c *typedColumn[T]) set(slot uint32, v any) error {
	val, ok := v.(T)
	if !ok {
		return fmt.Errorf("%w: want %T, got %T", ErrTypeMismatch, c.def, v)
	}
	c.values[slot] = val
	return nil
}

func (c *typedColumn[T]) into(slot uint32, dst any) error {
	ptr, ok := dst.(*T)
	if !ok {
		return fmt.Errorf("%w: want *%T, got %T", ErrTypeMismatch, c.def, dst)
	}
	*ptr = c.values[slot]
	return nil
}

func (c *typedColumn[T]) equal(slot uint32, v any) bool {
	val, ok := v.(T)
	return ok && c.values[slot] == val
}

func (c *typedColumn[T]) reset(slot uint32) { c.values[slot] = c.def }

// setColumn holds the reference sets of reference-counted types. Values leave the
// column as sorted copies.
type setColumn struct {
	values []map[uint64]struct{}
}

func newSetColumn(size uint32) *setColumn {
	return &setColumn{values: make([]map[uint64]struct{}, size)}
}

func (c *setColumn) get(slot uint32) any {
	return slices.Sorted(maps.Keys(c.values[slot]))
}

func (c *setColumn) set(slot uint32, v any) error {
	ids, ok := v.([]uint64)
	if !ok {
		return fmt.Errorf("%w: want []uint64, got %T", ErrTypeMismatch, v)
	}
	m := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	c.values[slot] = m
	return nil
}

func (c *setColumn) into(slot uint32, dst any) error {
	ptr, ok := dst.(*[]uint64)
	if !ok {
		return fmt.Errorf("%w: want *[]uint64, got %T", ErrTypeMismatch, dst)
	}
	*ptr = c.get(slot).([]uint64)
	return nil
}

func (c *setColumn) equal(slot uint32, v any) bool {
	ids, ok := v.([]uint64)
	if !ok || len(ids) != len(c.values[slot]) {
		return false
	}
	for _, id := range ids {
		if _, ok := c.values[slot][id]; !ok {
			return false
		}
	}
	return true
}

func (c *setColumn) reset(slot uint32) { c.values[slot] = nil }

// add and remove return the set size before and after the change.
func (c *setColumn) add(slot uint32, id uint64) (int, int) {
	before := len(c.values[slot])
	if c.values[slot] == nil {
		c.values[slot] = make(map[uint64]struct{})
	}
	c.values[slot][id] = struct{}{}
	return before, len(c.values[slot])
}

func (c *setColumn) remove(slot uint32, id uint64) (int, int) {
	before := len(c.values[slot])
	delete(c.values[slot], id)
	return before, len(c.values[slot])
}

func (c *setColumn) len(slot uint32) int { return len(c.values[slot]) }

// zeroValue is the default-constructed value of a kind.
func zeroValue(k reflection.Kind) any {
	switch k {
	case reflection.KindBool:
		return false
	case reflection.KindInt:
		return int32(0)
	case reflection.KindUint8, reflection.KindEnum:
		return uint8(0)
	case reflection.KindUint16:
		return uint16(0)
	case reflection.KindUint32:
		return uint32(0)
	case reflection.KindUint64:
		return uint64(0)
	case reflection.KindFloat:
		return float32(0)
	case reflection.KindName, reflection.KindString:
		return ""
	case reflection.KindVector2:
		return math.Vector2{}
	case reflection.KindUVector2:
		return math.UVector2{}
	case reflection.KindVector3, reflection.KindColorRGB:
		return math.Vector3{}
	case reflection.KindVector4:
		return math.Vector4{}
	case reflection.KindColorRGBA:
		return math.ColorRGBA{}
	case reflection.KindQuaternion:
		return math.IdentityQuaternion()
	case reflection.KindHandle:
		return handle.Dead
	case reflection.KindUniqueID:
		return uniqueid.None
	case reflection.KindSet:
		return []uint64(nil)
	default:
		return nil
	}
}

func newColumn(k reflection.Kind, size uint32, def any) column {
	switch k {
	case reflection.KindBool:
		return newTypedColumn[bool](size, def)
	case reflection.KindInt:
		return newTypedColumn[int32](size, def)
	case reflection.KindUint8, reflection.KindEnum:
		return newTypedColumn[uint8](size, def)
	case reflection.KindUint16:
		return newTypedColumn[uint16](size, def)
	case reflection.KindUint32:
		return newTypedColumn[uint32](size, def)
	case reflection.KindUint64:
		return newTypedColumn[uint64](size, def)
	case reflection.KindFloat:
		return newTypedColumn[float32](size, def)
	case reflection.KindName, reflection.KindString:
		return newTypedColumn[string](size, def)
	case reflection.KindVector2:
		return newTypedColumn[math.Vector2](size, def)
	case reflection.KindUVector2:
		return newTypedColumn[math.UVector2](size, def)
	case reflection.KindVector3, reflection.KindColorRGB:
		return newTypedColumn[math.Vector3](size, def)
	case reflection.KindVector4:
		return newTypedColumn[math.Vector4](size, def)
	case reflection.KindColorRGBA:
		return newTypedColumn[math.ColorRGBA](size, def)
	case reflection.KindQuaternion:
		return newTypedColumn[math.Quaternion](size, def)
	case reflection.KindHandle:
		return newTypedColumn[handle.Handle](size, def)
	case reflection.KindUniqueID:
		return newTypedColumn[uniqueid.ID](size, def)
	case reflection.KindSet:
		return newSetColumn(size)
	default:
		panic(fmt.Sprintf("pool: no column for kind %s", k))
	}
}
