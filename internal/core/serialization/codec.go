package serialization

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/math"
	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/reflection"
	"github.com/talaub/lowzero/internal/core/uniqueid"
)

// Document keys with a fixed meaning.
const (
	KeyUniqueID       = "_unique_id"
	KeyLegacyUniqueID = "unique_id"

	keyRefUniqueID = "uniqueid"
	keyRefTypeID   = "typeid"
	keyRefName     = "name"
	keyEnumID      = "enum_id"
	keyEnumValue   = "enum_value"

	propUniqueID = "unique_id"
	propName     = "name"
)

var (
	ErrMalformed   = errors.New("malformed value")
	ErrUnsupported = errors.New("unsupported property kind")
)

// Types is the part of the reflection registry the codec needs.
type Types interface {
	Type(id handle.TypeID) *reflection.TypeInfo
	LookupType(id handle.TypeID) (*reflection.TypeInfo, bool)
	TypeByName(name string) (*reflection.TypeInfo, bool)
	Enum(id uint16) *reflection.EnumInfo
	IsAlive(h handle.Handle) bool
}

// Codec converts between property values and document nodes.
type Codec struct {
	types Types
	ids   *uniqueid.Registry
	log   log.Log
}

func NewCodec(types Types, ids *uniqueid.Registry, logger log.Log) *Codec {
	return &Codec{types: types, ids: ids, log: logger}
}

// Serialize writes every serializable property of h into node in declaration order.
func (c *Codec) Serialize(info *reflection.TypeInfo, h handle.Handle, node *yaml.Node) {
	for _, p := range info.Properties {
		if p.SkipSerialization || p.Static || p.Get == nil {
			continue
		}
		if p.Kind == reflection.KindUniqueID {
			if id, _ := p.Get(h).(uniqueid.ID); id != uniqueid.None {
				SetChild(node, KeyUniqueID, stringNode(id.String()))
			}
			continue
		}
		child, ok, err := c.Encode(p, p.Get(h))
		if err != nil {
			c.log.Warn("Property not serialized",
				log.String("type", info.Name), log.String("property", p.Name), log.Error(err))
			continue
		}
		if ok {
			SetChild(node, p.Name, child)
		}
	}
}

// SerializeHandle serializes h into a fresh mapping through its type's closure.
func (c *Codec) SerializeHandle(h handle.Handle) *yaml.Node {
	node := NewMapping()
	info := c.types.Type(h.Type())
	info.Serialize(h, node)
	return node
}

// Apply sets every present, deserializable property of h from node. Absent keys
// keep their current value; malformed values are logged and skipped.
func (c *Codec) Apply(info *reflection.TypeInfo, h handle.Handle, node *yaml.Node) {
	for _, p := range info.Properties {
		if p.SkipDeserialization || p.Static || p.Set == nil || p.Kind == reflection.KindUniqueID {
			continue
		}
		child := Child(node, p.Name)
		if child == nil {
			continue
		}
		v, err := c.Decode(p, child, h)
		if err != nil {
			c.log.Warn("Property not deserialized",
				log.String("type", info.Name), log.String("property", p.Name), log.Error(err))
			continue
		}
		p.Set(h, v)
	}
}

// ReadUniqueID returns the unique id stored in node. The hashed-string field is
// preferred over the legacy numeric one.
func (c *Codec) ReadUniqueID(node *yaml.Node) uniqueid.ID {
	if child := Child(node, KeyUniqueID); child != nil {
		if id, err := uniqueid.Parse(child.Value); err == nil {
			return id
		}
	}
	if child := Child(node, KeyLegacyUniqueID); child != nil {
		if v, err := strconv.ParseUint(child.Value, 10, 64); err == nil {
			return uniqueid.ID(v)
		}
	}
	return uniqueid.None
}

// Encode renders v according to the kind of p. It reports false when nothing
// should be written, which is the case for handles that are not alive.
func (c *Codec) Encode(p *reflection.PropertyInfo, v any) (*yaml.Node, bool, error) {
	switch p.Kind {
	case reflection.KindBool:
		return boolNode(v.(bool)), true, nil
	case reflection.KindInt:
		return intNode(int64(v.(int32))), true, nil
	case reflection.KindUint8:
		return uintNode(uint64(v.(uint8))), true, nil
	case reflection.KindUint16:
		return uintNode(uint64(v.(uint16))), true, nil
	case reflection.KindUint32:
		return uintNode(uint64(v.(uint32))), true, nil
	case reflection.KindUint64:
		return uintNode(v.(uint64)), true, nil
	case reflection.KindFloat:
		return floatNode(v.(float32)), true, nil
	case reflection.KindName, reflection.KindString:
		return stringNode(v.(string)), true, nil
	case reflection.KindVector2:
		vec := v.(math.Vector2)
		return mappingOf("x", floatNode(vec.X), "y", floatNode(vec.Y)), true, nil
	case reflection.KindUVector2:
		vec := v.(math.UVector2)
		return mappingOf("x", uintNode(uint64(vec.X)), "y", uintNode(uint64(vec.Y))), true, nil
	case reflection.KindVector3, reflection.KindColorRGB:
		vec := v.(math.Vector3)
		return mappingOf("x", floatNode(vec.X), "y", floatNode(vec.Y), "z", floatNode(vec.Z)), true, nil
	case reflection.KindVector4:
		vec := v.(math.Vector4)
		return mappingOf("x", floatNode(vec.X), "y", floatNode(vec.Y), "z", floatNode(vec.Z), "w", floatNode(vec.W)), true, nil
	case reflection.KindColorRGBA:
		col := v.(math.ColorRGBA)
		return mappingOf("x", floatNode(col.X), "y", floatNode(col.Y), "z", floatNode(col.Z), "a", floatNode(col.A)), true, nil
	case reflection.KindQuaternion:
		q := v.(math.Quaternion)
		return mappingOf("x", floatNode(q.X), "y", floatNode(q.Y), "z", floatNode(q.Z), "w", floatNode(q.W)), true, nil
	case reflection.KindEnum:
		enum := c.types.Enum(p.EnumID)
		return mappingOf(
			keyEnumID, uintNode(uint64(p.EnumID)),
			keyEnumValue, stringNode(enum.EntryName(v.(uint8))),
		), true, nil
	case reflection.KindUniqueID:
		return stringNode(v.(uniqueid.ID).String()), true, nil
	case reflection.KindSet:
		ids := v.([]uint64)
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, id := range ids {
			seq.Content = append(seq.Content, uintNode(id))
		}
		return seq, true, nil
	case reflection.KindHandle:
		return c.encodeHandle(p, v.(handle.Handle))
	default:
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupported, p.Kind)
	}
}

func (c *Codec) encodeHandle(p *reflection.PropertyInfo, h handle.Handle) (*yaml.Node, bool, error) {
	if !c.types.IsAlive(h) {
		return nil, false, nil
	}
	info := c.types.Type(h.Type())
	if p.Embedded {
		sub := NewMapping()
		info.Serialize(h, sub)
		return sub, true, nil
	}
	if prop, ok := info.Property(propUniqueID); ok && prop.Get != nil {
		id := prop.Get(h).(uniqueid.ID)
		return mappingOf(keyRefUniqueID, stringNode(id.String())), true, nil
	}
	if prop, ok := info.Property(propName); ok && prop.Get != nil {
		return mappingOf(
			keyRefTypeID, uintNode(uint64(info.ID)),
			keyRefName, stringNode(prop.Get(h).(string)),
		), true, nil
	}
	return nil, false, fmt.Errorf("%w: %s has neither a unique id nor a name", ErrUnsupported, info.Name)
}

// Decode converts node back into a value of the kind of p. owner is the instance
// being deserialized; it becomes the creator of embedded handles.
func (c *Codec) Decode(p *reflection.PropertyInfo, node *yaml.Node, owner handle.Handle) (any, error) {
	switch p.Kind {
	case reflection.KindBool:
		return parseBool(node)
	case reflection.KindInt:
		v, err := parseInt(node, 32)
		return int32(v), err
	case reflection.KindUint8:
		v, err := parseUint(node, 8)
		return uint8(v), err
	case reflection.KindUint16:
		v, err := parseUint(node, 16)
		return uint16(v), err
	case reflection.KindUint32:
		v, err := parseUint(node, 32)
		return uint32(v), err
	case reflection.KindUint64:
		return parseUint(node, 64)
	case reflection.KindFloat:
		return parseFloat(node)
	case reflection.KindName, reflection.KindString:
		return scalarValue(node)
	case reflection.KindVector2:
		var vec math.Vector2
		err := decodeFloats(node, []string{"x", "y"}, &vec.X, &vec.Y)
		return vec, err
	case reflection.KindUVector2:
		if node.Kind != yaml.MappingNode {
			return math.UVector2{}, fmt.Errorf("%w: expected mapping", ErrMalformed)
		}
		x, errX := uintField(node, "x")
		y, errY := uintField(node, "y")
		return math.UVector2{X: x, Y: y}, errors.Join(errX, errY)
	case reflection.KindVector3, reflection.KindColorRGB:
		var vec math.Vector3
		err := decodeFloats(node, []string{"x", "y", "z"}, &vec.X, &vec.Y, &vec.Z)
		return vec, err
	case reflection.KindVector4:
		var vec math.Vector4
		err := decodeFloats(node, []string{"x", "y", "z", "w"}, &vec.X, &vec.Y, &vec.Z, &vec.W)
		return vec, err
	case reflection.KindColorRGBA:
		var col math.ColorRGBA
		err := decodeFloats(node, []string{"x", "y", "z", "a"}, &col.X, &col.Y, &col.Z, &col.A)
		return col, err
	case reflection.KindQuaternion:
		var q math.Quaternion
		err := decodeFloats(node, []string{"x", "y", "z", "w"}, &q.X, &q.Y, &q.Z, &q.W)
		return q, err
	case reflection.KindEnum:
		return c.decodeEnum(p, node)
	case reflection.KindUniqueID:
		s, err := scalarValue(node)
		if err != nil {
			return uniqueid.None, err
		}
		return uniqueid.Parse(s)
	case reflection.KindSet:
		var ids []uint64
		if err := node.Decode(&ids); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		slices.Sort(ids)
		return slices.Compact(ids), nil
	case reflection.KindHandle:
		return c.decodeHandle(p, node, owner)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, p.Kind)
	}
}

func (c *Codec) decodeEnum(p *reflection.PropertyInfo, node *yaml.Node) (uint8, error) {
	name := node.Value
	if node.Kind == yaml.MappingNode {
		child := Child(node, keyEnumValue)
		if child == nil {
			return 0, fmt.Errorf("%w: enum without %s", ErrMalformed, keyEnumValue)
		}
		name = child.Value
	}
	enum := c.types.Enum(p.EnumID)
	v, ok := enum.EntryValue(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no value %q", ErrMalformed, enum.Name, name)
	}
	return v, nil
}

func (c *Codec) decodeHandle(p *reflection.PropertyInfo, node *yaml.Node, owner handle.Handle) (handle.Handle, error) {
	if node.Kind != yaml.MappingNode {
		return handle.Dead, nil
	}
	if p.Embedded {
		info, ok := c.types.TypeByName(p.HandleType)
		if !ok {
			return handle.Dead, fmt.Errorf("%w: %s", reflection.ErrUnknownType, p.HandleType)
		}
		return info.Deserialize(node, owner), nil
	}
	if child := Child(node, keyRefUniqueID); child != nil {
		id, err := decodeReferenceID(child)
		if err != nil {
			return handle.Dead, err
		}
		return c.ids.Find(id), nil
	}
	if child := Child(node, keyRefName); child != nil {
		typeID, err := parseUint(Child(node, keyRefTypeID), 16)
		if err != nil {
			return handle.Dead, err
		}
		info, ok := c.types.LookupType(handle.TypeID(typeID))
		if !ok || info.FindByName == nil {
			return handle.Dead, nil
		}
		return info.FindByName(child.Value), nil
	}
	return handle.Dead, nil
}

// decodeReferenceID accepts hex strings and plain integers.
func decodeReferenceID(node *yaml.Node) (uniqueid.ID, error) {
	if node.ShortTag() == "!!int" {
		v, err := parseUint(node, 64)
		return uniqueid.ID(v), err
	}
	return uniqueid.Parse(node.Value)
}

func decodeFloats(node *yaml.Node, keys []string, out ...*float32) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: expected mapping", ErrMalformed)
	}
	var errs []error
	for i, key := range keys {
		v, err := floatField(node, key)
		errs = append(errs, err)
		*out[i] = v
	}
	return errors.Join(errs...)
}
