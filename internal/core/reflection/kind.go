package reflection

import "fmt"

// Kind tags the representation of a property, parameter or return value.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindInt
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat
	KindName
	KindString
	KindVector2
	KindUVector2
	KindVector3
	KindVector4
	KindQuaternion
	KindColorRGB
	KindColorRGBA
	KindHandle
	KindEnum
	KindSet
	KindUniqueID
)

var kindNames = [...]string{
	KindVoid:       "Void",
	KindBool:       "Bool",
	KindInt:        "Int",
	KindUint8:      "UInt8",
	KindUint16:     "UInt16",
	KindUint32:     "UInt32",
	KindUint64:     "UInt64",
	KindFloat:      "Float",
	KindName:       "Name",
	KindString:     "String",
	KindVector2:    "Vector2",
	KindUVector2:   "UVector2",
	KindVector3:    "Vector3",
	KindVector4:    "Vector4",
	KindQuaternion: "Quaternion",
	KindColorRGB:   "ColorRGB",
	KindColorRGBA:  "ColorRGBA",
	KindHandle:     "Handle",
	KindEnum:       "Enum",
	KindSet:        "Set",
	KindUniqueID:   "UniqueId",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames)+4)
	for k, name := range kindNames {
		m[name] = Kind(k)
	}
	// aliases seen in type schemas
	m["void"] = KindVoid
	m["Int32"] = KindInt
	m["Util::Name"] = KindName
	m["Util::String"] = KindString
	return m
}()

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind resolves a schema type name.
func ParseKind(name string) (Kind, error) {
	if k, ok := kindsByName[name]; ok {
		return k, nil
	}
	return KindVoid, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Composite reports whether values of k serialize as sub-nodes.
func (k Kind) Composite() bool {
	switch k {
	case KindVector2, KindUVector2, KindVector3, KindVector4, KindQuaternion,
		KindColorRGB, KindColorRGBA, KindEnum, KindHandle:
		return true
	default:
		return false
	}
}
