// Package math holds the plain value types stored in property columns.
package math

type Vector2 struct {
	X, Y float32
}

type UVector2 struct {
	X, Y uint32
}

type Vector3 struct {
	X, Y, Z float32
}

type Vector4 struct {
	X, Y, Z, W float32
}

// ColorRGB shares the Vector3 layout; X, Y and Z are red, green and blue.
type ColorRGB = Vector3

// ColorRGBA serializes its alpha channel as "a".
type ColorRGBA struct {
	X, Y, Z, A float32
}

type Quaternion struct {
	X, Y, Z, W float32
}

// IdentityQuaternion is the default rotation.
func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}
