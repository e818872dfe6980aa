package reflection

import "errors"

var (
	ErrUnknownType      = errors.New("type is not registered")
	ErrUnknownEnum      = errors.New("enum is not registered")
	ErrUnknownKind      = errors.New("unknown property kind")
	ErrUnknownProperty  = errors.New("unknown property")
	ErrNotReadable      = errors.New("property has no getter")
	ErrNotWritable      = errors.New("property has no setter")
	ErrDuplicateType    = errors.New("type already registered")
	ErrDuplicateEnum    = errors.New("enum already registered")
	ErrReservedTypeID   = errors.New("type id 0 is reserved")
	ErrFrozen           = errors.New("registry is frozen")
	ErrNoImplementation = errors.New("function has no bound implementation")
)
