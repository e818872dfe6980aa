package pool

import "errors"

var (
	ErrBudgetExhausted     = errors.New("budget exhausted")
	ErrIndexSpaceExhausted = errors.New("index space exhausted")
	ErrDeadHandle          = errors.New("handle is not alive")
	ErrWrongType           = errors.New("handle belongs to another type")
	ErrTypeMismatch        = errors.New("value type mismatch")
	ErrIndexOutOfRange     = errors.New("index out of range")
	ErrComponentOnly       = errors.New("operation requires a component type")
	ErrOwnerRequired       = errors.New("component needs a living owner")
	ErrNotForComponents    = errors.New("operation is not available for component types")
	ErrNotReferenceCounted = errors.New("type is not reference counted")
	ErrUnknownProperty     = errors.New("unknown property")
	ErrUnknownFunction     = errors.New("unknown function")
	ErrNotStatic           = errors.New("property is not static")
	ErrClosed              = errors.New("pool is torn down")
	ErrReadOnly            = errors.New("property is bound at creation")
)
