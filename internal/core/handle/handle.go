package handle

import "fmt"

// TypeID identifies a registered type. Zero is reserved and never registered.
type TypeID uint16

// Handle identifies an instance by type, slot index and slot generation.
// It owns no data and is safe to copy and compare.
//
// Bit layout: index in bits 0-31, generation in bits 32-47, type in bits 48-63.
type Handle uint64

// Dead is the zero handle. It never validates against any pool.
const Dead Handle = 0

const (
	indexBits      = 32
	generationBits = 16

	generationShift = indexBits
	typeShift       = indexBits + generationBits

	indexMask      = 1<<indexBits - 1
	generationMask = 1<<generationBits - 1
)

// MaxIndex is the largest slot index a handle can address.
const MaxIndex = indexMask

// New packs a handle from its parts.
func New(typ TypeID, index uint32, generation uint16) Handle {
	return Handle(uint64(index) | uint64(generation)<<generationShift | uint64(typ)<<typeShift)
}

// ID returns the packed 64-bit identity.
func (h Handle) ID() uint64 { return uint64(h) }

func (h Handle) Index() uint32 { return uint32(uint64(h) & indexMask) }

func (h Handle) Generation() uint16 {
	return uint16(uint64(h) >> generationShift & generationMask)
}

func (h Handle) Type() TypeID { return TypeID(uint64(h) >> typeShift) }

// IsDead reports whether h is the zero handle. A non-zero handle may still be stale;
// only the owning pool can tell.
func (h Handle) IsDead() bool { return h == Dead }

// WithGeneration returns a copy of h bound to another generation of the same slot.
func (h Handle) WithGeneration(generation uint16) Handle {
	return New(h.Type(), h.Index(), generation)
}

func (h Handle) String() string {
	if h.IsDead() {
		return "handle(dead)"
	}
	return fmt.Sprintf("handle(type=%d index=%d gen=%d)", h.Type(), h.Index(), h.Generation())
}

// FromID reverses ID.
func FromID(id uint64) Handle { return Handle(id) }
