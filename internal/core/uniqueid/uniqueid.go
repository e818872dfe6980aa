// Package uniqueid assigns process-wide ids to handles that must survive a
// save/load cycle and resolves them back to live handles.
package uniqueid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/talaub/lowzero/internal/core/handle"
)

var (
	ErrAlreadyRegistered = errors.New("unique id already registered")
	ErrInvalidID         = errors.New("invalid unique id")
)

// ID is a 64-bit unique id. Zero means unassigned.
type ID uint64

const None ID = 0

// String renders id as 16 lower-case hex digits.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Parse reverses String.
func Parse(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return None, fmt.Errorf("%w %q: %w", ErrInvalidID, s, err)
	}
	return ID(v), nil
}

// Registry maps unique ids to handles.
type Registry struct {
	mu      sync.RWMutex
	handles map[ID]handle.Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[ID]handle.Handle)}
}

// Assign generates a fresh id for h and registers it.
func (r *Registry) Assign(h handle.Handle) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := generate(h)
		if _, taken := r.handles[id]; taken || id == None {
			continue
		}
		r.handles[id] = h
		return id
	}
}

// Register binds a known id, typically one read from a document.
func (r *Registry) Register(id ID, h handle.Handle) error {
	if id == None {
		return ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.handles[id]; ok && existing != h {
		return fmt.Errorf("%w: %s held by %s", ErrAlreadyRegistered, id, existing)
	}
	r.handles[id] = h
	return nil
}

func (r *Registry) Lookup(id ID) (handle.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Find returns the handle for id, or handle.Dead.
func (r *Registry) Find(id ID) handle.Handle {
	h, _ := r.Lookup(id)
	return h
}

func (r *Registry) Remove(id ID) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Reset drops every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	clear(r.handles)
	r.mu.Unlock()
}

func generate(h handle.Handle) ID {
	u := uuid.New()
	var buf [24]byte
	copy(buf[:16], u[:])
	binary.LittleEndian.PutUint64(buf[16:], h.ID())
	return ID(xxhash.Sum64(buf[:]))
}
