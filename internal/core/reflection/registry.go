package reflection

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/talaub/lowzero/internal/core/fault"
	"github.com/talaub/lowzero/internal/core/handle"
)

// TypeRegistry maps type ids to their TypeInfo. It is populated before any
// instance is created; lookups by an unregistered id are fatal.
type TypeRegistry interface {
	Register(info *TypeInfo) error
	RegisterEnum(info *EnumInfo) error

	Type(id handle.TypeID) *TypeInfo
	LookupType(id handle.TypeID) (*TypeInfo, bool)
	TypeByName(name string) (*TypeInfo, bool)
	Types() []*TypeInfo

	Enum(id uint16) *EnumInfo
	LookupEnum(id uint16) (*EnumInfo, bool)
	EnumByName(name string) (*EnumInfo, bool)

	Freeze()
}

var _ TypeRegistry = (*Registry)(nil)

type registryState struct {
	types       map[handle.TypeID]*TypeInfo
	typesByName map[string]*TypeInfo
	order       []*TypeInfo
	enums       map[uint16]*EnumInfo
	enumsByName map[string]*EnumInfo
	frozen      bool
}

// Registry publishes immutable snapshots so readers never take a lock. Writers
// serialize on mu and swap in a copied state.
type Registry struct {
	mu    sync.Mutex
	state atomic.Pointer[registryState]
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.state.Store(&registryState{
		types:       make(map[handle.TypeID]*TypeInfo),
		typesByName: make(map[string]*TypeInfo),
		enums:       make(map[uint16]*EnumInfo),
		enumsByName: make(map[string]*EnumInfo),
	})
	return r
}

func (r *Registry) Register(info *TypeInfo) error {
	if info.ID == 0 {
		return fmt.Errorf("register %s: %w", info.Name, ErrReservedTypeID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	if cur.frozen {
		return fmt.Errorf("register %s: %w", info.Name, ErrFrozen)
	}
	if existing, ok := cur.types[info.ID]; ok {
		return fmt.Errorf("register %s: id %d held by %s: %w", info.Name, info.ID, existing.Name, ErrDuplicateType)
	}
	if _, ok := cur.typesByName[info.Name]; ok {
		return fmt.Errorf("register %s: %w", info.Name, ErrDuplicateType)
	}

	next := cur.clone()
	next.types[info.ID] = info
	next.typesByName[info.Name] = info
	next.order = append(next.order, info)
	r.state.Store(next)
	return nil
}

func (r *Registry) RegisterEnum(info *EnumInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	if cur.frozen {
		return fmt.Errorf("register enum %s: %w", info.Name, ErrFrozen)
	}
	if _, ok := cur.enums[info.ID]; ok {
		return fmt.Errorf("register enum %s: %w", info.Name, ErrDuplicateEnum)
	}
	if _, ok := cur.enumsByName[info.Name]; ok {
		return fmt.Errorf("register enum %s: %w", info.Name, ErrDuplicateEnum)
	}

	next := cur.clone()
	next.enums[info.ID] = info
	next.enumsByName[info.Name] = info
	r.state.Store(next)
	return nil
}

// Type returns the TypeInfo for id and panics when id is unknown.
func (r *Registry) Type(id handle.TypeID) *TypeInfo {
	info, ok := r.state.Load().types[id]
	if !ok {
		fault.Raise("type lookup", fmt.Sprintf("#%d", id), ErrUnknownType)
	}
	return info
}

func (r *Registry) LookupType(id handle.TypeID) (*TypeInfo, bool) {
	info, ok := r.state.Load().types[id]
	return info, ok
}

func (r *Registry) TypeByName(name string) (*TypeInfo, bool) {
	info, ok := r.state.Load().typesByName[name]
	return info, ok
}

// Types lists registered types in registration order.
func (r *Registry) Types() []*TypeInfo {
	order := r.state.Load().order
	out := make([]*TypeInfo, len(order))
	copy(out, order)
	return out
}

// Enum returns the EnumInfo for id and panics when id is unknown.
func (r *Registry) Enum(id uint16) *EnumInfo {
	info, ok := r.state.Load().enums[id]
	if !ok {
		fault.Raise("enum lookup", fmt.Sprintf("#%d", id), ErrUnknownEnum)
	}
	return info
}

func (r *Registry) LookupEnum(id uint16) (*EnumInfo, bool) {
	info, ok := r.state.Load().enums[id]
	return info, ok
}

func (r *Registry) EnumByName(name string) (*EnumInfo, bool) {
	info, ok := r.state.Load().enumsByName[name]
	return info, ok
}

// Freeze rejects any further registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.state.Load().clone()
	next.frozen = true
	r.state.Store(next)
}

func (r *Registry) Frozen() bool { return r.state.Load().frozen }

// IsAlive resolves the type of h and asks its pool. Unknown types report false.
func (r *Registry) IsAlive(h handle.Handle) bool {
	if h.IsDead() {
		return false
	}
	info, ok := r.LookupType(h.Type())
	if !ok || info.IsAlive == nil {
		return false
	}
	return info.IsAlive(h)
}

// Notify forwards a notification to the subscriber type's Notify closure.
func (r *Registry) Notify(subscriber, observed handle.Handle, observable string) {
	info := r.Type(subscriber.Type())
	if info.Notify != nil {
		info.Notify(subscriber, observed, observable)
	}
}

func (s *registryState) clone() *registryState {
	next := &registryState{
		types:       make(map[handle.TypeID]*TypeInfo, len(s.types)+1),
		typesByName: make(map[string]*TypeInfo, len(s.typesByName)+1),
		order:       make([]*TypeInfo, len(s.order), len(s.order)+1),
		enums:       make(map[uint16]*EnumInfo, len(s.enums)+1),
		enumsByName: make(map[string]*EnumInfo, len(s.enumsByName)+1),
		frozen:      s.frozen,
	}
	for k, v := range s.types {
		next.types[k] = v
	}
	for k, v := range s.typesByName {
		next.typesByName[k] = v
	}
	copy(next.order, s.order)
	for k, v := range s.enums {
		next.enums[k] = v
	}
	for k, v := range s.enumsByName {
		next.enumsByName[k] = v
	}
	return next
}
