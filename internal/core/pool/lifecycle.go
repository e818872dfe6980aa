package pool

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/talaub/lowzero/internal/core/fault"
	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/observer"
	"github.com/talaub/lowzero/internal/core/reflection"
	"github.com/talaub/lowzero/internal/core/serialization"
	"github.com/talaub/lowzero/internal/core/uniqueid"
)

// Create allocates a default-constructed instance of a non-component type and
// returns the allocation errors instead of raising them.
func (p *Pool) Create(name string) (handle.Handle, error) {
	if p.schema.Component {
		return handle.Dead, ErrNotForComponents
	}
	return p.make(handle.Dead, name, uniqueid.None)
}

// MakeNamed allocates an instance of a non-component type. Running out of budget
// is fatal.
func (p *Pool) MakeNamed(name string) handle.Handle {
	if p.schema.Component {
		p.fatal("make", handle.Dead, ErrNotForComponents)
	}
	return p.mustMake("make", handle.Dead, name, uniqueid.None)
}

// Make allocates an unnamed instance of a non-component type.
func (p *Pool) Make() handle.Handle {
	return p.MakeNamed("")
}

// MakeComponent allocates a component owned by owner. The component is
// destroyed together with its owner.
func (p *Pool) MakeComponent(owner handle.Handle) handle.Handle {
	if !p.schema.Component {
		p.fatal("make component", owner, ErrComponentOnly)
	}
	return p.mustMake("make component", owner, "", uniqueid.None)
}

func (p *Pool) mustMake(op string, owner handle.Handle, name string, id uniqueid.ID) handle.Handle {
	h, err := p.make(owner, name, id)
	if err != nil {
		p.fatal(op, owner, err)
	}
	return h
}

// make claims a slot, fills the implicit properties, binds the unique id and runs
// OnMake. A non-None id that is already bound elsewhere is replaced by a fresh one.
func (p *Pool) make(owner handle.Handle, name string, id uniqueid.ID) (handle.Handle, error) {
	if p.schema.Component && !p.svc.Types.IsAlive(owner) {
		return handle.Dead, fmt.Errorf("%w: %s", ErrOwnerRequired, owner)
	}

	index, generation, err := p.createInstance()
	if err != nil {
		return handle.Dead, err
	}
	h := handle.New(p.id, index, generation)

	if p.uniqueSpec != nil {
		if id == uniqueid.None {
			id = p.svc.IDs.Assign(h)
		} else if err := p.svc.IDs.Register(id, h); err != nil {
			p.logger.Warn("Unique id reassigned", log.Stringer("handle", h), log.Error(err))
			id = p.svc.IDs.Assign(h)
		}
	}

	pg, i := p.locate(index)
	pg.read(func(columns []column) {
		if p.ownerSpec != nil {
			_ = columns[p.ownerSpec.column].set(i, owner)
		}
		if p.nameSpec != nil {
			_ = columns[p.nameSpec.column].set(i, name)
		}
		if p.uniqueSpec != nil {
			_ = columns[p.uniqueSpec.column].set(i, id)
		}
	})
	p.addLiving(h)

	if p.ownerSpec != nil {
		if p.svc.Bus != nil {
			p.svc.Bus.ObserveHandle(owner, observer.Destroy, h)
		}
		if slot := p.ownerSlot(owner); slot != nil {
			slot.Set(owner, h)
		}
	}
	if p.hooks.OnMake != nil {
		p.hooks.OnMake(h)
	}
	return h, nil
}

// Destroy runs OnDestroy, broadcasts the destroy observable while the slot is still
// occupied, then vacates the slot and drops every subscription on h. Embedded
// instances go with it. Destroying a handle that is not alive, or one another
// caller is already destroying, is fatal.
func (p *Pool) Destroy(h handle.Handle) {
	if !p.destroy(h) {
		p.fatal("destroy", h, ErrDeadHandle)
	}
}

// destroy reports false when h is dead or already claimed by another destroy.
func (p *Pool) destroy(h handle.Handle) bool {
	p.checkType("destroy", h)
	pg, i := p.locate(h.Index())
	if pg == nil || !pg.claim(i, h.Generation()) {
		return false
	}

	if p.hooks.OnDestroy != nil {
		p.hooks.OnDestroy(h)
	}
	p.broadcast(h, observer.Destroy)
	if p.ownerSpec != nil {
		p.detach(h)
	}

	var (
		id       uniqueid.ID
		embedded []handle.Handle
	)
	p.withSlot("destroy", h, func(pg *page, i uint32) {
		pg.mu.Lock()
		defer pg.mu.Unlock()
		if p.uniqueSpec != nil {
			id = pg.columns[p.uniqueSpec.column].get(i).(uniqueid.ID)
		}
		for _, spec := range p.specs {
			if spec.info.Kind != reflection.KindHandle || !spec.info.Embedded || spec.info.Static {
				continue
			}
			if ref := pg.columns[spec.column].get(i).(handle.Handle); ref != handle.Dead {
				embedded = append(embedded, ref)
			}
		}
		pg.releaseLocked(i)
	})

	if id != uniqueid.None {
		p.svc.IDs.Remove(id)
	}
	p.removeLiving(h)
	if p.svc.Bus != nil {
		p.svc.Bus.Clear(h)
	}
	p.destroyEmbedded(h, embedded)
	return true
}

// destroyEmbedded destroys the instances h embedded that are still alive.
// Components follow their own owner instead.
func (p *Pool) destroyEmbedded(h handle.Handle, embedded []handle.Handle) {
	for _, ref := range embedded {
		if !p.svc.Types.IsAlive(ref) {
			continue
		}
		info := p.svc.Types.Type(ref.Type())
		if info.Component {
			continue
		}
		if ft := fault.Catch(func() { info.Destroy(ref) }); ft != nil {
			p.logger.Warn("Embedded instance not destroyed",
				log.Stringer("handle", h), log.Stringer("embedded", ref), log.Error(ft))
		}
	}
}

// ownerSlot returns the property of owner that records components of this type.
func (p *Pool) ownerSlot(owner handle.Handle) *reflection.PropertyInfo {
	info, ok := p.svc.Types.LookupType(owner.Type())
	if !ok {
		return nil
	}
	for _, prop := range info.Properties {
		if prop.Kind == reflection.KindHandle && prop.HandleType == p.schema.Name && !prop.Static && prop.Set != nil {
			return prop
		}
	}
	return nil
}

// detach clears the owner property that still points at component h.
func (p *Pool) detach(h handle.Handle) {
	owner, _ := p.get(h, p.ownerSpec).(handle.Handle)
	if !p.svc.Types.IsAlive(owner) {
		return
	}
	slot := p.ownerSlot(owner)
	if slot == nil || slot.Get == nil {
		return
	}
	if current, _ := slot.Get(owner).(handle.Handle); current == h {
		slot.Set(owner, handle.Dead)
	}
}

// Duplicate creates a new instance named name with a copy of every property of h
// that is not skipped for duplication. Embedded handles are duplicated with it.
func (p *Pool) Duplicate(h handle.Handle, name string) handle.Handle {
	if p.schema.Component {
		p.fatal("duplicate", h, ErrNotForComponents)
	}
	values := p.snapshot("duplicate", h)
	dup := p.mustMake("duplicate", handle.Dead, name, uniqueid.None)
	p.restore(dup, values)
	return dup
}

// DuplicateComponent copies component h onto owner.
func (p *Pool) DuplicateComponent(h, owner handle.Handle) handle.Handle {
	if !p.schema.Component {
		p.fatal("duplicate component", h, ErrComponentOnly)
	}
	values := p.snapshot("duplicate component", h)
	dup := p.mustMake("duplicate component", owner, "", uniqueid.None)
	p.restore(dup, values)
	return dup
}

// snapshot copies the duplicable columns of h under its handle lock.
func (p *Pool) snapshot(op string, h handle.Handle) map[*propertySpec]any {
	values := make(map[*propertySpec]any)
	p.withSlot(op, h, func(pg *page, i uint32) {
		pg.read(func(columns []column) {
			for _, spec := range p.specs {
				if p.duplicable(spec) {
					values[spec] = columns[spec.column].get(i)
				}
			}
		})
	})
	return values
}

func (p *Pool) duplicable(spec *propertySpec) bool {
	if spec.info.Static || spec.info.SkipDuplication {
		return false
	}
	return spec != p.nameSpec && spec != p.ownerSpec && spec != p.uniqueSpec && spec != p.refsSpec
}

func (p *Pool) restore(dup handle.Handle, values map[*propertySpec]any) {
	for spec, v := range values {
		if spec.info.Kind == reflection.KindHandle && spec.info.Embedded {
			values[spec] = p.duplicateEmbedded(spec, v.(handle.Handle), dup)
		}
	}
	p.withSlot("duplicate", dup, func(pg *page, i uint32) {
		pg.read(func(columns []column) {
			for spec, v := range values {
				_ = columns[spec.column].set(i, v)
			}
		})
	})
}

func (p *Pool) duplicateEmbedded(spec *propertySpec, ref, dup handle.Handle) handle.Handle {
	if !p.svc.Types.IsAlive(ref) {
		return handle.Dead
	}
	info := p.svc.Types.Type(ref.Type())
	switch {
	case info.DuplicateComponent != nil:
		return info.DuplicateComponent(ref, dup)
	case info.Duplicate != nil:
		return info.Duplicate(ref, "")
	default:
		p.logger.Warn("Embedded handle not duplicated", log.String("property", spec.info.Name))
		return handle.Dead
	}
}

// Serialize writes h into node.
func (p *Pool) Serialize(h handle.Handle, node *yaml.Node) {
	if !p.IsAlive(h) {
		p.fatal("serialize", h, ErrDeadHandle)
	}
	p.svc.Codec.Serialize(p.info, h, node)
}

// Deserialize creates a new instance from node. creator becomes the owner of
// component types.
func (p *Pool) Deserialize(node *yaml.Node, creator handle.Handle) handle.Handle {
	id := uniqueid.None
	if p.uniqueSpec != nil {
		id = p.svc.Codec.ReadUniqueID(node)
	}
	name := ""
	if p.nameSpec != nil {
		if child := serialization.Child(node, p.nameSpec.info.Name); child != nil {
			name = child.Value
		}
	}

	owner := handle.Dead
	if p.schema.Component {
		owner = creator
	}
	h := p.mustMake("deserialize", owner, name, id)
	p.svc.Codec.Apply(p.info, h, node)
	return h
}

// Notify delivers a notification addressed to subscriber. Components follow their
// owner's destruction.
func (p *Pool) Notify(subscriber, observed handle.Handle, observable string) {
	if p.hooks.OnNotify != nil {
		p.hooks.OnNotify(subscriber, observed, observable)
	}
	if observable != observer.Destroy || p.ownerSpec == nil || !p.IsAlive(subscriber) {
		return
	}
	if owner, _ := p.get(subscriber, p.ownerSpec).(handle.Handle); owner == observed {
		p.destroy(subscriber)
	}
}

// Cleanup destroys every living instance and releases the pages. The pool rejects
// allocations afterwards.
func (p *Pool) Cleanup() {
	if p.closed.Swap(true) {
		return
	}
	living := p.Living()
	for i := len(living) - 1; i >= 0; i-- {
		p.destroy(living[i])
	}

	p.pagesMu.Lock()
	p.pages = nil
	p.capacity.Store(0)
	p.pagesMu.Unlock()

	p.logger.Debug("Pool torn down", log.Int("destroyed", len(living)))
}

// BindFunction attaches the implementation of a declared function.
func (p *Pool) BindFunction(name string, fn func(h handle.Handle, args ...any) (any, error)) error {
	f, ok := p.info.Function(name)
	if !ok {
		return fmt.Errorf("%s.%s: %w", p.schema.Name, name, ErrUnknownFunction)
	}
	f.Invoke = func(h handle.Handle, args ...any) (any, error) {
		if !f.Static && !p.IsAlive(h) {
			return nil, fmt.Errorf("%s.%s on %s: %w", p.schema.Name, name, h, ErrDeadHandle)
		}
		return fn(h, args...)
	}
	return nil
}
