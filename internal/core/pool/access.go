package pool

import (
	"fmt"

	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/uniqueid"
)

// withSlot runs fn with the handle lock of h held. Dead handles are fatal.
func (p *Pool) withSlot(op string, h handle.Handle, fn func(pg *page, i uint32)) {
	p.checkType(op, h)
	pg, i := p.locate(h.Index())
	if pg == nil || !pg.lockSlot(i, h.Generation()) {
		p.fatal(op, h, ErrDeadHandle)
	}
	defer pg.unlockSlot(i)
	fn(pg, i)
}

func (p *Pool) get(h handle.Handle, spec *propertySpec) any {
	if spec.info.Static {
		return p.static(spec)
	}
	var v any
	p.withSlot("get "+spec.info.Name, h, func(pg *page, i uint32) {
		pg.read(func(columns []column) {
			v = columns[spec.column].get(i)
		})
	})
	return v
}

func (p *Pool) into(h handle.Handle, spec *propertySpec, dst any) error {
	if spec.info.Static {
		return fmt.Errorf("%s.%s: %w", p.schema.Name, spec.info.Name, ErrNotStatic)
	}
	var err error
	p.withSlot("get "+spec.info.Name, h, func(pg *page, i uint32) {
		pg.read(func(columns []column) {
			err = columns[spec.column].into(i, dst)
		})
	})
	return err
}

// set commits v, raises the dirty flags of spec when the value changed, then runs
// OnSet and broadcasts the property name outside the handle lock.
func (p *Pool) set(h handle.Handle, spec *propertySpec, v any) {
	if spec.info.Static {
		p.setStatic(spec, v)
		return
	}

	op := "set " + spec.info.Name
	if spec == p.ownerSpec {
		p.fatal(op, h, ErrReadOnly)
	}
	var err error
	p.withSlot(op, h, func(pg *page, i uint32) {
		if spec == p.uniqueSpec {
			err = p.rebindUniqueID(pg, i, h, v)
			if err != nil {
				return
			}
		}
		pg.read(func(columns []column) {
			col := columns[spec.column]
			changed := !col.equal(i, v)
			if err = col.set(i, v); err != nil {
				return
			}
			if changed {
				for _, flag := range spec.dirty {
					_ = columns[flag].set(i, true)
				}
			}
		})
	})
	if err != nil {
		p.fatal(op, h, err)
	}
	p.afterSet(h, spec.info.Name)
}

func (p *Pool) afterSet(h handle.Handle, property string) {
	if p.hooks.OnSet != nil {
		p.hooks.OnSet(h, property)
	}
	p.broadcast(h, property)
}

// rebindUniqueID moves the registry binding of slot i to id. The handle lock of
// the slot must be held.
func (p *Pool) rebindUniqueID(pg *page, i uint32, h handle.Handle, v any) error {
	id, ok := v.(uniqueid.ID)
	if !ok {
		return fmt.Errorf("%w: want uniqueid.ID, got %T", ErrTypeMismatch, v)
	}
	var old uniqueid.ID
	pg.read(func(columns []column) {
		old = columns[p.uniqueSpec.column].get(i).(uniqueid.ID)
	})
	if old == id {
		return nil
	}
	if id != uniqueid.None {
		if err := p.svc.IDs.Register(id, h); err != nil {
			return err
		}
	}
	if old != uniqueid.None {
		p.svc.IDs.Remove(old)
	}
	return nil
}

func (p *Pool) broadcast(h handle.Handle, observable string) {
	if p.svc.Bus == nil {
		return
	}
	if err := p.svc.Bus.Broadcast(h, observable); err != nil {
		p.logger.Warn("Observer failed",
			log.Stringer("handle", h), log.String("observable", observable), log.Error(err))
	}
}

func (p *Pool) static(spec *propertySpec) any {
	p.staticMu.RLock()
	defer p.staticMu.RUnlock()
	return p.statics[spec.info.Name]
}

func (p *Pool) setStatic(spec *propertySpec, v any) {
	if err := newColumn(spec.info.Kind, 1, zeroValue(spec.info.Kind)).set(0, v); err != nil {
		p.fatal("set static "+spec.info.Name, handle.Dead, err)
	}
	p.staticMu.Lock()
	p.statics[spec.info.Name] = v
	p.staticMu.Unlock()
}

// Get reads a property by name through the pool. Unknown names are fatal.
func (p *Pool) Get(h handle.Handle, name string) any {
	return p.get(h, p.mustProperty("get", name))
}

// Set writes a property by name through the pool. Unknown names are fatal.
func (p *Pool) Set(h handle.Handle, name string, v any) {
	p.set(h, p.mustProperty("set", name), v)
}

// Static returns the type-level value of a static property.
func (p *Pool) Static(name string) any {
	spec := p.mustProperty("get static", name)
	if !spec.info.Static {
		p.fatal("get static", handle.Dead, fmt.Errorf("%w: %s", ErrNotStatic, name))
	}
	return p.static(spec)
}

// SetStatic replaces the type-level value of a static property.
func (p *Pool) SetStatic(name string, v any) {
	spec := p.mustProperty("set static", name)
	if !spec.info.Static {
		p.fatal("set static", handle.Dead, fmt.Errorf("%w: %s", ErrNotStatic, name))
	}
	p.setStatic(spec, v)
}

func (p *Pool) mustProperty(op, name string) *propertySpec {
	spec, ok := p.property(name)
	if !ok {
		p.fatal(op, handle.Dead, fmt.Errorf("%w: %s", ErrUnknownProperty, name))
	}
	return spec
}
