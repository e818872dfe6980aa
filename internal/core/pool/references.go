package pool

import (
	"github.com/talaub/lowzero/internal/core/handle"
)

// Reference adds id to the reference set of h. OnFirstReference runs when the set
// goes from empty to non-empty.
func (p *Pool) Reference(h handle.Handle, id uint64) {
	before, after := p.mutateReferences("reference", h, func(c *setColumn, i uint32) (int, int) {
		return c.add(i, id)
	})
	if before == 0 && after == 1 && p.hooks.OnFirstReference != nil {
		p.hooks.OnFirstReference(h)
	}
}

// Dereference removes id from the reference set of h. OnLastReference runs when
// the set becomes empty. Unknown ids are ignored.
func (p *Pool) Dereference(h handle.Handle, id uint64) {
	before, after := p.mutateReferences("dereference", h, func(c *setColumn, i uint32) (int, int) {
		return c.remove(i, id)
	})
	if before == 1 && after == 0 && p.hooks.OnLastReference != nil {
		p.hooks.OnLastReference(h)
	}
}

// ReferenceCount returns the size of the reference set of h.
func (p *Pool) ReferenceCount(h handle.Handle) int {
	if p.refsSpec == nil {
		p.fatal("reference count", h, ErrNotReferenceCounted)
	}
	n := 0
	p.withSlot("reference count", h, func(pg *page, i uint32) {
		pg.read(func(columns []column) {
			n = columns[p.refsSpec.column].(*setColumn).len(i)
		})
	})
	return n
}

func (p *Pool) mutateReferences(op string, h handle.Handle, fn func(c *setColumn, i uint32) (int, int)) (int, int) {
	if p.refsSpec == nil {
		p.fatal(op, h, ErrNotReferenceCounted)
	}
	var before, after int
	p.withSlot(op, h, func(pg *page, i uint32) {
		pg.read(func(columns []column) {
			before, after = fn(columns[p.refsSpec.column].(*setColumn), i)
		})
	})
	return before, after
}
