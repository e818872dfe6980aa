package pool

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/talaub/lowzero/internal/core/fault"
	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/observer"
	"github.com/talaub/lowzero/internal/core/reflection"
	"github.com/talaub/lowzero/internal/core/schema"
	"github.com/talaub/lowzero/internal/core/serialization"
	"github.com/talaub/lowzero/internal/core/uniqueid"
)

// Page size bounds for types that grow on demand.
const (
	DefaultMinPageSize uint32 = 8
	DefaultMaxPageSize uint32 = 32
)

// Services is the application-lifetime state every pool is built against.
type Services struct {
	Types *reflection.Registry
	Bus   observer.Bus
	IDs   *uniqueid.Registry
	Codec *serialization.Codec
	Log   log.Log
}

// Options override the sizing declared by the schema.
type Options struct {
	// Capacity replaces the schema capacity when non-zero.
	Capacity    uint32
	MinPageSize uint32
	MaxPageSize uint32
}

// Hooks carry the per-type custom behavior bound from Go code. Every hook runs
// without any pool lock held.
type Hooks struct {
	OnMake           func(h handle.Handle)
	OnDestroy        func(h handle.Handle)
	OnSet            func(h handle.Handle, property string)
	OnNotify         func(subscriber, observed handle.Handle, observable string)
	OnFirstReference func(h handle.Handle)
	OnLastReference  func(h handle.Handle)
}

type propertySpec struct {
	info   *reflection.PropertyInfo
	column int
	def    any
	// dirty lists the columns of the bool flags raised when the value changes.
	dirty []int
}

// Pool is the paged, thread-safe storage of one registered type.
//
// Lock order: pagesMu, then a page's mu, then a slot's handle lock. livingMu is
// independent of pagesMu and is never held while waiting for a handle lock.
type Pool struct {
	id     handle.TypeID
	schema *schema.Type
	info   *reflection.TypeInfo
	svc    Services
	hooks  Hooks
	logger log.Log

	specs  []*propertySpec
	byName map[string]*propertySpec

	nameSpec   *propertySpec
	ownerSpec  *propertySpec
	uniqueSpec *propertySpec
	refsSpec   *propertySpec

	pagesMu  sync.RWMutex
	pages    []*page
	pageSize uint32
	dynamic  bool
	capacity atomic.Uint32

	livingMu sync.RWMutex
	living   []handle.Handle

	staticMu sync.RWMutex
	statics  map[string]any

	closed atomic.Bool
}

// New builds the pool for t and registers its TypeInfo with svc.Types. t is
// expanded first, so the implicit properties exist on the registered type.
func New(t *schema.Type, svc Services, opts Options, hooks Hooks) (*Pool, error) {
	if t.TypeID == 0 {
		return nil, fmt.Errorf("pool %s: %w", t.Name, reflection.ErrReservedTypeID)
	}
	t.Expand()

	logger := svc.Log
	if logger == nil {
		logger = log.Nop()
	}

	p := &Pool{
		id:      handle.TypeID(t.TypeID),
		schema:  t,
		svc:     svc,
		hooks:   hooks,
		logger:  logger.With(log.String("type", t.Name), log.Uint16("type_id", t.TypeID)),
		byName:  make(map[string]*propertySpec, len(t.Properties)),
		dynamic: t.DynamicIncrease,
		statics: make(map[string]any),
	}

	capacity := t.Capacity
	if opts.Capacity != 0 {
		capacity = opts.Capacity
	}
	if err := p.layout(capacity, opts); err != nil {
		return nil, err
	}
	if err := p.buildSpecs(); err != nil {
		return nil, err
	}

	initial := uint32(0)
	if p.pageSize > 0 {
		initial = (capacity + p.pageSize - 1) / p.pageSize
	}
	for range initial {
		if err := p.appendPageLocked(); err != nil {
			return nil, fmt.Errorf("pool %s: %w", t.Name, err)
		}
	}

	p.info = p.buildTypeInfo()
	if err := svc.Types.Register(p.info); err != nil {
		return nil, fmt.Errorf("pool %s: %w", t.Name, err)
	}

	p.logger.Debug("Pool created",
		log.Uint32("capacity", p.Capacity()), log.Uint32("page_size", p.pageSize), log.Bool("dynamic", p.dynamic))
	return p, nil
}

func (p *Pool) layout(capacity uint32, opts Options) error {
	if !p.dynamic {
		if capacity == 0 {
			return fmt.Errorf("pool %s: fixed capacity type needs a capacity", p.schema.Name)
		}
		p.pageSize = capacity
		return nil
	}
	minSize, maxSize := opts.MinPageSize, opts.MaxPageSize
	if minSize == 0 {
		minSize = DefaultMinPageSize
	}
	if maxSize == 0 {
		maxSize = DefaultMaxPageSize
	}
	if minSize > maxSize {
		return fmt.Errorf("pool %s: min page size %d exceeds max %d", p.schema.Name, minSize, maxSize)
	}
	p.pageSize = PageSize(capacity, minSize, maxSize)
	return nil
}

// PageSize is the growth policy: the next power of two of capacity, clamped to
// [minSize, maxSize].
func PageSize(capacity, minSize, maxSize uint32) uint32 {
	size := nextPow2(capacity)
	if size < minSize {
		size = minSize
	}
	if size > maxSize {
		size = maxSize
	}
	return size
}

func nextPow2(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	if v > 1<<31 {
		return 1 << 31
	}
	return 1 << bits.Len32(v-1)
}

func (p *Pool) ID() handle.TypeID          { return p.id }
func (p *Pool) Name() string               { return p.schema.Name }
func (p *Pool) Info() *reflection.TypeInfo { return p.info }
func (p *Pool) Schema() *schema.Type       { return p.schema }
func (p *Pool) Capacity() uint32           { return p.capacity.Load() }
func (p *Pool) PageSize() uint32           { return p.pageSize }
func (p *Pool) IsComponent() bool          { return p.schema.Component }
func (p *Pool) IsReferenceCounted() bool   { return p.refsSpec != nil }

func (p *Pool) property(name string) (*propertySpec, bool) {
	spec, ok := p.byName[name]
	return spec, ok
}

func (p *Pool) PageCount() int {
	p.pagesMu.RLock()
	defer p.pagesMu.RUnlock()
	return len(p.pages)
}

// appendPageLocked grows the pool by one page. pagesMu must be held for writing
// or the pool must not be shared yet.
func (p *Pool) appendPageLocked() error {
	base := p.capacity.Load()
	if uint64(base)+uint64(p.pageSize) > uint64(handle.MaxIndex)+1 {
		return ErrIndexSpaceExhausted
	}
	p.pages = append(p.pages, newPage(base, p.pageSize, p.specs))
	p.capacity.Add(p.pageSize)
	return nil
}

// createInstance claims a free slot, growing the pool when the type allows it.
func (p *Pool) createInstance() (uint32, uint16, error) {
	for {
		if p.closed.Load() {
			return 0, 0, ErrClosed
		}

		p.pagesMu.RLock()
		for _, pg := range p.pages {
			if i, gen, ok := pg.tryAcquire(); ok {
				p.pagesMu.RUnlock()
				return pg.base + i, gen, nil
			}
		}
		seen := len(p.pages)
		p.pagesMu.RUnlock()

		p.pagesMu.Lock()
		if len(p.pages) != seen {
			p.pagesMu.Unlock()
			continue
		}
		if !p.dynamic {
			p.pagesMu.Unlock()
			return 0, 0, ErrBudgetExhausted
		}
		if err := p.appendPageLocked(); err != nil {
			p.pagesMu.Unlock()
			return 0, 0, err
		}
		pages := len(p.pages)
		p.pagesMu.Unlock()

		p.logger.Debug("Page appended", log.Int("pages", pages), log.Uint32("capacity", p.Capacity()))
	}
}

// locate returns the page holding index, or nil when index is beyond capacity.
func (p *Pool) locate(index uint32) (*page, uint32) {
	p.pagesMu.RLock()
	defer p.pagesMu.RUnlock()
	n := index / p.pageSize
	if int(n) >= len(p.pages) {
		return nil, 0
	}
	pg := p.pages[n]
	return pg, index - pg.base
}

// IsAlive reports whether h still names an occupant of this pool.
func (p *Pool) IsAlive(h handle.Handle) bool {
	if h.IsDead() || h.Type() != p.id {
		return false
	}
	pg, i := p.locate(h.Index())
	if pg == nil {
		return false
	}
	return pg.alive(i, h.Generation())
}

// FindByIndex returns the handle of slot index at its current generation, alive
// or not. Indices beyond capacity are fatal.
func (p *Pool) FindByIndex(index uint32) handle.Handle {
	pg, i := p.locate(index)
	if pg == nil {
		p.fatal("find by index", handle.Dead, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, index, p.Capacity()))
	}
	return handle.New(p.id, index, pg.generation(i))
}

// HandleAt is FindByIndex returning handle.Dead beyond capacity.
func (p *Pool) HandleAt(index uint32) handle.Handle {
	pg, i := p.locate(index)
	if pg == nil {
		return handle.Dead
	}
	return handle.New(p.id, index, pg.generation(i))
}

// Living returns a snapshot of the living instances in creation order.
func (p *Pool) Living() []handle.Handle {
	p.livingMu.RLock()
	defer p.livingMu.RUnlock()
	out := make([]handle.Handle, len(p.living))
	copy(out, p.living)
	return out
}

func (p *Pool) LivingCount() int {
	p.livingMu.RLock()
	defer p.livingMu.RUnlock()
	return len(p.living)
}

// FindByName returns the first living instance with the given name, or
// handle.Dead. Component types have no names; asking them is fatal.
func (p *Pool) FindByName(name string) handle.Handle {
	if p.nameSpec == nil {
		p.fatal("find by name", handle.Dead, ErrNotForComponents)
	}

	p.livingMu.RLock()
	defer p.livingMu.RUnlock()
	for _, h := range p.living {
		pg, i := p.locate(h.Index())
		if pg == nil {
			continue
		}
		found := false
		pg.read(func(columns []column) {
			found = pg.aliveLocked(i, h.Generation()) && columns[p.nameSpec.column].equal(i, name)
		})
		if found {
			return h
		}
	}
	return handle.Dead
}

func (p *Pool) addLiving(h handle.Handle) {
	p.livingMu.Lock()
	p.living = append(p.living, h)
	p.livingMu.Unlock()
}

func (p *Pool) removeLiving(h handle.Handle) {
	p.livingMu.Lock()
	defer p.livingMu.Unlock()
	for i, other := range p.living {
		if other == h {
			p.living = append(p.living[:i], p.living[i+1:]...)
			return
		}
	}
}

// fatal logs and raises a Fault naming this type.
func (p *Pool) fatal(op string, h handle.Handle, err error) {
	p.logger.Error("Fatal pool operation", log.String("op", op), log.Stringer("handle", h), log.Error(err))
	fault.RaiseHandle(op, p.schema.Name, h, err)
}

func (p *Pool) checkType(op string, h handle.Handle) {
	if h.Type() != p.id {
		p.fatal(op, h, fmt.Errorf("%w: expected type %d", ErrWrongType, p.id))
	}
}

// buildSpecs resolves the expanded properties into column specs. Columns index
// specs, so a spec's column is its position in the schema.
func (p *Pool) buildSpecs() error {
	var errs []error
	for i, ps := range p.schema.Properties {
		kind := ps.Kind()
		if kind == reflection.KindVoid {
			errs = append(errs, fmt.Errorf("%s.%s: %w: %q", p.schema.Name, ps.Name, reflection.ErrUnknownKind, ps.Type))
			continue
		}
		info := &reflection.PropertyInfo{
			Name:                ps.Name,
			Kind:                kind,
			Static:              ps.Static,
			EditorEditable:      ps.EditorEditable,
			PrivateGetter:       ps.PrivateGetter,
			PrivateSetter:       ps.PrivateSetter,
			SkipSerialization:   ps.SkipSerialization,
			SkipDeserialization: ps.SkipDeserialization,
			SkipDuplication:     ps.SkipDuplication,
		}
		if ps.Handle {
			info.HandleType = ps.Type
			info.Embedded = ps.Embed
		}
		if ps.Enum {
			enum, ok := p.svc.Types.EnumByName(ps.Type)
			if !ok {
				errs = append(errs, fmt.Errorf("%s.%s: %w: %s", p.schema.Name, ps.Name, reflection.ErrUnknownEnum, ps.Type))
				continue
			}
			info.EnumID = enum.ID
		}

		spec := &propertySpec{info: info, column: i, def: zeroValue(kind)}
		if ps.Default != nil && p.svc.Codec != nil {
			v, err := p.svc.Codec.Decode(info, ps.Default, handle.Dead)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.%s default: %w", p.schema.Name, ps.Name, err))
				continue
			}
			spec.def = v
		}
		if ps.Static {
			p.statics[ps.Name] = spec.def
		}

		p.specs = append(p.specs, spec)
		p.byName[ps.Name] = spec

		switch {
		case ps.Name == schema.PropertyName && kind == reflection.KindName && !p.schema.Component:
			p.nameSpec = spec
		case ps.Name == schema.PropertyEntity && kind == reflection.KindHandle && p.schema.Component:
			p.ownerSpec = spec
		case ps.Name == schema.PropertyUniqueID && kind == reflection.KindUniqueID:
			p.uniqueSpec = spec
		case ps.Name == schema.PropertyReferences && kind == reflection.KindSet:
			p.refsSpec = spec
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, spec := range p.specs {
		ps, _ := p.schema.Property(spec.info.Name)
		for _, flag := range ps.DirtyFlag {
			target, ok := p.byName[flag]
			if !ok || target.info.Kind != reflection.KindBool {
				errs = append(errs, fmt.Errorf("%s.%s: dirty flag %s is not a bool property", p.schema.Name, ps.Name, flag))
				continue
			}
			spec.dirty = append(spec.dirty, target.column)
		}
	}
	return errors.Join(errs...)
}
