package pool

import (
	"runtime"
	"sync"
)

type slot struct {
	occupied   bool
	destroying bool
	generation uint16
}

// page is a fixed block of slots with one column per property. mu guards
// occupancy, generations and column access; locks holds the handle-level lock of
// each slot.
type page struct {
	mu      sync.Mutex
	base    uint32
	slots   []slot
	used    uint32
	columns []column
	locks   []sync.Mutex
}

func newPage(base, size uint32, specs []*propertySpec) *page {
	pg := &page{
		base:    base,
		slots:   make([]slot, size),
		columns: make([]column, len(specs)),
		locks:   make([]sync.Mutex, size),
	}
	for i, spec := range specs {
		if spec.info.Static {
			continue
		}
		pg.columns[i] = newColumn(spec.info.Kind, size, spec.def)
	}
	return pg
}

func (pg *page) size() uint32 { return uint32(len(pg.slots)) }

// tryAcquire claims the first free slot and default-constructs its columns.
func (pg *page) tryAcquire() (uint32, uint16, bool) {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if pg.used == pg.size() {
		return 0, 0, false
	}
	for i := range pg.slots {
		s := &pg.slots[i]
		if s.occupied {
			continue
		}
		s.occupied = true
		pg.used++
		for _, col := range pg.columns {
			if col != nil {
				col.reset(uint32(i))
			}
		}
		return uint32(i), s.generation, true
	}
	return 0, 0, false
}

// releaseLocked vacates a slot and bumps its generation. mu must be held.
func (pg *page) releaseLocked(i uint32) {
	s := &pg.slots[i]
	s.occupied = false
	s.destroying = false
	s.generation++
	pg.used--
}

func (pg *page) aliveLocked(i uint32, generation uint16) bool {
	s := pg.slots[i]
	return s.occupied && s.generation == generation
}

func (pg *page) alive(i uint32, generation uint16) bool {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.aliveLocked(i, generation)
}

// claim marks a living slot as being destroyed. Only the first caller for a
// generation wins; the slot stays alive until it is released.
func (pg *page) claim(i uint32, generation uint16) bool {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if !pg.aliveLocked(i, generation) || pg.slots[i].destroying {
		return false
	}
	pg.slots[i].destroying = true
	return true
}

func (pg *page) generation(i uint32) uint16 {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.slots[i].generation
}

// lockSlot takes the handle-level lock of slot i while it still holds generation.
// The page lock is held while trying and released while waiting, so a holder of a
// slot lock can always re-enter the page lock. Slot locks are only held for a
// single property access, destroy or duplicate, never across hooks or
// broadcasts, so the wait is short.
func (pg *page) lockSlot(i uint32, generation uint16) bool {
	for {
		pg.mu.Lock()
		if !pg.aliveLocked(i, generation) {
			pg.mu.Unlock()
			return false
		}
		if pg.locks[i].TryLock() {
			pg.mu.Unlock()
			return true
		}
		pg.mu.Unlock()
		runtime.Gosched()
	}
}

func (pg *page) unlockSlot(i uint32) {
	pg.locks[i].Unlock()
}

// read runs fn on the columns of the page under the page lock.
func (pg *page) read(fn func(columns []column)) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	fn(pg.columns)
}
