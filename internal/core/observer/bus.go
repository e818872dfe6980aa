package observer

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/talaub/lowzero/internal/core/handle"
)

var _ Bus = (*inMemoryBus)(nil)

// subscription implements Subscription.
type subscription struct {
	id         string
	key        Key
	callback   Callback
	subscriber handle.Handle
	active     atomic.Bool
	cancel     func()
}

func (s *subscription) ID() string                { return s.id }
func (s *subscription) Key() Key                  { return s.key }
func (s *subscription) Subscriber() handle.Handle { return s.subscriber }
func (s *subscription) IsActive() bool            { return s.active.Load() }

func (s *subscription) Cancel() {
	if s.active.CompareAndSwap(true, false) {
		s.cancel()
	}
}

type inMemoryBus struct {
	mu sync.RWMutex
	// keys holds subscriptions per key in insertion order.
	keys map[Key][]*subscription
	// byID and bySubscriber index the same subscriptions for cancellation and pruning.
	byID         map[string]*subscription
	bySubscriber map[handle.Handle][]*subscription
	// observed lists the keys registered per observed handle id.
	observed map[uint64][]Key

	dispatcher Dispatcher

	broadcasts atomic.Uint64
	delivered  atomic.Uint64
	pruned     atomic.Uint64
	errors     atomic.Uint64
}

// New creates a Bus. The dispatcher serves handle subscribers and may be nil when
// only callbacks are used.
func New(dispatcher Dispatcher) Bus {
	return &inMemoryBus{
		keys:         make(map[Key][]*subscription),
		byID:         make(map[string]*subscription),
		bySubscriber: make(map[handle.Handle][]*subscription),
		observed:     make(map[uint64][]Key),
		dispatcher:   dispatcher,
	}
}

func (b *inMemoryBus) Observe(h handle.Handle, observable string, cb Callback) Subscription {
	return b.subscribe(KeyOf(h, observable), cb, handle.Dead)
}

func (b *inMemoryBus) ObserveHandle(h handle.Handle, observable string, subscriber handle.Handle) Subscription {
	return b.subscribe(KeyOf(h, observable), nil, subscriber)
}

func (b *inMemoryBus) subscribe(key Key, cb Callback, subscriber handle.Handle) Subscription {
	s := &subscription{
		id:         uuid.NewString(),
		key:        key,
		callback:   cb,
		subscriber: subscriber,
	}
	s.active.Store(true)
	s.cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.removeLocked(s)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.keys[key]; !ok {
		b.observed[key.Handle] = append(b.observed[key.Handle], key)
	}
	b.keys[key] = append(b.keys[key], s)
	b.byID[s.id] = s
	if !subscriber.IsDead() {
		b.bySubscriber[subscriber] = append(b.bySubscriber[subscriber], s)
	}
	return s
}

func (b *inMemoryBus) Unobserve(id string) bool {
	b.mu.RLock()
	s, ok := b.byID[id]
	b.mu.RUnlock()
	if !ok || !s.IsActive() {
		return false
	}
	s.Cancel()
	return true
}

func (b *inMemoryBus) Broadcast(h handle.Handle, observable string) error {
	key := KeyOf(h, observable)

	b.mu.RLock()
	subs := slices.Clone(b.keys[key])
	b.mu.RUnlock()

	b.broadcasts.Add(1)

	var all error
	for _, s := range subs {
		if !s.IsActive() {
			continue
		}
		if s.callback != nil {
			b.delivered.Add(1)
			if err := s.callback(h, observable); err != nil {
				b.errors.Add(1)
				all = errors.Join(all, err)
			}
			continue
		}
		if b.dispatcher == nil {
			continue
		}
		if !b.dispatcher.IsAlive(s.subscriber) {
			s.Cancel()
			b.pruned.Add(1)
			continue
		}
		b.delivered.Add(1)
		b.dispatcher.Notify(s.subscriber, h, observable)
	}
	return all
}

func (b *inMemoryBus) Clear(h handle.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, key := range b.observed[h.ID()] {
		for _, s := range b.keys[key] {
			s.active.Store(false)
			delete(b.byID, s.id)
			b.dropSubscriberLocked(s)
			b.pruned.Add(1)
		}
		delete(b.keys, key)
	}
	delete(b.observed, h.ID())

	for _, s := range b.bySubscriber[h] {
		if s.active.CompareAndSwap(true, false) {
			b.removeFromKeyLocked(s)
			delete(b.byID, s.id)
			b.pruned.Add(1)
		}
	}
	delete(b.bySubscriber, h)
}

func (b *inMemoryBus) Subscribers(h handle.Handle, observable string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.keys[KeyOf(h, observable)])
}

func (b *inMemoryBus) Metrics() Metrics {
	b.mu.RLock()
	active := uint64(len(b.byID))
	keys := uint64(len(b.keys))
	b.mu.RUnlock()

	return Metrics{
		Broadcasts: b.broadcasts.Load(),
		Delivered:  b.delivered.Load(),
		Pruned:     b.pruned.Load(),
		Errors:     b.errors.Load(),
		Active:     active,
		Keys:       keys,
	}
}

func (b *inMemoryBus) removeLocked(s *subscription) {
	b.removeFromKeyLocked(s)
	delete(b.byID, s.id)
	b.dropSubscriberLocked(s)
}

func (b *inMemoryBus) removeFromKeyLocked(s *subscription) {
	subs := b.keys[s.key]
	idx := slices.Index(subs, s)
	if idx < 0 {
		return
	}
	subs = slices.Delete(subs, idx, idx+1)
	if len(subs) > 0 {
		b.keys[s.key] = subs
		return
	}
	delete(b.keys, s.key)
	keys := b.observed[s.key.Handle]
	if i := slices.Index(keys, s.key); i >= 0 {
		keys = slices.Delete(keys, i, i+1)
	}
	if len(keys) == 0 {
		delete(b.observed, s.key.Handle)
	} else {
		b.observed[s.key.Handle] = keys
	}
}

func (b *inMemoryBus) dropSubscriberLocked(s *subscription) {
	if s.subscriber.IsDead() {
		return
	}
	subs := b.bySubscriber[s.subscriber]
	if idx := slices.Index(subs, s); idx >= 0 {
		subs = slices.Delete(subs, idx, idx+1)
	}
	if len(subs) == 0 {
		delete(b.bySubscriber, s.subscriber)
	} else {
		b.bySubscriber[s.subscriber] = subs
	}
}
