package observer

import (
	"github.com/cespare/xxhash/v2"

	"github.com/talaub/lowzero/internal/core/handle"
)

// Destroy is the reserved observable broadcast once by Destroy before the
// observed slot is vacated.
const Destroy = "destroy"

// Bus is a keyed, synchronous publish/subscribe registry for handle observables.
//
// Key characteristics:
// - Keys are (observed handle id, xxhash of the observable name).
// - Delivery happens on the broadcasting goroutine, in subscription order.
// - Subscribers are callbacks or other handles; dead handle subscribers are pruned.
// - Callback errors are joined and returned from Broadcast.
// - All methods are safe for concurrent use, including from inside callbacks.
type Bus interface {
	// Observe registers cb for observable on h.
	Observe(h handle.Handle, observable string, cb Callback) Subscription
	// ObserveHandle registers subscriber to be notified through its type's Notify.
	ObserveHandle(h handle.Handle, observable string, subscriber handle.Handle) Subscription
	// Unobserve cancels a subscription by id. It reports whether the id was active.
	Unobserve(id string) bool

	// Broadcast delivers (h, observable) to every active subscriber of the key.
	Broadcast(h handle.Handle, observable string) error
	// Clear drops every key observed on h and every subscription held by h.
	Clear(h handle.Handle)

	// Subscribers counts active subscriptions for the key.
	Subscribers(h handle.Handle, observable string) int
	Metrics() Metrics
}

// Callback receives the observed handle and the observable name.
type Callback func(observed handle.Handle, observable string) error

// Dispatcher routes notifications to handle subscribers.
type Dispatcher interface {
	IsAlive(h handle.Handle) bool
	Notify(subscriber, observed handle.Handle, observable string)
}

// Subscription is a registered subscriber bound to one key.
type Subscription interface {
	ID() string
	Key() Key
	// Subscriber returns the subscribing handle, or handle.Dead for callbacks.
	Subscriber() handle.Handle
	IsActive() bool
	// Cancel removes the subscription. Multiple calls are safe.
	Cancel()
}

// Key addresses the subscribers of one observable on one handle.
type Key struct {
	Handle     uint64
	Observable uint64
}

// KeyOf builds the key for observable on h.
func KeyOf(h handle.Handle, observable string) Key {
	return Key{Handle: h.ID(), Observable: Hash(observable)}
}

// Hash is the observable-name hash used in keys.
func Hash(observable string) uint64 {
	return xxhash.Sum64String(observable)
}

// Metrics is a snapshot of bus counters.
type Metrics struct {
	Broadcasts uint64
	Delivered  uint64
	Pruned     uint64
	Errors     uint64
	Active     uint64
	Keys       uint64
}
