package observer

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talaub/lowzero/internal/core/handle"
)

type notification struct {
	subscriber handle.Handle
	observed   handle.Handle
	observable string
}

type fakeDispatcher struct {
	mu       sync.Mutex
	alive    map[handle.Handle]bool
	received []notification
}

func (d *fakeDispatcher) IsAlive(h handle.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive[h]
}

func (d *fakeDispatcher) Notify(subscriber, observed handle.Handle, observable string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.received = append(d.received, notification{subscriber, observed, observable})
}

func TestBroadcastDeliversOnceWithHandleAndName(t *testing.T) {
	b := New(nil)
	h := handle.New(1, 3, 0)

	var got []notification
	b.Observe(h, "intensity", func(observed handle.Handle, observable string) error {
		got = append(got, notification{observed: observed, observable: observable})
		return nil
	})

	require.NoError(t, b.Broadcast(h, "intensity"))
	require.NoError(t, b.Broadcast(h, "color"))
	require.NoError(t, b.Broadcast(handle.New(1, 4, 0), "intensity"))

	require.Len(t, got, 1)
	assert.Equal(t, h, got[0].observed)
	assert.Equal(t, "intensity", got[0].observable)
}

func TestBroadcastInsertionOrder(t *testing.T) {
	b := New(nil)
	h := handle.New(2, 0, 1)

	var order []int
	for i := range 5 {
		b.Observe(h, "x", func(handle.Handle, string) error {
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, b.Broadcast(h, "x"))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestBroadcastJoinsErrors(t *testing.T) {
	b := New(nil)
	h := handle.New(2, 0, 1)
	errA := errors.New("a")
	errB := errors.New("b")

	b.Observe(h, "x", func(handle.Handle, string) error { return errA })
	b.Observe(h, "x", func(handle.Handle, string) error { return nil })
	b.Observe(h, "x", func(handle.Handle, string) error { return errB })

	err := b.Broadcast(h, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, uint64(2), b.Metrics().Errors)
}

func TestCancelAndUnobserve(t *testing.T) {
	b := New(nil)
	h := handle.New(1, 1, 1)
	calls := 0
	cb := func(handle.Handle, string) error { calls++; return nil }

	first := b.Observe(h, "x", cb)
	second := b.Observe(h, "x", cb)
	assert.Equal(t, 2, b.Subscribers(h, "x"))

	first.Cancel()
	first.Cancel()
	assert.False(t, first.IsActive())
	assert.Equal(t, 1, b.Subscribers(h, "x"))

	assert.True(t, b.Unobserve(second.ID()))
	assert.False(t, b.Unobserve(second.ID()))
	assert.False(t, b.Unobserve("missing"))

	require.NoError(t, b.Broadcast(h, "x"))
	assert.Zero(t, calls)
	assert.Zero(t, b.Metrics().Active)
	assert.Zero(t, b.Metrics().Keys)
}

func TestCancelInsideCallback(t *testing.T) {
	b := New(nil)
	h := handle.New(1, 1, 1)

	var sub Subscription
	calls := 0
	sub = b.Observe(h, "x", func(handle.Handle, string) error {
		calls++
		sub.Cancel()
		return nil
	})

	require.NoError(t, b.Broadcast(h, "x"))
	require.NoError(t, b.Broadcast(h, "x"))
	assert.Equal(t, 1, calls)
}

func TestHandleSubscribers(t *testing.T) {
	observed := handle.New(1, 0, 0)
	live := handle.New(5, 0, 0)
	gone := handle.New(5, 1, 0)
	d := &fakeDispatcher{alive: map[handle.Handle]bool{live: true}}
	b := New(d)

	b.ObserveHandle(observed, "size", gone)
	liveSub := b.ObserveHandle(observed, "size", live)
	assert.Equal(t, live, liveSub.Subscriber())

	require.NoError(t, b.Broadcast(observed, "size"))
	require.Len(t, d.received, 1)
	assert.Equal(t, notification{live, observed, "size"}, d.received[0])

	assert.Equal(t, 1, b.Subscribers(observed, "size"), "dead handle subscribers are pruned on delivery")
	assert.Equal(t, uint64(1), b.Metrics().Pruned)
}

func TestClearPrunesObservedAndSubscriber(t *testing.T) {
	d := &fakeDispatcher{alive: map[handle.Handle]bool{}}
	b := New(d)
	h := handle.New(1, 0, 0)
	other := handle.New(1, 1, 0)

	calls := 0
	sub := b.Observe(h, Destroy, func(handle.Handle, string) error { calls++; return nil })
	b.Observe(h, "x", func(handle.Handle, string) error { calls++; return nil })
	held := b.ObserveHandle(other, "x", h)

	b.Clear(h)

	assert.False(t, sub.IsActive())
	assert.False(t, held.IsActive())
	assert.Zero(t, b.Subscribers(h, Destroy))
	assert.Zero(t, b.Subscribers(other, "x"))
	require.NoError(t, b.Broadcast(h, Destroy))
	assert.Zero(t, calls)
	assert.Zero(t, b.Metrics().Active)
}

func TestConcurrentObserveAndBroadcast(t *testing.T) {
	b := New(nil)
	h := handle.New(1, 0, 0)

	var mu sync.Mutex
	delivered := 0
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				s := b.Observe(h, "x", func(handle.Handle, string) error {
					mu.Lock()
					delivered++
					mu.Unlock()
					return nil
				})
				if s.ID() == "" {
					t.Error("empty subscription id")
				}
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				_ = b.Broadcast(h, "x")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, b.Subscribers(h, "x"))
	assert.Equal(t, uint64(400), b.Metrics().Broadcasts)
}

func TestKeyOf(t *testing.T) {
	h := handle.New(3, 9, 2)
	k := KeyOf(h, "color")
	assert.Equal(t, h.ID(), k.Handle)
	assert.Equal(t, Hash("color"), k.Observable)
	assert.NotEqual(t, KeyOf(h, "colour"), k)
}
