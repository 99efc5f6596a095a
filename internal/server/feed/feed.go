// Package feed provides an in-process broadcast stream that replays its most
// recent value to late subscribers.
package feed

import "sync"

// Feed broadcasts published values to its subscribers. Delivery is
// synchronous and serialized, so every subscriber sees values in publish
// order. Callbacks must not block and must not subscribe or unsubscribe.
type Feed[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]func(T)
	last    T
	hasLast bool
}

func New[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[uint64]func(T))}
}

// Publish records v as the latest value and delivers it to every subscriber.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.last = v
	f.hasLast = true
	for _, fn := range f.subs {
		fn(v)
	}
}

// Subscribe registers fn and immediately replays the latest value, if any.
// The returned func removes the subscription and is safe to call twice.
func (f *Feed[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.subs[id] = fn

	if f.hasLast {
		fn(f.last)
	}

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// Last returns the most recent value and whether one was published.
func (f *Feed[T]) Last() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasLast
}

// Subscribers returns the number of active subscriptions.
func (f *Feed[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
