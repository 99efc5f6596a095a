package channels

import (
	"sort"
	"sync"
)

// Registry maps a local server identity to its single active channel.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// Put registers ch under identity and returns the channel it replaced, if any.
func (r *Registry) Put(identity string, ch *Channel) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.channels[identity]
	r.channels[identity] = ch
	if prev == ch {
		return nil
	}
	return prev
}

func (r *Registry) Get(identity string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[identity]
	return ch, ok
}

func (r *Registry) Contains(identity string) bool {
	_, ok := r.Get(identity)
	return ok
}

// Remove deletes the entry for identity only while it still points at ch.
func (r *Registry) Remove(identity string, ch *Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.channels[identity]; ok && cur == ch {
		delete(r.channels, identity)
		return true
	}
	return false
}

// Identities returns the registered identities in sorted order.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.channels))
	for id := range r.channels {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
