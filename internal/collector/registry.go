package collector

import (
	"iter"
	"slices"
	"sync"

	"collectord/internal/transport"
	"collectord/pkg/types"
)

// Subscriber is one registered monitoring client.
type Subscriber struct {
	ID     transport.ClientID
	Mode   types.DeliveryMode
	Filter string
}

// Registry maps client ids to their delivery settings. An entry exists iff the
// client registered and has not been removed since.
type Registry struct {
	mu   sync.Mutex
	subs map[transport.ClientID]Subscriber
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[transport.ClientID]Subscriber)}
}

// Register adds id in pull mode, or returns the existing entry.
func (r *Registry) Register(id transport.ClientID) (Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[id]; ok {
		return s, false
	}
	s := Subscriber{ID: id, Mode: types.ModePull}
	r.subs[id] = s
	return s, true
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id transport.ClientID) (Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	return s, ok
}

// SetDeliveryMode changes the mode of a registered client. Unknown ids are
// ignored and reported with false.
func (r *Registry) SetDeliveryMode(id transport.ClientID, mode types.DeliveryMode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return false
	}
	s.Mode = mode
	r.subs[id] = s
	return true
}

// SetFilter changes the sub-event filter of a registered client.
func (r *Registry) SetFilter(id transport.ClientID, filter string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return false
	}
	s.Filter = filter
	r.subs[id] = s
	return true
}

// Remove drops id. It reports whether an entry existed.
func (r *Registry) Remove(id transport.ClientID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	return true
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Snapshot returns all entries ordered by id.
func (r *Registry) Snapshot() []Subscriber {
	r.mu.Lock()
	out := make([]Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b Subscriber) int { return int(a.ID) - int(b.ID) })
	return out
}

// PushSubscribers yields (id, filter) for every push-mode client registered at
// the time of the call. The set is captured under the lock; iteration happens
// without it.
func (r *Registry) PushSubscribers() iter.Seq2[transport.ClientID, string] {
	var push []Subscriber
	for _, s := range r.Snapshot() {
		if s.Mode == types.ModePush {
			push = append(push, s)
		}
	}
	return func(yield func(transport.ClientID, string) bool) {
		for _, s := range push {
			if !yield(s.ID, s.Filter) {
				return
			}
		}
	}
}
