package importop

import (
	"context"
	"sync"
)

// Listener is notified when an import operation starts, before any records
// flow. Listeners typically attach handlers to the operation. Returning an
// error aborts the operation; handlers attached by other listeners are still
// notified of the failure.
type Listener func(ctx context.Context, op *Operation) error

// Registry is the process-wide announcement point for import operations: the
// "import started" signal. Consumers subscribe; the Coordinator notifies every
// subscriber when a producer begins an operation. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener
	order     []uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[uint64]Listener)}
}

// Subscribe registers a listener and returns a function that removes it.
// Unsubscribing more than once is a no-op.
func (r *Registry) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	r.order = append(r.order, id)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.listeners, id)
			for i, got := range r.order {
				if got == id {
					r.order = append(r.order[:i], r.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Len reports the number of subscribed listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// snapshot returns the listeners in subscription order.
func (r *Registry) snapshot() []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Listener, 0, len(r.order))
	for _, id := range r.order {
		if l, ok := r.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}
