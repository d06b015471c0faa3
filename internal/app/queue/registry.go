package queue

import (
	"sort"
	"sync"
)

// InFlightRegistry tracks the job ids currently executing in this process.
// It is advisory only and never persisted.
type InFlightRegistry struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{ids: make(map[string]struct{})}
}

// TryAcquire adds id and reports whether it was absent.
func (r *InFlightRegistry) TryAcquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

// Release removes id. Releasing an absent id is a no-op.
func (r *InFlightRegistry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, id)
}

func (r *InFlightRegistry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// IDs returns a sorted snapshot of the registered ids.
func (r *InFlightRegistry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset forgets every id.
func (r *InFlightRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = make(map[string]struct{})
}
