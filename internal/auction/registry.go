package auction

import "sync"

// Registry is the orchestrator-owned authoritative set of live auctions,
// keyed by task id. Iteration runs in insertion order over a copied id
// list so callers can mutate the registry from inside Each without
// invalidating the scan.
type Registry struct {
	mu       sync.RWMutex
	auctions map[string]*Auction
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{auctions: make(map[string]*Auction)}
}

func (r *Registry) Put(taskID string, a *Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.auctions[taskID]; !ok {
		r.order = append(r.order, taskID)
	}
	r.auctions[taskID] = a
}

func (r *Registry) Get(taskID string) (*Auction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.auctions[taskID]
	return a, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.auctions)
}

// Each visits every live auction in insertion order.
func (r *Registry) Each(fn func(taskID string, a *Auction)) {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	for _, id := range ids {
		r.mu.RLock()
		a, ok := r.auctions[id]
		r.mu.RUnlock()
		if ok {
			fn(id, a)
		}
	}
}

// Remove drops the given task ids from the registry. Settled auctions are
// collected first and removed here in a second phase.
func (r *Registry) Remove(taskIDs ...string) {
	if len(taskIDs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range taskIDs {
		delete(r.auctions, id)
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.auctions[id]; ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
}
