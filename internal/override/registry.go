package override

import (
	"sort"
	"sync"
)

// Registry buckets override requests by kind for a single test.
type Registry struct {
	mu       sync.Mutex
	requests []Request
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends r. It never fails.
func (r *Registry) Register(req Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

// RegisterAll appends reqs in order.
func (r *Registry) RegisterAll(reqs []Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, reqs...)
}

// Drain removes and returns every request of kind. Programmatic requests
// come first, then annotations, then attributes; within an origin the
// registration order is preserved.
func (r *Registry) Drain(kind Kind) []Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	var drained []Request
	kept := r.requests[:0]
	for _, req := range r.requests {
		if req.Kind == kind {
			drained = append(drained, req)
			continue
		}
		kept = append(kept, req)
	}
	r.requests = kept

	sort.SliceStable(drained, func(i, j int) bool {
		return drained[i].Origin.Rank() < drained[j].Origin.Rank()
	})
	return drained
}

// Len returns the number of requests not yet drained.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// Reset discards every pending request.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
}
