// Package ring maps keys onto a changing set of endpoints with rendezvous
// hashing, so a key keeps its endpoint unless that endpoint leaves.
package ring

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// Ring is a set of endpoints that keys are routed across. It is safe for
// concurrent use.
type Ring struct {
	mu        sync.RWMutex
	endpoints map[string]struct{}
	hash      *rendezvous.Rendezvous
}

// New creates a ring over endpoints. Duplicates are ignored.
func New(endpoints ...string) *Ring {
	r := &Ring{endpoints: make(map[string]struct{})}
	for _, ep := range endpoints {
		r.endpoints[ep] = struct{}{}
	}
	r.rebuild()
	return r
}

func (r *Ring) rebuild() {
	nodes := make([]string, 0, len(r.endpoints))
	for ep := range r.endpoints {
		nodes = append(nodes, ep)
	}
	sort.Strings(nodes)
	r.hash = rendezvous.New(nodes, xxhash.Sum64String)
}

// Add adds an endpoint. It reports whether the ring changed.
func (r *Ring) Add(endpoint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[endpoint]; ok {
		return false
	}
	r.endpoints[endpoint] = struct{}{}
	r.hash.Add(endpoint)
	return true
}

// Remove removes an endpoint. It reports whether the ring changed.
func (r *Ring) Remove(endpoint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[endpoint]; !ok {
		return false
	}
	delete(r.endpoints, endpoint)
	r.rebuild()
	return true
}

// Get returns the endpoint for key, or "" if the ring is empty.
func (r *Ring) Get(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.endpoints) == 0 {
		return ""
	}
	return r.hash.Lookup(key)
}

// Endpoints returns the endpoints in sorted order.
func (r *Ring) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.endpoints))
	for ep := range r.endpoints {
		out = append(out, ep)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of endpoints.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}
