package tenant

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a tenant id is not registered.
var ErrNotFound = errors.New("tenant not found")

// Registry maps tenant ids to servers.
//
// Sessions hold only the tenant id and resolve it on every operation, so a
// reload that removes a tenant takes effect on open sessions immediately.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*Server
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{servers: make(map[string]*Server)}
}

// Get returns the tenant with the given id.
func (r *Registry) Get(id string) (*Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[id]
	return s, ok
}

// Lookup is Get with an error for unknown ids.
func (r *Registry) Lookup(id string) (*Server, error) {
	s, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Add registers a single tenant, replacing any previous one with the same id.
func (r *Registry) Add(s *Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.servers[s.ID()]; ok {
		s.SetDiskUsed(old.DiskUsed())
	}
	r.servers[s.ID()] = s
}

// Replace swaps the full tenant set. Disk usage already computed for a
// tenant that survives the swap is carried over.
func (r *Registry) Replace(servers []*Server) {
	next := make(map[string]*Server, len(servers))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range servers {
		if old, ok := r.servers[s.ID()]; ok {
			s.SetDiskUsed(old.DiskUsed())
		}
		next[s.ID()] = s
	}
	r.servers = next
}

// List returns all tenants sorted by id.
func (r *Registry) List() []*Server {
	r.mu.RLock()
	out := make([]*Server, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of registered tenants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}
