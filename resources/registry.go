// Package resources holds the resource metadata registry: the catalog of
// x402-gated upstreams the proxy fronts. Discovery surfaces consume it
// read-only; the proxy uses it to resolve a resource id to its upstream URL.
package resources

import (
	"sort"
	"strings"
	"sync"
)

// Resource describes one gated upstream.
type Resource struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	UpstreamURL string `json:"upstreamUrl" yaml:"upstreamUrl"`
}

// Registry is the resource lookup collaborator. It is an interface so tests
// and alternative catalogs (a discovery index, a facilitator bazaar) can
// replace the built-in static implementation.
type Registry interface {
	Get(id string) (Resource, bool)
	List() []Resource
	Search(query string) []Resource
}

// StaticRegistry serves a fixed catalog, typically loaded from config.
type StaticRegistry struct {
	mu        sync.RWMutex
	resources map[string]Resource
}

// NewStaticRegistry creates a registry over the given resources.
func NewStaticRegistry(resources ...Resource) *StaticRegistry {
	r := &StaticRegistry{
		resources: make(map[string]Resource),
	}
	for _, res := range resources {
		r.resources[res.ID] = res
	}
	return r
}

func (r *StaticRegistry) Get(id string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[id]
	return res, ok
}

func (r *StaticRegistry) List() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *StaticRegistry) Search(query string) []Resource {
	query = strings.ToLower(query)
	out := []Resource{}
	for _, res := range r.List() {
		if query == "" ||
			strings.Contains(strings.ToLower(res.ID), query) ||
			strings.Contains(strings.ToLower(res.Name), query) ||
			strings.Contains(strings.ToLower(res.Description), query) {
			out = append(out, res)
		}
	}
	return out
}

var _ Registry = (*StaticRegistry)(nil)
