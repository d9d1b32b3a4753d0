// Package route holds the path to resource index served by the dispatcher.
//
// A Table is immutable once built. A Store publishes tables with a single
// atomic swap so readers always see one complete generation.
package route

import (
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/fnhost/resource"
)

// Table is one generation of the route index.
type Table struct {
	generation uint64
	byPath     map[string]resource.Resource
	resources  []resource.Resource
}

// Build indexes resources. A duplicate route path returns a
// *resource.DuplicateRouteError and no table.
func Build(resources []resource.Resource, generation uint64) (*Table, error) {
	byPath := make(map[string]resource.Resource, len(resources))
	for _, r := range resources {
		if prev, ok := byPath[r.RoutePath]; ok {
			return nil, &resource.DuplicateRouteError{
				RoutePath: r.RoutePath,
				Files:     []string{prev.FilePath, r.FilePath},
			}
		}
		byPath[r.RoutePath] = r
	}

	list := make([]resource.Resource, len(resources))
	copy(list, resources)

	return &Table{generation: generation, byPath: byPath, resources: list}, nil
}

// Generation returns the number the table was built with.
func (t *Table) Generation() uint64 {
	return t.generation
}

// Lookup finds the resource registered for path.
func (t *Table) Lookup(path string) (resource.Resource, bool) {
	r, ok := t.byPath[path]
	return r, ok
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.resources)
}

// Resources returns a copy of every resource in the table.
func (t *Table) Resources() []resource.Resource {
	out := make([]resource.Resource, len(t.resources))
	copy(out, t.resources)
	return out
}

// Functions returns a copy of the function resources.
func (t *Table) Functions() []resource.Resource {
	return t.filter(resource.Function)
}

// Assets returns a copy of the asset resources.
func (t *Table) Assets() []resource.Resource {
	return t.filter(resource.Asset)
}

func (t *Table) filter(kind resource.Kind) []resource.Resource {
	var out []resource.Resource
	for _, r := range t.resources {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Store holds the current table.
type Store struct {
	current atomic.Pointer[Table]

	// mu serializes rebuilds so generations stay monotonic.
	mu   sync.Mutex
	next uint64
}

// NewStore returns a store serving an empty generation-0 table.
func NewStore() *Store {
	s := &Store{}
	empty, _ := Build(nil, 0)
	s.current.Store(empty)
	return s
}

// Load returns the current table. It never blocks.
func (s *Store) Load() *Table {
	return s.current.Load()
}

// Rebuild builds a new generation from resources and publishes it. On error
// the current table stays in place.
func (s *Store) Rebuild(resources []resource.Resource) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := Build(resources, s.next+1)
	if err != nil {
		return nil, err
	}
	s.next++
	s.current.Store(t)
	return t, nil
}

// Publish swaps in a table built elsewhere.
func (s *Store) Publish(t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.generation > s.next {
		s.next = t.generation
	}
	s.current.Store(t)
}
