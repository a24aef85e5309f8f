// Package registry keeps query definitions by name.
//
// A Registry is an ordinary value owned by whoever builds it, typically the
// CLI or HTTP server at startup. Definitions are registered once and read
// concurrently afterwards; data sources are resolved lazily, per query, via
// a queryable.Resolver.
package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/sieve/internal/engine"
	"github.com/roach88/sieve/internal/mapping"
	"github.com/roach88/sieve/internal/queryable"
)

// DuplicateDefinitionError is returned when a name is registered twice.
type DuplicateDefinitionError struct {
	Name string
}

// Error implements the error interface.
func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("query %q has already been registered", e.Name)
}

// NoDefinitionError is returned when no definition is registered under a
// name.
type NoDefinitionError struct {
	Name  string
	Known []string
}

// Error implements the error interface.
func (e *NoDefinitionError) Error() string {
	return fmt.Sprintf("no query defined for %q", e.Name)
}

// Registry maps names to definitions.
//
// Thread-safety: safe for concurrent use.
type Registry struct {
	sources queryable.Resolver

	mu    sync.RWMutex
	defs  map[string]*mapping.Definition
	order []string
}

// New creates an empty registry resolving sources with r.
func New(r queryable.Resolver) *Registry {
	return &Registry{sources: r, defs: make(map[string]*mapping.Definition)}
}

// Register adds def under its name.
func (r *Registry) Register(def *mapping.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[def.Name()]; ok {
		return &DuplicateDefinitionError{Name: def.Name()}
	}
	r.defs[def.Name()] = def
	r.order = append(r.order, def.Name())
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*mapping.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, &NoDefinitionError{Name: name, Known: slices.Clone(r.order)}
	}
	return def, nil
}

// Names lists registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Sources returns the resolver used for data sources.
func (r *Registry) Sources() queryable.Resolver {
	return r.sources
}

// Query plans the named query over raw. Its source is resolved when the
// result is first read.
func (r *Registry) Query(name string, raw any, opts ...engine.Option) (*engine.Query, error) {
	def, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return engine.FromResolver(def, raw, r.sources, opts...)
}
