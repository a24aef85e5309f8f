package querysql

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/sieve/internal/queryable"
)

// TableChecker reports whether a table exists. store.Store implements it.
type TableChecker interface {
	TableExists(ctx context.Context, table string) (bool, error)
}

// Database is what a Source needs from the store.
type Database interface {
	Runner
	TableChecker
}

// Source resolves catalog names to relations. Each table is checked the
// first time it is resolved; later resolutions reuse the result.
//
// Thread-safety: safe for concurrent use.
type Source struct {
	db       Database
	catalogs map[string]*Catalog

	mu      sync.Mutex
	checked map[string]bool
}

// NewSource creates a source over db.
func NewSource(db Database) *Source {
	return &Source{db: db, catalogs: make(map[string]*Catalog), checked: make(map[string]bool)}
}

// Add registers a catalog after validating it.
func (s *Source) Add(c *Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.catalogs[c.Name]; dup {
		return fmt.Errorf("source %s already registered", c.Name)
	}
	s.catalogs[c.Name] = c
	return nil
}

// Catalog returns the catalog registered under name.
func (s *Source) Catalog(name string) (*Catalog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.catalogs[name]
	return c, ok
}

// Names lists registered catalogs in sorted order.
func (s *Source) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.catalogs))
	for name := range s.catalogs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns an unfiltered relation for name. Unknown names and missing
// tables fail with *queryable.MissingSourceError.
func (s *Source) Resolve(ctx context.Context, name string) (queryable.Queryable, error) {
	s.mu.Lock()
	c, ok := s.catalogs[name]
	checked := s.checked[name]
	s.mu.Unlock()

	if !ok {
		return nil, &queryable.MissingSourceError{Source: name}
	}
	if !checked {
		exists, err := s.db.TableExists(ctx, c.Table)
		if err != nil {
			return nil, &queryable.MissingSourceError{Source: name, Err: err}
		}
		if !exists {
			return nil, &queryable.MissingSourceError{Source: name, Err: fmt.Errorf("table %s does not exist", c.Table)}
		}
		s.mu.Lock()
		s.checked[name] = true
		s.mu.Unlock()
	}
	return NewRelation(s.db, c), nil
}
