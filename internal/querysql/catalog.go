package querysql

import (
	"fmt"
	"sort"

	"github.com/roach88/sieve/internal/queryir"
)

// Catalog describes one table and the scopes it exposes.
type Catalog struct {
	Name    string
	Table   string
	Columns []string
	OrderBy []string
	Scopes  map[string]Scope
}

// NewCatalog creates a catalog for table, registered under name. An empty
// table defaults to name.
func NewCatalog(name, table string) *Catalog {
	if table == "" {
		table = name
	}
	return &Catalog{Name: name, Table: table, Scopes: make(map[string]Scope)}
}

// AddScope registers s, rejecting invalid and duplicate scopes.
func (c *Catalog) AddScope(s Scope) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, dup := c.Scopes[s.Name]; dup {
		return fmt.Errorf("catalog %s: scope %s already defined", c.Name, s.Name)
	}
	c.Scopes[s.Name] = s
	return nil
}

// Scope returns the scope named name.
func (c *Catalog) Scope(name string) (Scope, bool) {
	s, ok := c.Scopes[name]
	return s, ok
}

// ScopeNames lists scope names in sorted order.
func (c *Catalog) ScopeNames() []string {
	names := make([]string, 0, len(c.Scopes))
	for name := range c.Scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the table, column and order identifiers and every scope.
func (c *Catalog) Validate() error {
	if res := queryir.Validate(c.baseSelect()); !res.Valid {
		return fmt.Errorf("catalog %s: %v", c.Name, res.Errors)
	}
	for _, name := range c.ScopeNames() {
		if err := c.Scopes[name].Validate(); err != nil {
			return fmt.Errorf("catalog %s: %w", c.Name, err)
		}
	}
	return nil
}

func (c *Catalog) baseSelect() queryir.Select {
	return queryir.Select{From: c.Table, Columns: c.Columns, OrderBy: c.OrderBy}
}
