package querysql

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/queryable"
	"github.com/roach88/sieve/internal/queryir"
)

// Runner executes compiled SQL. store.Store implements it.
type Runner interface {
	QueryRows(ctx context.Context, query string, args ...any) ([]ir.IRObject, error)
	QueryInt(ctx context.Context, query string, args ...any) (int64, error)
}

// Relation is a SQL-backed queryable: a table plus the predicates applied to
// it so far. Relations are immutable; Invoke returns a new one.
type Relation struct {
	runner   Runner
	catalog  *Catalog
	compiler *SQLCompiler
	filters  []queryir.Predicate
	limit    int
}

// NewRelation creates an unfiltered relation over catalog's table.
func NewRelation(runner Runner, catalog *Catalog) *Relation {
	return &Relation{runner: runner, catalog: catalog, compiler: NewSQLCompiler()}
}

// Name returns the catalog name the relation was resolved under.
func (r *Relation) Name() string { return r.catalog.Name }

// Arity reports the arity of the scope named op.
func (r *Relation) Arity(op string) (int, bool) {
	s, ok := r.catalog.Scope(op)
	if !ok {
		return 0, false
	}
	return s.Arity(), true
}

// Invoke applies the named scope.
func (r *Relation) Invoke(_ context.Context, op string, args ...any) (queryable.Queryable, error) {
	s, ok := r.catalog.Scope(op)
	if !ok {
		return nil, &queryable.UndefinedOperationError{Operation: op, Source: r.catalog.Name}
	}
	pred, err := s.Predicate(args)
	if err != nil {
		return nil, err
	}
	return r.Where(pred), nil
}

// Where returns a relation narrowed by pred. A nil pred returns r unchanged.
// Local operations use it to add predicates no scope declares.
func (r *Relation) Where(pred queryir.Predicate) *Relation {
	if pred == nil {
		return r
	}
	next := *r
	next.filters = append(slices.Clone(r.filters), pred)
	return &next
}

// Limit returns a relation capped at n rows. Zero removes the cap.
func (r *Relation) Limit(n int) *Relation {
	next := *r
	next.limit = n
	return &next
}

// None returns the relation's canonical empty result: the same table with a
// predicate matching nothing.
func (r *Relation) None() queryable.Queryable {
	return &Relation{
		runner:   r.runner,
		catalog:  r.catalog,
		compiler: r.compiler,
		filters:  []queryir.Predicate{queryir.None{}},
	}
}

// Select returns the query the relation currently stands for.
func (r *Relation) Select() queryir.Select {
	sel := r.catalog.baseSelect()
	sel.Filter = queryir.Conj(r.filters...)
	sel.Limit = r.limit
	return sel
}

// SQL compiles the relation.
func (r *Relation) SQL() (string, []any, error) {
	return r.compiler.Compile(r.Select())
}

// Rows runs the compiled select and scans every row.
func (r *Relation) Rows(ctx context.Context) ([]ir.IRObject, error) {
	sql, args, err := r.SQL()
	if err != nil {
		return nil, fmt.Errorf("relation %s: %w", r.catalog.Name, err)
	}
	rows, err := r.runner.QueryRows(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("relation %s: %w", r.catalog.Name, err)
	}
	return rows, nil
}

// Count runs SELECT COUNT(*) over the relation. A limited relation is
// counted by fetching its rows, since COUNT ignores LIMIT.
func (r *Relation) Count(ctx context.Context) (int, error) {
	if r.limit > 0 {
		rows, err := r.Rows(ctx)
		return len(rows), err
	}
	sql, args, err := r.compiler.Compile(queryir.Count{Of: r.Select()})
	if err != nil {
		return 0, fmt.Errorf("relation %s: %w", r.catalog.Name, err)
	}
	n, err := r.runner.QueryInt(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("relation %s: %w", r.catalog.Name, err)
	}
	return int(n), nil
}
