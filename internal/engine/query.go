package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/mapping"
	"github.com/roach88/sieve/internal/params"
	"github.com/roach88/sieve/internal/queryable"
)

// Outcome labels how a query finished.
type Outcome string

const (
	// OutcomeResult means the folded chain is the result.
	OutcomeResult Outcome = "result"

	// OutcomeEmpty means validation errors collapsed the result to None.
	OutcomeEmpty Outcome = "empty"

	// OutcomeError means execution failed with a fatal error.
	OutcomeError Outcome = "error"
)

// Query is one invocation of a Definition: filtered parameters, the
// validation errors found while planning, and a memoized result.
type Query struct {
	id         string
	def        *mapping.Definition
	params     *params.Filtered
	paramsHash string
	resolver   *params.Resolver
	steps      []Step
	errors     Errors
	source     func(ctx context.Context) (queryable.Queryable, error)
	logger     *slog.Logger

	once     sync.Once
	finished atomic.Bool
	result   queryable.Queryable
	err      error
	outcome  Outcome
	invoked  []string
	duration time.Duration
}

// New plans a query of def over base. raw is the untrusted parameter
// payload in any form params.Filter accepts.
//
// The returned error covers payloads that cannot be converted at all.
// Missing or blank parameters are not errors; they show up in Errors.
func New(def *mapping.Definition, raw any, base queryable.Queryable, opts ...Option) (*Query, error) {
	if base == nil {
		return nil, errors.New("engine: base queryable is nil")
	}
	return newQuery(def, raw, func(context.Context) (queryable.Queryable, error) {
		return base, nil
	}, opts)
}

// FromResolver plans a query whose base is looked up by the definition's
// source name the first time the result is needed. An unknown source
// surfaces as a queryable.MissingSourceError from Result.
func FromResolver(def *mapping.Definition, raw any, r queryable.Resolver, opts ...Option) (*Query, error) {
	if r == nil {
		return nil, errors.New("engine: source resolver is nil")
	}
	return newQuery(def, raw, func(ctx context.Context) (queryable.Queryable, error) {
		q, err := r.Resolve(ctx, def.Source())
		if err != nil {
			if queryable.IsMissingSource(err) {
				return nil, err
			}
			return nil, &queryable.MissingSourceError{Source: def.Source(), Err: err}
		}
		return q, nil
	}, opts)
}

func newQuery(def *mapping.Definition, raw any, source func(context.Context) (queryable.Queryable, error), opts []Option) (*Query, error) {
	if def == nil {
		return nil, errors.New("engine: definition is nil")
	}
	o := buildOptions(opts)

	filtered, err := params.Filter(raw, def.FilterKeys())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", def.Name(), err)
	}
	hash, err := filtered.Hash()
	if err != nil {
		return nil, fmt.Errorf("query %s: hash params: %w", def.Name(), err)
	}

	logger := o.logger.With("query_id", o.id, "definition", def.Name())
	resolver := params.NewResolver(filtered, def.Overrides(), logger)
	steps, errs := plan(def, resolver)

	q := &Query{
		id:         o.id,
		def:        def,
		params:     filtered,
		paramsHash: hash,
		resolver:   resolver,
		steps:      steps,
		errors:     errs,
		source:     source,
		logger:     logger,
	}

	logger.Debug("query planned",
		"params_hash", hash,
		"steps", len(steps),
		"errors", errs.FullMessages(),
	)
	return q, nil
}

// ID returns the query id.
func (q *Query) ID() string { return q.id }

// Definition returns the definition the query was planned from.
func (q *Query) Definition() *mapping.Definition { return q.def }

// Params returns the filtered, scrubbed parameters.
func (q *Query) Params() *params.Filtered { return q.params }

// ParamsHash returns the fingerprint of Params.
func (q *Query) ParamsHash() string { return q.paramsHash }

// Errors returns a copy of the validation errors.
func (q *Query) Errors() Errors {
	out := make(Errors, len(q.errors))
	for k, msgs := range q.errors {
		out[k] = slices.Clone(msgs)
	}
	return out
}

// Valid reports whether no validation error was recorded.
func (q *Query) Valid() bool { return !q.errors.Any() }

// Validate returns a *ValidationError when the query has errors.
func (q *Query) Validate() error {
	if q.Valid() {
		return nil
	}
	return &ValidationError{Errors: q.Errors()}
}

// Steps returns the planned steps in fold order.
func (q *Query) Steps() []Step {
	out := make([]Step, len(q.steps))
	for i, s := range q.steps {
		out[i] = s.clone()
	}
	return out
}

// Get returns the resolved value of a declared key, or nil when it is
// absent. Keys no mapping declares fail with *UndefinedKeyError.
func (q *Query) Get(key any) (any, error) {
	k, ok := params.NormalizeKey(key)
	if !ok || !q.def.Declares(k) {
		return nil, &UndefinedKeyError{Key: fmt.Sprint(key), Valid: q.def.Keys()}
	}
	v, _ := q.resolver.Resolve(k)
	return v, nil
}

// Result folds the planned steps over the base queryable. It runs at most
// once; later calls return the cached value and error. The first caller's
// context governs execution.
func (q *Query) Result(ctx context.Context) (queryable.Queryable, error) {
	q.once.Do(func() {
		q.result, q.err = q.execute(ctx)
		q.finished.Store(true)
	})
	return q.result, q.err
}

// Rows enumerates the result.
func (q *Query) Rows(ctx context.Context) ([]ir.IRObject, error) {
	r, err := q.Result(ctx)
	if err != nil {
		return nil, err
	}
	return r.Rows(ctx)
}

// Count counts the result's rows.
func (q *Query) Count(ctx context.Context) (int, error) {
	r, err := q.Result(ctx)
	if err != nil {
		return 0, err
	}
	return queryable.Count(ctx, r)
}

// Invoked lists the operations that ran, in order. It is empty until
// Result has been called.
func (q *Query) Invoked() []string {
	if !q.done() {
		return nil
	}
	return slices.Clone(q.invoked)
}

// Outcome reports how execution finished, or "" before Result.
func (q *Query) Outcome() Outcome {
	if !q.done() {
		return ""
	}
	return q.outcome
}

// Duration reports how long execution took.
func (q *Query) Duration() time.Duration {
	if !q.done() {
		return 0
	}
	return q.duration
}

func (q *Query) done() bool {
	return q.finished.Load()
}
