package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/sieve/internal/mapping"
	"github.com/roach88/sieve/internal/queryable"
)

// execute performs the left fold. It is only ever called through q.once.
func (q *Query) execute(ctx context.Context) (queryable.Queryable, error) {
	start := time.Now()
	defer func() { q.duration = time.Since(start) }()

	base, err := q.source(ctx)
	if err != nil {
		q.finish(OutcomeError, start, err)
		return nil, err
	}

	chain := base
	for _, step := range q.steps {
		if step.Skipped {
			q.logger.Debug("step skipped", "op", step.Operation, "missing", step.Missing)
			continue
		}

		next, err := q.invoke(ctx, chain, step)
		if err != nil {
			err = fmt.Errorf("query %s: %w", q.def.Name(), err)
			q.finish(OutcomeError, start, err)
			return nil, err
		}
		q.invoked = append(q.invoked, step.Operation)
		q.logger.Debug("step invoked", "op", step.Operation, "args", len(step.Args))
		chain = next
	}

	if q.errors.Any() {
		q.finish(OutcomeEmpty, start, nil)
		return base.None(), nil
	}
	q.finish(OutcomeResult, start, nil)
	return chain, nil
}

// invoke applies one step to chain. A local operation registered on the
// definition shadows a source operation with the same name. Zero-arity
// operations are called without arguments.
func (q *Query) invoke(ctx context.Context, chain queryable.Queryable, step Step) (queryable.Queryable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	arity, local, err := q.def.ResolveArity(chain, step.Operation)
	if err != nil {
		return nil, err
	}
	if err := queryable.CheckArity(step.Operation, arity, len(step.Args)); err != nil {
		return nil, err
	}
	args := queryable.Args(arity, slices.Clone(step.Args))

	var next queryable.Queryable
	if local {
		op, _ := q.def.Operation(step.Operation)
		next, err = op.Fn(ctx, mapping.Call{Base: chain, Params: q.params, Args: args})
	} else {
		next, err = chain.Invoke(ctx, step.Operation, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("operation %q: %w", step.Operation, err)
	}
	if next == nil {
		return nil, fmt.Errorf("operation %q returned no queryable", step.Operation)
	}
	return next, nil
}

func (q *Query) finish(outcome Outcome, start time.Time, err error) {
	q.outcome = outcome
	attrs := []any{
		"source", q.def.Source(),
		"params_hash", q.paramsHash,
		"outcome", string(outcome),
		"invoked", q.invoked,
		"duration", time.Since(start),
	}
	if err != nil {
		q.logger.Error("query failed", append(attrs, "error", err)...)
		return
	}
	q.logger.Info("query resolved", attrs...)
}
