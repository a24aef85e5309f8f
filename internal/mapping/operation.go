package mapping

import (
	"context"

	"github.com/roach88/sieve/internal/params"
	"github.com/roach88/sieve/internal/queryable"
)

// Call is what a local operation receives.
type Call struct {
	// Base is the chain state the operation narrows.
	Base queryable.Queryable

	// Params is the query's filtered parameter set.
	Params *params.Filtered

	// Args are the resolved values, trimmed to the operation's arity.
	Args []any
}

// OperationFunc implements a local operation.
type OperationFunc func(ctx context.Context, call Call) (queryable.Queryable, error)

// Operation is an operation declared on a Definition rather than on its
// source. It takes priority over a source operation with the same name.
type Operation struct {
	Name  string
	Arity int
	Fn    OperationFunc
}
