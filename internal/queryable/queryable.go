package queryable

import (
	"context"

	"github.com/roach88/sieve/internal/ir"
)

// Variadic is the arity of an operation that accepts any number of
// arguments. The engine passes it every resolved value.
const Variadic = -1

// Queryable is a data source, or a narrowed view of one, that operations can
// be applied to.
//
// Implementations are immutable: Invoke returns a new Queryable and leaves
// the receiver untouched, so one base can seed many queries.
type Queryable interface {
	// Invoke applies the named operation with positional arguments. Absent
	// values are passed as nil.
	Invoke(ctx context.Context, op string, args ...any) (Queryable, error)

	// Arity reports how many arguments op declares, or false if the
	// queryable does not expose op.
	Arity(op string) (int, bool)

	// None returns the canonical empty result for this source.
	None() Queryable

	// Rows enumerates the current result.
	Rows(ctx context.Context) ([]ir.IRObject, error)
}

// Counter is implemented by queryables that can count without fetching rows.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Namer is implemented by queryables that know their source name.
type Namer interface {
	Name() string
}

// Count counts q's rows, using Counter when available.
func Count(ctx context.Context, q Queryable) (int, error) {
	if c, ok := q.(Counter); ok {
		return c.Count(ctx)
	}
	rows, err := q.Rows(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Name returns q's source name, or "" when q does not implement Namer.
func Name(q Queryable) string {
	if n, ok := q.(Namer); ok {
		return n.Name()
	}
	return ""
}

// CheckArity validates that an operation declaring arity can be called with
// got resolved values. Zero-arity operations accept any number because they
// are called without arguments.
func CheckArity(op string, arity, got int) error {
	if arity == Variadic || arity == 0 || arity == got {
		return nil
	}
	return &ArityError{Operation: op, Want: arity, Got: got}
}

// Args trims resolved values to what an operation of the given arity takes.
func Args(arity int, values []any) []any {
	if arity == 0 {
		return nil
	}
	return values
}
