package queryable

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/sieve/internal/ir"
)

// RowFilter is a predicate over one row, parameterized by the operation's
// arguments.
type RowFilter func(row ir.IRObject, args []any) bool

// MemoryOp declares an operation of a Memory source.
type MemoryOp struct {
	Arity  int
	Filter RowFilter
}

// Memory is an in-memory Queryable over a fixed slice of rows. Operations
// keep the rows their filter accepts.
type Memory struct {
	name string
	rows []ir.IRObject
	ops  map[string]MemoryOp
}

// NewMemory creates a Memory source. rows are cloned.
func NewMemory(name string, rows []ir.IRObject, ops map[string]MemoryOp) *Memory {
	cloned := make([]ir.IRObject, len(rows))
	for i, r := range rows {
		cloned[i] = ir.Clone(r).(ir.IRObject)
	}
	return &Memory{name: name, rows: cloned, ops: ops}
}

// Name returns the source name given to NewMemory.
func (m *Memory) Name() string { return m.name }

// Arity returns the declared arity of op and whether op exists.
func (m *Memory) Arity(op string) (int, bool) {
	o, ok := m.ops[op]
	return o.Arity, ok
}

// Invoke keeps the rows op's filter accepts for args. Arity is checked
// unless op is Variadic.
func (m *Memory) Invoke(_ context.Context, op string, args ...any) (Queryable, error) {
	o, ok := m.ops[op]
	if !ok {
		return nil, &UndefinedOperationError{Operation: op, Source: m.name}
	}
	if o.Arity != Variadic && len(args) != o.Arity {
		return nil, fmt.Errorf("operation %q: %w", op, &ArityError{Operation: op, Want: o.Arity, Got: len(args)})
	}

	kept := make([]ir.IRObject, 0, len(m.rows))
	for _, row := range m.rows {
		if o.Filter(row, args) {
			kept = append(kept, row)
		}
	}
	return &Memory{name: m.name, rows: kept, ops: m.ops}, nil
}

// None returns the same source with no rows.
func (m *Memory) None() Queryable {
	return &Memory{name: m.name, ops: m.ops}
}

// Rows returns deep copies of the remaining rows.
func (m *Memory) Rows(context.Context) ([]ir.IRObject, error) {
	out := make([]ir.IRObject, len(m.rows))
	for i, r := range m.rows {
		out[i] = ir.Clone(r).(ir.IRObject)
	}
	return out, nil
}

// Count returns the number of remaining rows.
func (m *Memory) Count(context.Context) (int, error) {
	return len(m.rows), nil
}

// FieldEquals is a RowFilter keeping rows whose field equals the single
// argument. A nil argument keeps every row.
func FieldEquals(field string) RowFilter {
	return func(row ir.IRObject, args []any) bool {
		if len(args) == 0 || args[0] == nil {
			return true
		}
		want, err := ir.FromAny(args[0])
		if err != nil {
			return false
		}
		return ir.Equal(row[field], want)
	}
}

// FieldIn is a RowFilter keeping rows whose field is one of the values in
// the single list argument.
func FieldIn(field string) RowFilter {
	return func(row ir.IRObject, args []any) bool {
		if len(args) == 0 || args[0] == nil {
			return true
		}
		list, err := ir.FromAny(args[0])
		if err != nil {
			return false
		}
		arr, ok := list.(ir.IRArray)
		if !ok {
			arr = ir.IRArray{list}
		}
		return slices.ContainsFunc(arr, func(v ir.IRValue) bool {
			return ir.Equal(row[field], v)
		})
	}
}
