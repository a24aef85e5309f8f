package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/queryable"
)

// Call is one recorded operation invocation.
type Call struct {
	Op   string
	Args []any
}

func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Op, c.Args)
}

// Recorder is a queryable that applies nothing and remembers everything.
//
// Every Invoke is appended to a log shared by all queryables derived from
// the same root, and the returned queryable carries its own chain of calls,
// so tests can assert both how often an operation ran and how the calls
// composed. Rows returns one row per call in the chain.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	name  string
	ops   map[string]int
	log   *callLog
	chain []Call
	none  bool
}

type callLog struct {
	mu    sync.Mutex
	calls []Call
}

// NewRecorder creates a recording source exposing ops (name to arity).
func NewRecorder(name string, ops map[string]int) *Recorder {
	return &Recorder{name: name, ops: ops, log: &callLog{}}
}

// Name returns the recorder's source name.
func (r *Recorder) Name() string { return r.name }

// Arity returns the arity declared for op.
func (r *Recorder) Arity(op string) (int, bool) {
	n, ok := r.ops[op]
	return n, ok
}

// Invoke records the call and returns a recorder extending the chain.
func (r *Recorder) Invoke(_ context.Context, op string, args ...any) (queryable.Queryable, error) {
	if _, ok := r.ops[op]; !ok {
		return nil, &queryable.UndefinedOperationError{Operation: op, Source: r.name}
	}
	call := Call{Op: op, Args: slices.Clone(args)}

	r.log.mu.Lock()
	r.log.calls = append(r.log.calls, call)
	r.log.mu.Unlock()

	return r.with(call), nil
}

// with derives a queryable whose chain ends in call. It is exported to
// local operations through Apply.
func (r *Recorder) with(call Call) *Recorder {
	return &Recorder{
		name:  r.name,
		ops:   r.ops,
		log:   r.log,
		chain: append(slices.Clone(r.chain), call),
	}
}

// Apply records call on the chain without going through Invoke, as a local
// operation would when narrowing the recorder itself.
func Apply(q queryable.Queryable, op string, args ...any) queryable.Queryable {
	r, ok := q.(*Recorder)
	if !ok {
		return q
	}
	call := Call{Op: op, Args: slices.Clone(args)}
	r.log.mu.Lock()
	r.log.calls = append(r.log.calls, call)
	r.log.mu.Unlock()
	return r.with(call)
}

// None returns an empty recorder marked as the canonical empty result.
func (r *Recorder) None() queryable.Queryable {
	return &Recorder{name: r.name, ops: r.ops, log: r.log, none: true}
}

// Rows returns one row per call on the chain, {op, args}, in order.
func (r *Recorder) Rows(context.Context) ([]ir.IRObject, error) {
	rows := make([]ir.IRObject, 0, len(r.chain))
	for _, c := range r.chain {
		args, err := ir.FromAny(c.Args)
		if err != nil {
			return nil, err
		}
		rows = append(rows, ir.IRObject{"op": ir.IRString(c.Op), "args": args})
	}
	return rows, nil
}

// IsNone reports whether r is the canonical empty result.
func (r *Recorder) IsNone() bool { return r.none }

// Chain returns the calls that produced r, innermost first.
func (r *Recorder) Chain() []Call { return slices.Clone(r.chain) }

// Calls returns every call made through any queryable sharing r's log.
func (r *Recorder) Calls() []Call {
	r.log.mu.Lock()
	defer r.log.mu.Unlock()
	return slices.Clone(r.log.calls)
}

// CallCount counts recorded calls of op.
func (r *Recorder) CallCount(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}
