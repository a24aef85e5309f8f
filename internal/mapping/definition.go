package mapping

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/sieve/internal/params"
	"github.com/roach88/sieve/internal/queryable"
)

// Definition is an immutable, ordered set of mappings for one query.
// Declaration order is fold order.
type Definition struct {
	name       string
	source     string
	policy     Policy
	mappings   []Mapping
	overrides  map[params.Key]params.Override
	operations map[string]Operation
	keys       []params.Key
	permitted  []params.Key
}

// Name returns the definition's name.
func (d *Definition) Name() string { return d.name }

// Source returns the identifier of the data source the query runs against.
func (d *Definition) Source() string { return d.source }

// Policy returns the whitelist policy the mappings were built with.
func (d *Definition) Policy() Policy { return d.policy }

// Mappings returns the mappings in fold order.
func (d *Definition) Mappings() []Mapping { return slices.Clone(d.mappings) }

// Keys returns every key declared by some mapping, in first-declared order.
func (d *Definition) Keys() []params.Key { return slices.Clone(d.keys) }

// Declares reports whether some mapping declares k.
func (d *Definition) Declares(k params.Key) bool { return slices.Contains(d.keys, k) }

// Permitted returns keys accepted by the filter without being mapped.
func (d *Definition) Permitted() []params.Key { return slices.Clone(d.permitted) }

// FilterKeys returns the keys a raw payload is projected onto: declared keys
// followed by permitted ones.
func (d *Definition) FilterKeys() []params.Key {
	out := slices.Clone(d.keys)
	for _, k := range d.permitted {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// Overrides returns a copy of the per-key overrides.
func (d *Definition) Overrides() map[params.Key]params.Override {
	return maps.Clone(d.overrides)
}

// Operation returns the local operation registered under name.
func (d *Definition) Operation(name string) (Operation, bool) {
	op, ok := d.operations[name]
	return op, ok
}

// Operations lists the names of local operations in sorted order.
func (d *Definition) Operations() []string {
	return slices.Sorted(maps.Keys(d.operations))
}

// ResolveArity finds the arity of op, preferring a local operation over one
// exposed by q.
func (d *Definition) ResolveArity(q queryable.Queryable, op string) (arity int, local bool, err error) {
	if lo, ok := d.operations[op]; ok {
		return lo.Arity, true, nil
	}
	if n, ok := q.Arity(op); ok {
		return n, false, nil
	}
	return 0, false, &queryable.UndefinedOperationError{Operation: op, Source: d.source}
}

func (d *Definition) String() string {
	return fmt.Sprintf("%s on %s (%d mappings)", d.name, d.source, len(d.mappings))
}
