package mapping

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/sieve/internal/params"
	"github.com/roach88/sieve/internal/queryable"
)

// Builder assembles a Definition. Declaration errors are collected and
// reported together by Build.
type Builder struct {
	def  *Definition
	errs []DefinitionError
}

// NewBuilder starts a definition named name over source. An empty name
// defaults to the source.
func NewBuilder(name, source string) *Builder {
	if name == "" {
		name = source
	}
	return &Builder{def: &Definition{
		name:       name,
		source:     source,
		overrides:  make(map[params.Key]params.Override),
		operations: make(map[string]Operation),
	}}
}

// Policy sets the whitelist policy. It applies to every mapping regardless
// of call order.
func (b *Builder) Policy(p Policy) *Builder {
	b.def.policy = p
	return b
}

// Map appends a mapping from keys to op.
func (b *Builder) Map(op string, keys []params.Key, opts ...Option) *Builder {
	m, errs := newMapping(op, keys, opts...)
	b.errs = append(b.errs, errs...)

	for _, existing := range b.def.mappings {
		if op != "" && existing.operation == op {
			b.errs = append(b.errs, DefinitionError{
				Field:   fmt.Sprintf("map[%s]", op),
				Message: fmt.Sprintf("operation %q has already been mapped", op),
				Code:    ErrDuplicateOperation,
			})
			return b
		}
	}

	b.def.mappings = append(b.def.mappings, m)
	for _, k := range m.keys {
		if !b.def.Declares(k) {
			b.def.keys = append(b.def.keys, k)
		}
	}
	return b
}

// Override registers fn as the resolution of key.
func (b *Builder) Override(key params.Key, fn params.Override) *Builder {
	k, ok := params.NormalizeKey(key)
	if !ok {
		b.errs = append(b.errs, DefinitionError{Field: "override", Message: "key is required", Code: ErrUndeclaredKey})
		return b
	}
	if _, dup := b.def.overrides[k]; dup {
		b.errs = append(b.errs, DefinitionError{
			Field:   fmt.Sprintf("override[%s]", k),
			Message: "override has already been registered",
			Code:    ErrDuplicateLocal,
		})
		return b
	}
	b.def.overrides[k] = fn
	return b
}

// Operation registers a local operation.
func (b *Builder) Operation(name string, arity int, fn OperationFunc) *Builder {
	field := fmt.Sprintf("operation[%s]", name)
	switch {
	case name == "":
		b.errs = append(b.errs, DefinitionError{Field: "operation", Message: "operation name is required", Code: ErrEmptyOperation})
		return b
	case arity < queryable.Variadic:
		b.errs = append(b.errs, DefinitionError{Field: field, Message: fmt.Sprintf("arity %d is invalid", arity), Code: ErrInvalidArity})
		return b
	}
	if _, dup := b.def.operations[name]; dup {
		b.errs = append(b.errs, DefinitionError{Field: field, Message: "operation has already been registered", Code: ErrDuplicateLocal})
		return b
	}
	b.def.operations[name] = Operation{Name: name, Arity: arity, Fn: fn}
	return b
}

// Permit lets keys through the parameter filter without mapping them, so
// overrides can read them.
func (b *Builder) Permit(keys ...params.Key) *Builder {
	for _, k := range normalize(keys) {
		if !slices.Contains(b.def.permitted, k) {
			b.def.permitted = append(b.def.permitted, k)
		}
	}
	return b
}

// Build validates the declaration and returns the Definition. The builder
// must not be used afterwards.
func (b *Builder) Build() (*Definition, error) {
	errs := append([]DefinitionError(nil), b.errs...)
	d := b.def

	if d.source == "" {
		errs = append(errs, DefinitionError{Field: "source", Message: "source is required", Code: ErrEmptySource})
	}

	for _, k := range slices.Sorted(maps.Keys(d.overrides)) {
		if !d.Declares(k) {
			errs = append(errs, DefinitionError{
				Field:   fmt.Sprintf("override[%s]", k),
				Message: fmt.Sprintf("key %q is not mapped to any operation", k),
				Code:    ErrUndeclaredKey,
			})
		}
	}

	for i, m := range d.mappings {
		d.mappings[i] = m.applyPolicy(d.policy)
		if lo, ok := d.operations[m.operation]; ok {
			if err := queryable.CheckArity(m.operation, lo.Arity, len(m.keys)); err != nil {
				errs = append(errs, DefinitionError{Field: fmt.Sprintf("operation[%s]", m.operation), Message: err.Error(), Code: ErrInvalidArity})
			}
		}
	}

	if len(errs) > 0 {
		return nil, DefinitionErrors(errs)
	}
	return d, nil
}

// MustBuild is like Build but panics on error. It suits definitions
// declared in package-level variables.
func (b *Builder) MustBuild() *Definition {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
