package mapping

import (
	"fmt"
	"slices"

	"github.com/roach88/sieve/internal/params"
)

// Mapping binds parameter keys to one operation.
type Mapping struct {
	operation string
	keys      []params.Key
	required  []params.Key
	whitelist []params.Key

	// explicit is set when the whitelist came from AllowNil or AllowNilAll.
	explicit bool
}

// Option configures a Mapping.
type Option func(*options)

type options struct {
	required    []params.Key
	requireAll  bool
	allowNil    []params.Key
	allowNilAll bool
}

// Require marks keys as required: when one is absent the mapping is skipped
// and a validation error is recorded for it.
func Require(keys ...params.Key) Option {
	return func(o *options) { o.required = append(o.required, keys...) }
}

// RequireAll marks every key of the mapping as required.
func RequireAll() Option {
	return func(o *options) { o.requireAll = true }
}

// AllowNil lists keys that may be absent; the operation then receives nil
// in their position.
func AllowNil(keys ...params.Key) Option {
	return func(o *options) { o.allowNil = append(o.allowNil, keys...) }
}

// AllowNilAll allows every key of the mapping to be absent.
func AllowNilAll() Option {
	return func(o *options) { o.allowNilAll = true }
}

// newMapping validates one declaration. The whitelist is finalized later by
// applyPolicy, once the definition's policy is known.
func newMapping(op string, keys []params.Key, opts ...Option) (Mapping, []DefinitionError) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	field := fmt.Sprintf("map[%s]", op)
	var errs []DefinitionError

	if op == "" {
		errs = append(errs, DefinitionError{Field: "map", Message: "operation name is required", Code: ErrEmptyOperation})
	}

	m := Mapping{operation: op, keys: normalize(keys)}
	if len(m.keys) == 0 {
		errs = append(errs, DefinitionError{Field: field, Message: "mapping must name at least one key", Code: ErrNoKeys})
		return m, errs
	}

	required, undeclared := m.subset(o.required, o.requireAll)
	for _, k := range undeclared {
		errs = append(errs, DefinitionError{Field: field + ".require", Message: fmt.Sprintf("key %q is not mapped to %s", k, op), Code: ErrUndeclaredKey})
	}
	whitelist, undeclared := m.subset(o.allowNil, o.allowNilAll)
	for _, k := range undeclared {
		errs = append(errs, DefinitionError{Field: field + ".allow_nil", Message: fmt.Sprintf("key %q is not mapped to %s", k, op), Code: ErrUndeclaredKey})
	}

	for _, k := range required {
		if slices.Contains(whitelist, k) {
			errs = append(errs, DefinitionError{Field: field, Message: fmt.Sprintf("key %q cannot be both required and allowed nil", k), Code: ErrKeyOverlap})
		}
	}

	m.required = required
	m.whitelist = whitelist
	m.explicit = len(whitelist) > 0
	return m, errs
}

// subset normalizes picked against the mapping keys, keeping declaration
// order. all selects every key.
func (m Mapping) subset(picked []params.Key, all bool) (in []params.Key, undeclared []params.Key) {
	if all {
		return slices.Clone(m.keys), nil
	}
	want := normalize(picked)
	for _, k := range m.keys {
		if slices.Contains(want, k) {
			in = append(in, k)
		}
	}
	for _, k := range want {
		if !slices.Contains(m.keys, k) {
			undeclared = append(undeclared, k)
		}
	}
	return in, undeclared
}

func (m Mapping) applyPolicy(p Policy) Mapping {
	if m.explicit {
		return m
	}
	if p == PolicyStrict && len(m.required) == 0 {
		return m
	}
	m.whitelist = nil
	for _, k := range m.keys {
		if !slices.Contains(m.required, k) {
			m.whitelist = append(m.whitelist, k)
		}
	}
	return m
}

// Operation returns the name of the mapped operation.
func (m Mapping) Operation() string { return m.operation }

// Keys returns the mapped keys in argument order.
func (m Mapping) Keys() []params.Key { return slices.Clone(m.keys) }

// Required returns the required keys.
func (m Mapping) Required() []params.Key { return slices.Clone(m.required) }

// Whitelist returns the keys that may be absent.
func (m Mapping) Whitelist() []params.Key { return slices.Clone(m.whitelist) }

// IsRequired reports whether k is required.
func (m Mapping) IsRequired(k params.Key) bool { return slices.Contains(m.required, k) }

// IsWhitelisted reports whether k may be absent.
func (m Mapping) IsWhitelisted(k params.Key) bool { return slices.Contains(m.whitelist, k) }

// Check is the outcome of testing a mapping against resolved values.
type Check struct {
	// Args holds one value per key in declaration order, nil where absent.
	Args []any

	// Missing lists absent keys that are not whitelisted.
	Missing []params.Key

	// MissingRequired is the subset of Missing that is required.
	MissingRequired []params.Key
}

// Satisfied reports whether the mapping's operation should run.
func (c Check) Satisfied() bool { return len(c.Missing) == 0 }

// Check resolves every key with resolve and applies the satisfaction test:
// the mapping is skipped when some key is absent and not whitelisted.
func (m Mapping) Check(resolve func(params.Key) (any, bool)) Check {
	c := Check{Args: make([]any, len(m.keys))}
	for i, k := range m.keys {
		v, ok := resolve(k)
		if ok {
			c.Args[i] = v
			continue
		}
		if m.IsWhitelisted(k) {
			continue
		}
		c.Missing = append(c.Missing, k)
		if m.IsRequired(k) {
			c.MissingRequired = append(c.MissingRequired, k)
		}
	}
	return c
}

func (m Mapping) String() string {
	return fmt.Sprintf("%s(%v)", m.operation, m.keys)
}

func normalize(keys []params.Key) []params.Key {
	spellings := make([]any, len(keys))
	for i, k := range keys {
		spellings[i] = k
	}
	return params.Keys(spellings...)
}
