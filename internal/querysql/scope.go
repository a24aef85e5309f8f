package querysql

import (
	"fmt"
	"time"

	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/queryable"
	"github.com/roach88/sieve/internal/queryir"
)

// Kind selects the predicate a Scope builds.
type Kind string

const (
	KindEq      Kind = "eq"       // each field equals its argument
	KindLike    Kind = "like"     // each field contains its argument
	KindIn      Kind = "in"       // field is one of a list
	KindRange   Kind = "range"    // min <= field <= max
	KindTrue    Kind = "true"     // field is true
	KindFalse   Kind = "false"    // field is false
	KindNull    Kind = "null"     // field is null
	KindNotNull Kind = "not_null" // field is not null
)

// Kinds lists every scope kind.
func Kinds() []Kind {
	return []Kind{KindEq, KindLike, KindIn, KindRange, KindTrue, KindFalse, KindNull, KindNotNull}
}

// Scope is a declarative operation on a table.
type Scope struct {
	Name   string
	Kind   Kind
	Fields []string
}

// Arity returns the number of arguments the scope declares: one per field
// for eq and like, one list for in, two bounds for range, none for the
// rest.
func (s Scope) Arity() int {
	switch s.Kind {
	case KindEq, KindLike:
		return len(s.Fields)
	case KindIn:
		return 1
	case KindRange:
		return 2
	default:
		return 0
	}
}

// Validate checks the scope's kind and field count.
func (s Scope) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scope name is required")
	}
	for _, f := range s.Fields {
		if !queryir.IsIdentifier(f) {
			return fmt.Errorf("scope %s: invalid field name %q", s.Name, f)
		}
	}
	switch s.Kind {
	case KindEq, KindLike:
		if len(s.Fields) == 0 {
			return fmt.Errorf("scope %s: %s needs at least one field", s.Name, s.Kind)
		}
	case KindIn, KindRange, KindTrue, KindFalse, KindNull, KindNotNull:
		if len(s.Fields) != 1 {
			return fmt.Errorf("scope %s: %s needs exactly one field, got %d", s.Name, s.Kind, len(s.Fields))
		}
	default:
		return fmt.Errorf("scope %s: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}

// Predicate builds the scope's predicate from positional arguments. A nil
// argument turns its part of the scope into a no-op; the result is nil when
// every part is a no-op.
func (s Scope) Predicate(args []any) (queryir.Predicate, error) {
	if err := queryable.CheckArity(s.Name, s.Arity(), len(args)); err != nil {
		return nil, err
	}

	switch s.Kind {
	case KindEq, KindLike:
		var parts []queryir.Predicate
		for i, field := range s.Fields {
			if args[i] == nil {
				continue
			}
			v, err := argValue(args[i])
			if err != nil {
				return nil, fmt.Errorf("scope %s: %w", s.Name, err)
			}
			if s.Kind == KindEq {
				parts = append(parts, queryir.Equals{Field: field, Value: v})
			} else {
				parts = append(parts, queryir.Like{Field: field, Value: likeText(v)})
			}
		}
		return queryir.Conj(parts...), nil

	case KindIn:
		if args[0] == nil {
			return nil, nil
		}
		v, err := argValue(args[0])
		if err != nil {
			return nil, fmt.Errorf("scope %s: %w", s.Name, err)
		}
		values, ok := v.(ir.IRArray)
		if !ok {
			values = ir.IRArray{v}
		}
		return queryir.In{Field: s.Fields[0], Values: values}, nil

	case KindRange:
		r := queryir.Range{Field: s.Fields[0]}
		for i, bound := range []*ir.IRValue{&r.Min, &r.Max} {
			if args[i] == nil {
				continue
			}
			v, err := argValue(args[i])
			if err != nil {
				return nil, fmt.Errorf("scope %s: %w", s.Name, err)
			}
			*bound = v
		}
		if r.Min == nil && r.Max == nil {
			return nil, nil
		}
		return r, nil

	case KindTrue, KindFalse:
		return queryir.Flag{Field: s.Fields[0], Value: s.Kind == KindTrue}, nil
	case KindNull, KindNotNull:
		return queryir.IsNull{Field: s.Fields[0], Negate: s.Kind == KindNotNull}, nil
	default:
		return nil, fmt.Errorf("scope %s: unknown kind %q", s.Name, s.Kind)
	}
}

// argValue converts an operation argument to an IR value. Dates are stored
// as ISO text in SQLite, so time.Time becomes a date or RFC 3339 string.
func argValue(a any) (ir.IRValue, error) {
	if t, ok := a.(time.Time); ok {
		if t.Equal(t.Truncate(24 * time.Hour)) {
			return ir.IRString(t.Format(time.DateOnly)), nil
		}
		return ir.IRString(t.Format(time.RFC3339)), nil
	}
	return ir.FromAny(a)
}

func likeText(v ir.IRValue) string {
	if s, ok := v.(ir.IRString); ok {
		return string(s)
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return ""
	}
	return string(b)
}
