package queryir

import (
	"fmt"
	"regexp"

	"github.com/roach88/sieve/internal/ir"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s can be used as a table or column name.
func IsIdentifier(s string) bool {
	return identifier.MatchString(s)
}

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks that every table and field name is a plain identifier and
// that values are scalars SQL parameters can carry.
//
// Validate is a pure function with no side effects.
func Validate(q Query) ValidationResult {
	v := &validator{}
	v.validateQuery(q)
	return ValidationResult{Valid: len(v.errs) == 0, Errors: v.errs}
}

type validator struct {
	errs []string
}

func (v *validator) addError(format string, args ...any) {
	v.errs = append(v.errs, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Count:
		v.validateSelect(query.Of)
	case *Count:
		v.validateSelect(query.Of)
	default:
		v.addError("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if !IsIdentifier(sel.From) {
		v.addError("invalid table name %q", sel.From)
	}
	for _, c := range sel.Columns {
		v.field("column", c)
	}
	for _, c := range sel.OrderBy {
		v.field("order_by", c)
	}
	if sel.Limit < 0 {
		v.addError("limit must not be negative, got %d", sel.Limit)
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) field(kind, name string) {
	if !IsIdentifier(name) {
		v.addError("invalid %s name %q", kind, name)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil, None:
	case Equals:
		v.field("field", pred.Field)
		v.scalar(pred.Field, pred.Value)
	case Like:
		v.field("field", pred.Field)
	case In:
		v.field("field", pred.Field)
		for _, val := range pred.Values {
			v.scalar(pred.Field, val)
		}
	case Range:
		v.field("field", pred.Field)
		if pred.Min != nil {
			v.scalar(pred.Field, pred.Min)
		}
		if pred.Max != nil {
			v.scalar(pred.Field, pred.Max)
		}
	case Flag:
		v.field("field", pred.Field)
	case IsNull:
		v.field("field", pred.Field)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addError("unknown predicate type: %T", p)
	}
}

func (v *validator) scalar(field string, val ir.IRValue) {
	switch val.(type) {
	case ir.IRString, ir.IRInt, ir.IRFloat, ir.IRBool:
	default:
		v.addError("field %q compared to non-scalar %T", field, val)
	}
}
