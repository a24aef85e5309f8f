package queryir

import "github.com/roach88/sieve/internal/ir"

// Query is a sealed query node.
type Query interface {
	queryNode()
}

// Predicate is a sealed filter condition.
type Predicate interface {
	predicateNode()
}

// Select reads rows of one table.
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <order_by>
//
// Empty Columns selects every column. Empty OrderBy falls back to rowid so
// results are always deterministic.
type Select struct {
	From    string
	Columns []string
	Filter  Predicate
	OrderBy []string
	Limit   int
}

func (Select) queryNode() {}

// Count counts the rows a Select would return.
type Count struct {
	Of Select
}

func (Count) queryNode() {}

// Equals is field = value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// Like is a case-insensitive substring match: field LIKE %value%.
// Wildcards in Value are matched literally.
type Like struct {
	Field string
	Value string
}

func (Like) predicateNode() {}

// In is field IN (values...). An empty list matches nothing.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// Range bounds a field inclusively. A nil bound is open.
type Range struct {
	Field string
	Min   ir.IRValue
	Max   ir.IRValue
}

func (Range) predicateNode() {}

// Flag is field = TRUE or field = FALSE.
type Flag struct {
	Field string
	Value bool
}

func (Flag) predicateNode() {}

// IsNull is field IS NULL, or IS NOT NULL when Negate is set.
type IsNull struct {
	Field  string
	Negate bool
}

func (IsNull) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// None matches no row. It backs a relation's canonical empty result.
type None struct{}

func (None) predicateNode() {}

// Conj joins predicates with And, dropping nils and flattening nested Ands.
// It returns nil when nothing is left and the single predicate when only
// one is.
func Conj(preds ...Predicate) Predicate {
	var flat []Predicate
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
		case And:
			if inner := Conj(v.Predicates...); inner != nil {
				if and, ok := inner.(And); ok {
					flat = append(flat, and.Predicates...)
				} else {
					flat = append(flat, inner)
				}
			}
		default:
			flat = append(flat, p)
		}
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	default:
		return And{Predicates: flat}
	}
}
