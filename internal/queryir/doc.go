// Package queryir is the query representation behind SQL-backed sources.
//
// Operations applied to a querysql.Relation do not build SQL directly. Each
// one contributes a Predicate, and the relation compiles the accumulated
// Select once, when rows are read. Keeping the IR separate from SQL text
// means predicates can be validated, compared in tests, and compiled with
// values always parameterized.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed with marker methods. Only types in this
// package implement them, so backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Like:
//	case In:
//	case Range:
//	case Flag:
//	case IsNull:
//	case And:
//	case None:
//	}
//
// Field names are interpolated into SQL as quoted identifiers, so Validate
// rejects anything that is not a plain identifier.
package queryir
