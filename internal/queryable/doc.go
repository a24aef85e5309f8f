// Package queryable defines the capability the resolution engine folds
// mappings over: something that can apply a named operation to itself and
// return a narrower version, report an operation's arity, produce its own
// canonical empty result, and enumerate its rows.
//
// Two implementations live elsewhere in this module: Memory (here), used by
// tests and examples, and querysql.Relation, backed by SQLite.
package queryable
