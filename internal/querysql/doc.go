// Package querysql makes SQLite tables queryable.
//
// A Catalog describes one table and the operations (scopes) it exposes.
// Source resolves catalog names to Relations lazily, checking that the table
// exists only when a query first needs it. A Relation accumulates one
// queryir predicate per applied scope and compiles the whole Select with
// SQLCompiler when rows are read.
//
// CRITICAL: values are always bound as parameters, never interpolated.
// Identifiers are validated by queryir.Validate and then quoted.
// CRITICAL: every Select carries an ORDER BY so results are deterministic.
package querysql
