// Package store provides the SQLite database behind sieve: the tables that
// queries read from and an append-only run log of executed queries.
//
// # Run Log
//
// Every query executed through the CLI or the HTTP server is recorded with
// its canonical parameters, validation errors, invoked operations, outcome
// and row count. Runs are ordered by a logical seq (engine.Clock), never by
// wall-clock time, so history listings are deterministic.
//
// Parameters and errors are stored as RFC 8785 canonical JSON, so two runs
// with equal inputs store byte-identical text.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The pool is limited to one connection, which also keeps a ":memory:"
// database alive for the lifetime of the Store.
package store
