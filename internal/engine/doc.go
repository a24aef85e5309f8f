// Package engine resolves a query definition against a parameter payload.
//
// A Query is built in two phases.
//
// Planning happens in New. The raw payload is projected onto the
// definition's keys (params.Filter), every mapping's keys are resolved
// (params.Resolver) and each mapping is tested for satisfaction. Planning
// depends only on the parameters, never on the chain, so validation errors
// are known as soon as New returns.
//
// Execution happens on the first call to Query.Result. The planned steps are
// folded left over the base queryable in declaration order:
//
//	chain := base
//	for each step:
//	    skipped  -> chain passes through
//	    invoked  -> chain = op(chain, args...)
//	if errors recorded -> base.None()
//
// Skipped steps never stop the fold. Every satisfied mapping still runs, and
// the collapse to the canonical empty result happens once, after the last
// step.
//
// RESULT MEMOIZATION:
//
// Result is computed at most once per Query, guarded by sync.Once. Both the
// value and a fatal error (undefined operation, arity mismatch, source
// failure) are cached; concurrent readers observe the same outcome.
//
// THREAD-SAFETY:
//
// Definitions are read-only and may be shared by any number of queries.
// A Query is safe for concurrent use once New returns.
package engine
