// Package params turns an untrusted, loosely typed parameter payload into the
// small, scrubbed parameter set a query definition declared.
//
// Three stages, each usable on its own:
//
//	Scrub    recursively drop blank values and trim text
//	Filter   project a raw payload onto declared keys (normalizing key
//	         spelling) and scrub what is kept
//	Resolver look up a key's effective value, optionally through an
//	         Override that may derive it from other fields
//
// Keys are normalized exactly once, in Filter. Everything downstream of a
// Filtered value works with canonical Key values only.
package params
