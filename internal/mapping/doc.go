// Package mapping declares how parameter keys drive operations.
//
// A Mapping binds one or more keys to a named operation and says which keys
// are required and which may be absent. A Definition is the ordered list of
// mappings for one query plus its source, per-key overrides, local
// operations and extra permitted keys. Definitions are assembled with a
// Builder and are immutable once built, so a single Definition can be
// shared by any number of concurrent queries.
package mapping
