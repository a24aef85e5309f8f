// Package ir provides the typed value model that parameter payloads are
// converted into before any scrubbing or resolution happens.
//
// Raw request parameters arrive loosely typed (url.Values, decoded JSON,
// decoded YAML). Converting them once at the boundary into the sealed
// IRValue family means every later stage works with a closed set of types.
//
// This package imports nothing internal. Every other internal package may
// import ir.
//
// Key design constraints:
//   - IRValue is sealed; only the types in this package implement it
//   - Object keys iterate in RFC 8785 order via SortedKeys
//   - Canonical JSON (MarshalCanonical) is the only encoding used for hashing
package ir
