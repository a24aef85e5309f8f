// Package compiler turns declarative query files into definitions.
//
// A query file declares one or more queries under a top-level "query"
// struct, in CUE or YAML:
//
//	query: posts: {
//		source:   "posts"
//		columns:  ["id", "title", "author"]
//		order_by: ["id"]
//		map: [
//			{op: "search", keys: ["q"]},
//			{op: "by_author", keys: ["author"], require: true},
//			{op: "limit", keys: ["per_page"]},
//		]
//		scopes: {
//			search:    {kind: "like", fields: ["title"]}
//			by_author: {kind: "eq", fields: ["author"]}
//		}
//		parse: per_page: "int"
//	}
//
// Scopes become operations of a SQL-backed source (querysql.Catalog), map
// entries become mappings of a mapping.Definition, and parse entries become
// overrides running the named params parser. "limit" is a built-in local
// operation unless a scope of the same name is declared.
//
// Compilation is split in three steps: parse (CompileCUE, DecodeYAML,
// Load), Validate which reports every problem with an error code, and
// Build which produces the runtime objects.
package compiler
