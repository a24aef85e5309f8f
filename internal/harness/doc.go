// Package harness provides conformance testing for query definitions.
//
// A scenario builds a fresh database, loads query files, runs a sequence
// of cases through the same service the CLI and server use, and checks
// each run against its expectations.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	queries:
//	  - ../queries            # files or directories, relative to this file
//	policy: default           # for queries that don't declare one
//	schema: |
//	  CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT);
//	fixtures:
//	  posts:
//	    - {id: 1, title: "Hello"}
//	cases:
//	  - name: search
//	    query: posts
//	    params: {q: hello}
//	    expect:
//	      outcome: result
//	      count: 1
//	      ids: [1]
//	      invoked: [search]
//	assertions:
//	  - type: run_count
//	    query: posts
//	    count: 1
//	  - type: final_state
//	    table: runs
//	    where: {id: scenario_name-1}
//	    expect: {outcome: result}
//
// # Expectations
//
// Every expectation field is optional. Rows are compared column-subset
// wise; numbers compare by value, so 4 matches 4.0. A case without an
// outcome fails on any execution error.
//
// # Assertion Types
//
//   - run_contains: some run of a query recorded the given params (subset)
//   - run_order: queries were first run in the given order
//   - run_count: a query was run exactly N times
//   - final_state: one row of a table (the runs table included) matches
//
// # Deterministic Testing
//
// Run ids are "<scenario>-<n>" and seq values start at 1, so traces are
// identical across runs and can be compared with golden snapshots:
//
//	go test ./internal/harness -update
package harness
