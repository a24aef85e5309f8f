package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/queryir"
	"github.com/roach88/sieve/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s\n", i+1, event.Query, plain(event.Params), event.Outcome)
		}
	}
	return buf.String()
}

// checkExpectation compares one traced run with its case expectation and
// returns a message per mismatch.
func checkExpectation(event TraceEvent, exp Expectation) []string {
	var msgs []string

	switch {
	case exp.Outcome != "" && exp.Outcome != event.Outcome:
		msg := fmt.Sprintf("outcome: expected %q, got %q", exp.Outcome, event.Outcome)
		if event.Error != "" {
			msg += ": " + event.Error
		}
		msgs = append(msgs, msg)
	case exp.Outcome == "" && event.Error != "":
		msgs = append(msgs, "unexpected error: "+event.Error)
	}

	if exp.Error != "" && !strings.Contains(event.Error, exp.Error) {
		msgs = append(msgs, fmt.Sprintf("error: expected %q in %q", exp.Error, event.Error))
	}

	if exp.Count != nil && *exp.Count != event.Count {
		msgs = append(msgs, fmt.Sprintf("count: expected %d, got %d", *exp.Count, event.Count))
	}

	if exp.IDs != nil {
		want, err := plainAny(exp.IDs)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("ids: %v", err))
		} else {
			got := plain(ir.IRArray(event.IDs))
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				msgs = append(msgs, fmt.Sprintf("ids mismatch (-want +got):\n%s", diff))
			}
		}
	}

	if exp.Rows != nil {
		if msg := diffRows(exp.Rows, event.rows); msg != "" {
			msgs = append(msgs, msg)
		}
	}

	if exp.Errors != nil {
		if diff := cmp.Diff(exp.Errors, event.Errors, cmpopts.EquateEmpty()); diff != "" {
			msgs = append(msgs, fmt.Sprintf("errors mismatch (-want +got):\n%s", diff))
		}
	}

	if exp.Invoked != nil {
		if diff := cmp.Diff(exp.Invoked, event.Invoked, cmpopts.EquateEmpty()); diff != "" {
			msgs = append(msgs, fmt.Sprintf("invoked mismatch (-want +got):\n%s", diff))
		}
	}

	return msgs
}

// diffRows compares rows column-subset-wise: each actual row is projected
// onto the columns its expected row names.
func diffRows(want []map[string]any, got []ir.IRObject) string {
	if len(want) != len(got) {
		return fmt.Sprintf("rows: expected %d, got %d", len(want), len(got))
	}

	wantPlain := make([]any, len(want))
	gotPlain := make([]any, len(got))
	for i, row := range want {
		w, err := plainAny(row)
		if err != nil {
			return fmt.Sprintf("rows[%d]: %v", i, err)
		}
		wantPlain[i] = w

		projected := make(ir.IRObject, len(row))
		for col := range row {
			if v, ok := got[i][col]; ok {
				projected[col] = v
			}
		}
		gotPlain[i] = plain(projected)
	}

	if diff := cmp.Diff(wantPlain, gotPlain); diff != "" {
		return fmt.Sprintf("rows mismatch (-want +got):\n%s", diff)
	}
	return ""
}

// plain converts v to plain Go values with every number as float64, so
// YAML's 4 and SQLite's 4.0 compare equal.
func plain(v ir.IRValue) any {
	switch val := v.(type) {
	case ir.IRInt:
		return float64(val)
	case ir.IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = plain(elem)
		}
		return out
	case ir.IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = plain(elem)
		}
		return out
	default:
		return ir.ToNative(v)
	}
}

func plainAny(v any) (any, error) {
	irv, err := ir.FromAny(v)
	if err != nil {
		return nil, err
	}
	return plain(irv), nil
}

// assertRunContains checks that some run of the query recorded params
// containing the expected ones (subset match).
func assertRunContains(trace []TraceEvent, assertion Assertion) error {
	want, err := plainAny(assertion.Params)
	if err != nil {
		return fmt.Errorf("run_contains: %w", err)
	}
	wantParams, _ := want.(map[string]any)

	for _, event := range trace {
		if event.Query != assertion.Query {
			continue
		}
		got, _ := plain(event.Params).(map[string]any)
		if matchParams(got, wantParams) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertRunContains,
		Expected: fmt.Sprintf("run of %s with params %v", assertion.Query, wantParams),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// matchParams checks if actual contains all expected keys with equal
// values. Extra keys in actual are ignored.
func matchParams(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !cmp.Equal(got, want) {
			return false
		}
	}
	return true
}

// assertRunOrder checks that queries were first run in the given order.
// Runs don't need to be consecutive (intervening runs are allowed).
func assertRunOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if slices.Contains(assertion.Queries, event.Query) && positions[event.Query] == 0 {
			positions[event.Query] = i + 1 // 1-indexed for readability
		}
	}

	for _, q := range assertion.Queries {
		if positions[q] == 0 {
			return &AssertionError{
				Type:     AssertRunOrder,
				Expected: fmt.Sprintf("all queries run: %v", assertion.Queries),
				Actual:   fmt.Sprintf("missing query: %s", q),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Queries); i++ {
		prev, curr := assertion.Queries[i-1], assertion.Queries[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertRunOrder,
				Expected: fmt.Sprintf("queries in order: %v", assertion.Queries),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertRunCount checks that the query was run exactly Count times.
func assertRunCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Query == assertion.Query {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertRunCount,
			Expected: fmt.Sprintf("%d runs of %s", assertion.Count, assertion.Query),
			Actual:   fmt.Sprintf("%d runs", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it holds the expected values (subset semantics).
//
// Table and column names are validated as identifiers; values are bound
// as parameters.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if !queryir.IsIdentifier(assertion.Table) {
		return fmt.Errorf("final_state: invalid table name %q", assertion.Table)
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`SELECT * FROM "%s"`, assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.QueryRows(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	switch len(rows) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", len(rows)),
		}
	}

	actual := rows[0]
	for _, key := range slices.Sorted(maps.Keys(assertion.Expect)) {
		got, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("columns: %v", actual.SortedKeys()),
			}
		}
		want, err := plainAny(assertion.Expect[key])
		if err != nil {
			return fmt.Errorf("final_state: field %q: %w", key, err)
		}
		if diff := cmp.Diff(want, plain(got)); diff != "" {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, want),
				Actual:   fmt.Sprintf("field %q = %v", key, plain(got)),
			}
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are
// sorted for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := slices.Sorted(maps.Keys(where))
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !queryir.IsIdentifier(key) {
			return "", nil, fmt.Errorf("final_state: invalid column name %q in where clause", key)
		}
		clauses = append(clauses, fmt.Sprintf(`"%s" = ?`, key))
		args = append(args, where[key])
	}
	return strings.Join(clauses, " AND "), args, nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := slices.Sorted(maps.Keys(where))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The store provides database access for final_state assertions.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, st *store.Store) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRunContains:
			err = assertRunContains(result.Trace, assertion)
		case AssertRunOrder:
			err = assertRunOrder(result.Trace, assertion)
		case AssertRunCount:
			err = assertRunCount(result.Trace, assertion)
		case AssertFinalState:
			if st == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a database", i)
			} else {
				err = assertFinalState(ctx, st, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
