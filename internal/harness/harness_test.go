package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sieve/internal/ir"
)

const postsSchema = `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT NOT NULL, author TEXT NOT NULL, score REAL);`

func postsScenario(cases ...Case) *Scenario {
	return &Scenario{
		Name:        "inline",
		Description: "Inline scenario",
		Queries:     []string{"testdata/queries/posts.cue"},
		Schema:      postsSchema,
		Fixtures: map[string][]map[string]any{
			"posts": {
				{"id": 1, "title": "Hello", "author": "kevin", "score": 1.5},
				{"id": 2, "title": "World", "author": "ada", "score": 2},
			},
		},
		Cases: cases,
	}
}

func intp(n int) *int { return &n }

func TestRun_PostsSearchGolden(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/posts_search.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Len(t, result.Trace, 5)
}

func TestRun_ExecutionErrorIsTraced(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/comments_missing.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	failed := result.Trace[0]
	assert.Equal(t, "error", failed.Outcome)
	assert.Equal(t, "comments_missing-1", failed.RunID)
	assert.Equal(t, int64(1), failed.Seq)
	assert.Contains(t, failed.Error, `"comments"`)
	assert.Equal(t, int64(2), result.Trace[1].Seq)
}

func TestRun_ReportsMismatches(t *testing.T) {
	result, err := Run(context.Background(), postsScenario(
		Case{
			Name:   "wrong count and ids",
			Query:  "posts",
			Params: map[string]any{"author": "kevin"},
			Expect: Expectation{Count: intp(2), IDs: []any{2}},
		},
		Case{
			Name:   "wrong invoked",
			Query:  "posts",
			Expect: Expectation{Invoked: []string{"search"}},
		},
		Case{
			Name:   "unexpected failure",
			Query:  "nope",
			Expect: Expectation{},
		},
	))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "case 0 (wrong count and ids): count: expected 2, got 1")
	assert.Contains(t, result.Errors[1], "ids mismatch")
	assert.Contains(t, result.Errors[2], "invoked mismatch")
	assert.Contains(t, result.Errors[3], `unexpected error: no query defined for "nope"`)

	// Unknown queries are never recorded, so they carry no run id.
	assert.Empty(t, result.Trace[2].RunID)
}

func TestRun_RowsCompareBySubsetAndNumericValue(t *testing.T) {
	result, err := Run(context.Background(), postsScenario(Case{
		Name:  "rows",
		Query: "posts",
		Expect: Expectation{Rows: []map[string]any{
			{"id": 1, "score": 1.5},
			{"id": 2.0, "score": 2, "author": "ada"},
		}},
	}))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []ir.IRValue{ir.IRInt(1), ir.IRInt(2)}, result.Trace[0].IDs)
}

func TestRun_AssertionFailuresFailTheResult(t *testing.T) {
	scenario := postsScenario(Case{Name: "all", Query: "posts"})
	scenario.Assertions = []Assertion{
		{Type: AssertRunCount, Query: "posts", Count: 2},
		{Type: AssertFinalState, Table: "runs", Where: map[string]any{"id": "inline-1"}, Expect: map[string]any{"row_count": 2}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: run_count")
}

func TestRun_ScenarioPolicyAppliesToUndeclaredQueries(t *testing.T) {
	scenario := postsScenario(Case{
		Name:   "strict skips mapping without its key",
		Query:  "posts",
		Params: map[string]any{"q": "hello"},
		Expect: Expectation{Invoked: []string{"search"}, IDs: []any{1}},
	})
	scenario.Policy = "strict"

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("bad schema", func(t *testing.T) {
		scenario := postsScenario(Case{Name: "x", Query: "posts"})
		scenario.Schema = "CREATE TABLE"
		_, err := Run(context.Background(), scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to set up database")
	})

	t.Run("bad fixture table", func(t *testing.T) {
		scenario := postsScenario(Case{Name: "x", Query: "posts"})
		scenario.Fixtures["bad name"] = []map[string]any{{"id": 1}}
		_, err := Run(context.Background(), scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("missing query file", func(t *testing.T) {
		scenario := postsScenario(Case{Name: "x", Query: "posts"})
		scenario.Queries = []string{"testdata/queries/nope.cue"}
		_, err := Run(context.Background(), scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load queries")
	})
}

func TestRunAll(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "comments_missing", scenarios[0].Name)
	assert.Equal(t, "posts_search", scenarios[1].Name)

	results, err := RunAll(context.Background(), scenarios, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	sum := Summarize(scenarios, results)
	assert.Equal(t, Summary{Total: 2, Passed: 2}, sum)
}

func TestRunAll_SetupErrorStops(t *testing.T) {
	bad := postsScenario(Case{Name: "x", Query: "posts"})
	bad.Name = "bad"
	bad.Schema = "nonsense"

	_, err := RunAll(context.Background(), []*Scenario{postsScenario(Case{Name: "x", Query: "posts"}), bad}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario bad")
}

func TestSummarize(t *testing.T) {
	scenarios := []*Scenario{{Name: "a"}, {Name: "b"}}
	failed := NewResult()
	failed.AddError("boom")

	sum := Summarize(scenarios, []*Result{NewResult(), failed})
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, []Failure{{Scenario: "b", Errors: []string{"boom"}}}, sum.Failures)
}
