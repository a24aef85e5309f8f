package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/mapping"
	"github.com/roach88/sieve/internal/params"
	"github.com/roach88/sieve/internal/queryable"
	"github.com/roach88/sieve/internal/testutil"
)

func keys(ks ...params.Key) []params.Key { return ks }

func mustQuery(t *testing.T, def *mapping.Definition, raw any, base queryable.Queryable) *Query {
	t.Helper()
	q, err := New(def, raw, base, WithIDGenerator(testutil.NewFixedIDGenerator("q-test")))
	require.NoError(t, err)
	return q
}

func resultRecorder(t *testing.T, q *Query) *testutil.Recorder {
	t.Helper()
	r, err := q.Result(context.Background())
	require.NoError(t, err)
	rec, ok := r.(*testutil.Recorder)
	require.True(t, ok, "result is %T", r)
	return rec
}

func TestRequiredKeyPresentInvokesOperation(t *testing.T) {
	def := mapping.NewBuilder("dogs", "dogs").
		Map("named", keys("name"), mapping.Require("name")).
		MustBuild()
	source := testutil.NewRecorder("dogs", map[string]int{"named": 1})

	q := mustQuery(t, def, map[string]any{"name": "Rex"}, source)
	rec := resultRecorder(t, q)

	assert.Equal(t, []testutil.Call{{Op: "named", Args: []any{"Rex"}}}, rec.Chain())
	assert.True(t, q.Valid())
	assert.Equal(t, OutcomeResult, q.Outcome())
	assert.Equal(t, []string{"named"}, q.Invoked())
}

func TestRequiredKeyMissingCollapsesToNone(t *testing.T) {
	def := mapping.NewBuilder("dogs", "dogs").
		Map("named", keys("name"), mapping.Require("name")).
		MustBuild()
	source := testutil.NewRecorder("dogs", map[string]int{"named": 1})

	q := mustQuery(t, def, map[string]any{}, source)
	assert.Equal(t, []string{MessageRequired}, q.Errors().On("name"))

	rec := resultRecorder(t, q)
	assert.True(t, rec.IsNone())
	assert.Empty(t, source.Calls())
	assert.Equal(t, OutcomeEmpty, q.Outcome())

	rows, err := q.Rows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWhitelistedKeyPassedAsNil(t *testing.T) {
	def := mapping.NewBuilder("people", "people").
		Map("fullNameLike", keys("first", "last"), mapping.Require("last")).
		MustBuild()
	source := testutil.NewRecorder("people", map[string]int{"fullNameLike": 2})

	q := mustQuery(t, def, map[string]any{"last": "Snow"}, source)
	rec := resultRecorder(t, q)

	assert.Equal(t, []testutil.Call{{Op: "fullNameLike", Args: []any{nil, "Snow"}}}, rec.Chain())
}

func TestMappingWithoutRequiredKeysAlwaysInvokes(t *testing.T) {
	def := mapping.NewBuilder("people", "people").
		Map("search", keys("q", "limit")).
		MustBuild()
	source := testutil.NewRecorder("people", map[string]int{"search": 2})

	q := mustQuery(t, def, nil, source)
	rec := resultRecorder(t, q)

	assert.Equal(t, []testutil.Call{{Op: "search", Args: []any{nil, nil}}}, rec.Chain())
	assert.True(t, q.Valid())
}

func TestStrictPolicySkipsSilently(t *testing.T) {
	def := mapping.NewBuilder("people", "people").
		Policy(mapping.PolicyStrict).
		Map("search", keys("q", "limit")).
		MustBuild()
	source := testutil.NewRecorder("people", map[string]int{"search": 2})

	q := mustQuery(t, def, map[string]any{"q": "jon"}, source)
	rec := resultRecorder(t, q)

	assert.Empty(t, rec.Chain())
	assert.True(t, q.Valid())
	assert.False(t, rec.IsNone())
}

func TestEveryMissingRequiredKeyRecordsOneError(t *testing.T) {
	def := mapping.NewBuilder("posts", "posts").
		Map("between", keys("from", "to"), mapping.RequireAll()).
		MustBuild()
	source := testutil.NewRecorder("posts", map[string]int{"between": 2})

	q := mustQuery(t, def, map[string]any{"from": ""}, source)

	errs := q.Errors()
	assert.Equal(t, keys("from", "to"), errs.Keys())
	assert.Len(t, errs.On("from"), 1)
	assert.Len(t, errs.On("to"), 1)
	assert.Equal(t, []string{"from is required", "to is required"}, errs.FullMessages())
}

func TestDeclarationOrderIsFoldOrder(t *testing.T) {
	def := mapping.NewBuilder("posts", "posts").
		Map("a", keys("x")).
		Map("b", keys("y")).
		MustBuild()
	source := testutil.NewRecorder("posts", map[string]int{"a": 1, "b": 1})

	q := mustQuery(t, def, map[string]any{"x": "1", "y": "2"}, source)
	rec := resultRecorder(t, q)

	assert.Equal(t, []testutil.Call{
		{Op: "a", Args: []any{"1"}},
		{Op: "b", Args: []any{"2"}},
	}, rec.Chain())
}

func TestSkipAndContinueThenCollapse(t *testing.T) {
	def := mapping.NewBuilder("posts", "posts").
		Map("titled", keys("title"), mapping.RequireAll()).
		Map("by_author", keys("author")).
		MustBuild()
	source := testutil.NewRecorder("posts", map[string]int{"titled": 1, "by_author": 1})

	q := mustQuery(t, def, map[string]any{"author": "kevin"}, source)
	rec := resultRecorder(t, q)

	assert.Equal(t, 1, source.CallCount("by_author"), "later mappings still run")
	assert.Equal(t, 0, source.CallCount("titled"))
	assert.True(t, rec.IsNone(), "final result collapses to empty")
	assert.Equal(t, []string{"by_author"}, q.Invoked())

	steps := q.Steps()
	require.Len(t, steps, 2)
	assert.True(t, steps[0].Skipped)
	assert.Equal(t, keys("title"), steps[0].Missing)
	assert.False(t, steps[1].Skipped)
}

func TestResultIsComputedOnce(t *testing.T) {
	def := mapping.NewBuilder("dogs", "dogs").
		Map("named", keys("name")).
		MustBuild()
	source := testutil.NewRecorder("dogs", map[string]int{"named": 1})
	q := mustQuery(t, def, map[string]any{"name": "Rex"}, source)

	var wg sync.WaitGroup
	results := make([]queryable.Queryable, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := q.Result(context.Background())
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, source.CallCount("named"))
	for _, r := range results {
		assert.Same(t, results[0], r)
	}

	_, err := q.Count(context.Background())
	require.NoError(t, err)
	_, err = q.Rows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, source.CallCount("named"))
}

func TestZeroArityOperationCalledWithoutArgs(t *testing.T) {
	def := mapping.NewBuilder("posts", "posts").
		Map("published", keys("published")).
		MustBuild()
	source := testutil.NewRecorder("posts", map[string]int{"published": 0})

	q := mustQuery(t, def, map[string]any{"published": "false"}, source)
	rec := resultRecorder(t, q)

	assert.Equal(t, []testutil.Call{{Op: "published"}}, rec.Chain())
}

func TestVariadicOperationReceivesAllArgs(t *testing.T) {
	def := mapping.NewBuilder("posts", "posts").
		Map("any_of", keys("a", "b", "c")).
		MustBuild()
	source := testutil.NewRecorder("posts", map[string]int{"any_of": queryable.Variadic})

	q := mustQuery(t, def, map[string]any{"a": "1", "c": "3"}, source)
	rec := resultRecorder(t, q)

	assert.Equal(t, []testutil.Call{{Op: "any_of", Args: []any{"1", nil, "3"}}}, rec.Chain())
}

func TestArityMismatchIsFatal(t *testing.T) {
	def := mapping.NewBuilder("posts", "posts").
		Map("titled", keys("title", "subtitle")).
		MustBuild()
	source := testutil.NewRecorder("posts", map[string]int{"titled": 1})

	q := mustQuery(t, def, map[string]any{"title": "x"}, source)
	_, err := q.Result(context.Background())

	var arityErr *queryable.ArityError
	require.ErrorAs(t, err, &arityErr)
	assert.Equal(t, 1, arityErr.Want)
	assert.Equal(t, 2, arityErr.Got)
	assert.Equal(t, OutcomeError, q.Outcome())

	_, again := q.Result(context.Background())
	assert.Same(t, err, again)
}

func TestUndefinedOperationIsFatal(t *testing.T) {
	def := mapping.NewBuilder("posts", "posts").
		Map("missing", keys("x")).
		MustBuild()

	q := mustQuery(t, def, map[string]any{"x": "1"}, testutil.NewRecorder("posts", nil))
	_, err := q.Result(context.Background())
	assert.True(t, queryable.IsUndefinedOperation(err))
}

func TestLocalOperationTakesPriority(t *testing.T) {
	var got mapping.Call
	def := mapping.NewBuilder("posts", "posts").
		Map("titled", keys("title")).
		Operation("titled", 1, func(_ context.Context, call mapping.Call) (queryable.Queryable, error) {
			got = call
			return testutil.Apply(call.Base, "local_titled", call.Args...), nil
		}).
		MustBuild()
	source := testutil.NewRecorder("posts", map[string]int{"titled": 1})

	q := mustQuery(t, def, map[string]any{"title": "Go"}, source)
	rec := resultRecorder(t, q)

	assert.Equal(t, 0, source.CallCount("titled"))
	assert.Equal(t, []testutil.Call{{Op: "local_titled", Args: []any{"Go"}}}, rec.Chain())
	assert.Equal(t, []any{"Go"}, got.Args)
	assert.True(t, got.Params.Has("title"))
}

func TestLocalOperationErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	def := mapping.NewBuilder("posts", "posts").
		Map("titled", keys("title")).
		Operation("titled", 1, func(context.Context, mapping.Call) (queryable.Queryable, error) {
			return nil, boom
		}).
		MustBuild()

	q := mustQuery(t, def, map[string]any{"title": "Go"}, testutil.NewRecorder("posts", nil))
	_, err := q.Result(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `operation "titled"`)
}

func TestOverrideFeedsOperation(t *testing.T) {
	def := mapping.NewBuilder("people", "people").
		Map("named", keys("full_name"), mapping.RequireAll()).
		Override("full_name", func(p *params.Filtered) (any, error) {
			first, _ := p.String("first")
			last, ok := p.String("last")
			if !ok {
				return nil, errors.New("last name missing")
			}
			return first + " " + last, nil
		}).
		Permit("first", "last").
		MustBuild()
	source := testutil.NewRecorder("people", map[string]int{"named": 1})

	q := mustQuery(t, def, map[string]any{"first": "Jon", "last": "Snow"}, source)
	rec := resultRecorder(t, q)
	assert.Equal(t, []testutil.Call{{Op: "named", Args: []any{"Jon Snow"}}}, rec.Chain())

	q = mustQuery(t, def, map[string]any{"first": "Jon"}, source)
	assert.Equal(t, []string{MessageRequired}, q.Errors().On("full_name"))
}

func TestGetAccessor(t *testing.T) {
	def := mapping.NewBuilder("dogs", "dogs").
		Map("named", keys("name")).
		Map("aged", keys("age")).
		Permit("extra").
		MustBuild()

	q := mustQuery(t, def, map[string]any{"name": "Rex", "extra": "x"}, testutil.NewRecorder("dogs", nil))

	v, err := q.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "Rex", v)

	v, err = q.Get(params.Symbol("age"))
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = q.Get("extra")
	var undefined *UndefinedKeyError
	require.ErrorAs(t, err, &undefined)
	assert.Equal(t, "extra", undefined.Key)
	assert.Equal(t, keys("name", "age"), undefined.Valid)
	assert.EqualError(t, err, `undefined key "extra", valid keys are: name, age`)
}

func TestParamsAreFilteredAndScrubbed(t *testing.T) {
	def := mapping.NewBuilder("posts", "posts").
		Map("titled", keys("title")).
		Map("by_authors", keys("authors")).
		MustBuild()
	raw := map[string]any{
		"title":   map[string]any{"inner": []any{"", map[string]any{}, []any{}}},
		"authors": []any{"", "kevin"},
		"admin":   true,
	}

	q := mustQuery(t, def, raw, testutil.NewRecorder("posts", map[string]int{"titled": 1, "by_authors": 1}))
	assert.Equal(t, ir.IRObject{"authors": ir.IRArray{ir.IRString("kevin")}}, q.Params().Object())
	assert.NotEmpty(t, q.ParamsHash())
}

func TestFromResolverMissingSourceIsLazy(t *testing.T) {
	def := mapping.NewBuilder("cats", "cats").
		Map("named", keys("name")).
		MustBuild()

	q, err := FromResolver(def, map[string]any{"name": "Tom"}, queryable.Sources{})
	require.NoError(t, err, "construction must not touch the source")

	_, err = q.Result(context.Background())
	var missing *queryable.MissingSourceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "cats", missing.Source)
}

func TestFromResolverWrapsResolverFailures(t *testing.T) {
	def := mapping.NewBuilder("cats", "cats").
		Map("named", keys("name")).
		MustBuild()
	down := errors.New("database is down")

	q, err := FromResolver(def, nil, queryable.ResolverFunc(func(context.Context, string) (queryable.Queryable, error) {
		return nil, down
	}))
	require.NoError(t, err)

	_, err = q.Result(context.Background())
	assert.True(t, queryable.IsMissingSource(err))
	assert.ErrorIs(t, err, down)
}

func TestCancelledContextStopsFold(t *testing.T) {
	def := mapping.NewBuilder("dogs", "dogs").
		Map("named", keys("name")).
		MustBuild()
	source := testutil.NewRecorder("dogs", map[string]int{"named": 1})
	q := mustQuery(t, def, map[string]any{"name": "Rex"}, source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Result(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, source.Calls())
}

func TestValidate(t *testing.T) {
	def := mapping.NewBuilder("dogs", "dogs").
		Map("named", keys("name"), mapping.RequireAll()).
		MustBuild()

	q := mustQuery(t, def, nil, testutil.NewRecorder("dogs", nil))
	err := q.Validate()
	assert.True(t, IsValidation(err))
	assert.EqualError(t, err, "validation failed: name is required")

	q = mustQuery(t, def, map[string]any{"name": "Rex"}, testutil.NewRecorder("dogs", nil))
	assert.NoError(t, q.Validate())
}

func TestNewRejectsBadInput(t *testing.T) {
	def := mapping.NewBuilder("dogs", "dogs").Map("named", keys("name")).MustBuild()

	_, err := New(nil, nil, testutil.NewRecorder("dogs", nil))
	assert.Error(t, err)

	_, err = New(def, nil, nil)
	assert.Error(t, err)

	_, err = New(def, map[string]any{"name": make(chan int)}, testutil.NewRecorder("dogs", nil))
	assert.ErrorContains(t, err, `parameter "name"`)
}

func TestQueryIDs(t *testing.T) {
	def := mapping.NewBuilder("dogs", "dogs").Map("named", keys("name")).MustBuild()

	q, err := New(def, nil, testutil.NewRecorder("dogs", nil), WithID("fixed"))
	require.NoError(t, err)
	assert.Equal(t, "fixed", q.ID())

	q, err = New(def, nil, testutil.NewRecorder("dogs", nil))
	require.NoError(t, err)
	assert.Len(t, q.ID(), 36)
}

func TestMemorySourceEndToEnd(t *testing.T) {
	source := queryable.NewMemory("dogs", []ir.IRObject{
		{"name": ir.IRString("Rex"), "breed": ir.IRString("collie")},
		{"name": ir.IRString("Ace"), "breed": ir.IRString("pug")},
	}, map[string]queryable.MemoryOp{
		"named":  {Arity: 1, Filter: queryable.FieldEquals("name")},
		"breeds": {Arity: 1, Filter: queryable.FieldIn("breed")},
	})
	def := mapping.NewBuilder("dogs", "dogs").
		Map("breeds", keys("breeds")).
		Map("named", keys("name")).
		MustBuild()

	q := mustQuery(t, def, map[string]any{"breeds": []any{"pug", "collie"}, "name": "Ace"}, source)
	n, err := q.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
