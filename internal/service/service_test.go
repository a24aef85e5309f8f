package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sieve/internal/engine"
	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/mapping"
	"github.com/roach88/sieve/internal/params"
	"github.com/roach88/sieve/internal/queryable"
	"github.com/roach88/sieve/internal/registry"
	"github.com/roach88/sieve/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func postsSource(authors ...string) *queryable.Memory {
	rows := make([]ir.IRObject, len(authors))
	for i, a := range authors {
		rows[i] = ir.IRObject{"id": ir.IRInt(int64(i + 1)), "author": ir.IRString(a)}
	}
	return queryable.NewMemory("posts", rows, map[string]queryable.MemoryOp{
		"by_author": {Arity: 1, Filter: queryable.FieldEquals("author")},
	})
}

type fixture struct {
	svc     *Service
	store   *store.Store
	sources queryable.Sources
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()

	sources := queryable.Sources{"posts": postsSource("kevin", "ada", "kevin")}
	reg := registry.New(sources)
	require.NoError(t, reg.Register(
		mapping.NewBuilder("posts", "posts").
			Map("by_author", params.Keys("author"), mapping.Require("author")).
			MustBuild(),
	))
	require.NoError(t, reg.Register(
		mapping.NewBuilder("comments", "comments").
			Map("by_author", params.Keys("author")).
			MustBuild(),
	))

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	svc := New(reg,
		WithRunLog(s),
		WithClock(engine.NewClockAt(10)),
		WithIDGenerator(engine.NewFixedGenerator(ids...)),
		WithLogger(quiet),
	)
	return &fixture{svc: svc, store: s, sources: sources}
}

func TestRun_RecordsResult(t *testing.T) {
	f := newFixture(t, "run-1")
	ctx := context.Background()

	resp, err := f.svc.Run(ctx, "posts", map[string]any{"author": "kevin", "junk": "x"}, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, "run-1", resp.ID)
	assert.Equal(t, int64(11), resp.Seq)
	assert.Equal(t, engine.OutcomeResult, resp.Outcome)
	assert.Equal(t, []string{"by_author"}, resp.Invoked)
	assert.Equal(t, ir.IRObject{"author": ir.IRString("kevin")}, resp.Params)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, ir.IRInt(1), resp.Rows[0]["id"])
	assert.Equal(t, ir.IRInt(3), resp.Rows[1]["id"])

	run, err := f.store.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), run.Seq)
	assert.Equal(t, "posts", run.Definition)
	assert.Equal(t, "posts", run.Source)
	assert.Equal(t, "result", run.Outcome)
	assert.Equal(t, 2, run.RowCount)
	assert.Equal(t, resp.Fingerprint, run.Fingerprint)
	assert.Equal(t, resp.ParamsHash, run.ParamsHash)
	assert.Empty(t, run.Error)
}

func TestRun_ValidationErrorsCollapseToEmpty(t *testing.T) {
	f := newFixture(t, "run-1")
	ctx := context.Background()

	resp, err := f.svc.Run(ctx, "posts", map[string]any{"author": "   "}, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeEmpty, resp.Outcome)
	assert.Equal(t, map[string][]string{"author": {"is required"}}, resp.Errors)
	assert.Empty(t, resp.Rows)
	assert.Equal(t, 0, resp.Count)
	assert.Equal(t, []string{}, resp.Invoked)

	run, err := f.store.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "empty", run.Outcome)
	assert.Equal(t, []string{"author"}, run.ErrorKeys())
}

func TestRun_CountOnly(t *testing.T) {
	f := newFixture(t, "run-1")

	resp, err := f.svc.Run(context.Background(), "posts", map[string]any{"author": "ada"}, RunOptions{CountOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)
	assert.Nil(t, resp.Rows)
}

func TestRun_UnknownDefinition(t *testing.T) {
	f := newFixture(t, "run-1")
	ctx := context.Background()

	_, err := f.svc.Run(ctx, "missing", nil, RunOptions{})
	var noDef *registry.NoDefinitionError
	require.ErrorAs(t, err, &noDef)

	runs, err := f.svc.History(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRun_UnsupportedPayload(t *testing.T) {
	f := newFixture(t, "run-1")

	_, err := f.svc.Run(context.Background(), "posts", 42, RunOptions{})
	require.Error(t, err)
}

func TestRun_MissingSourceIsRecorded(t *testing.T) {
	f := newFixture(t, "run-1")
	ctx := context.Background()

	resp, err := f.svc.Run(ctx, "comments", map[string]any{"author": "kevin"}, RunOptions{})
	require.Error(t, err)
	assert.True(t, queryable.IsMissingSource(err))
	require.NotNil(t, resp)
	assert.Equal(t, engine.OutcomeError, resp.Outcome)
	assert.Equal(t, int64(11), resp.Seq)

	run, err := f.store.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "error", run.Outcome)
	assert.Contains(t, run.Error, `"comments"`)
}

func TestRun_NoRecord(t *testing.T) {
	f := newFixture(t, "run-1")
	ctx := context.Background()

	resp, err := f.svc.Run(ctx, "posts", map[string]any{"author": "kevin"}, RunOptions{NoRecord: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.Seq)

	runs, err := f.svc.History(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRun_SameInputsSameFingerprint(t *testing.T) {
	f := newFixture(t, "run-1", "run-2")
	ctx := context.Background()

	a, err := f.svc.Run(ctx, "posts", map[string]any{"author": "kevin"}, RunOptions{})
	require.NoError(t, err)
	b, err := f.svc.Run(ctx, "posts", map[params.Symbol]any{"author": " kevin "}, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Equal(t, int64(11), a.Seq)
	assert.Equal(t, int64(12), b.Seq)

	matches, err := f.store.ReadRunsByFingerprint(ctx, a.Fingerprint)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

type failingLog struct{}

func (failingLog) WriteRun(context.Context, store.Run) error {
	return errors.New("disk full")
}

func (failingLog) ReadRun(context.Context, string) (store.Run, error) {
	return store.Run{}, store.ErrRunNotFound
}

func (failingLog) ReadRuns(context.Context, store.RunFilter) ([]store.Run, error) {
	return nil, nil
}

func TestRun_RunLogFailure(t *testing.T) {
	sources := queryable.Sources{"posts": postsSource("kevin")}
	reg := registry.New(sources)
	require.NoError(t, reg.Register(
		mapping.NewBuilder("posts", "posts").Map("by_author", params.Keys("author")).MustBuild(),
	))
	svc := New(reg, WithRunLog(failingLog{}), WithLogger(quiet))

	_, err := svc.Run(context.Background(), "posts", nil, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestHistory_RequiresRunLog(t *testing.T) {
	svc := New(registry.New(queryable.Sources{}), WithLogger(quiet))

	_, err := svc.History(context.Background(), store.RunFilter{})
	require.Error(t, err)

	_, err = svc.Replay(context.Background(), "run-1")
	require.Error(t, err)
}

func TestHistory_FiltersByDefinition(t *testing.T) {
	f := newFixture(t, "run-1", "run-2", "run-3")
	ctx := context.Background()

	_, err := f.svc.Run(ctx, "posts", map[string]any{"author": "kevin"}, RunOptions{})
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, "comments", nil, RunOptions{})
	require.Error(t, err)
	_, err = f.svc.Run(ctx, "posts", map[string]any{"author": "ada"}, RunOptions{})
	require.NoError(t, err)

	runs, err := f.svc.History(ctx, store.RunFilter{Definition: "posts"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "run-3", runs[1].ID)
}

func TestLookup(t *testing.T) {
	f := newFixture(t, "run-1")
	ctx := context.Background()

	_, err := f.svc.Run(ctx, "posts", map[string]any{"author": "ada"}, RunOptions{})
	require.NoError(t, err)

	run, err := f.svc.Lookup(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.RowCount)

	_, err = f.svc.Lookup(ctx, "run-2")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}
