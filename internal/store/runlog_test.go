package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sieve/internal/ir"
)

func testRun(id string, seq int64) Run {
	params := ir.IRObject{"author": ir.IRString("kevin"), "limit": ir.IRInt(10)}
	return Run{
		ID:          id,
		Seq:         seq,
		Definition:  "posts",
		Source:      "posts",
		Params:      params,
		ParamsHash:  ir.MustParamsHash(params),
		Errors:      map[string][]string{},
		Invoked:     []string{"by_author", "limit"},
		Outcome:     "result",
		RowCount:    3,
		Fingerprint: fmt.Sprintf("fp-%s", id),
	}
}

func TestWriteRun_ReadRunRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := testRun("run-1", 1)
	run.Errors = map[string][]string{"author": {"is required"}}
	run.Outcome = "empty"
	require.NoError(t, s.WriteRun(ctx, run))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := testRun("run-1", 1)
	require.NoError(t, s.WriteRun(ctx, run))

	dup := run
	dup.Outcome = "error"
	require.NoError(t, s.WriteRun(ctx, dup))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "result", got.Outcome, "first write wins")

	runs, err := s.ReadRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestWriteRun_NilParams(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := testRun("run-1", 1)
	run.Params = nil
	run.Errors = nil
	run.Invoked = nil
	require.NoError(t, s.WriteRun(ctx, run))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{}, got.Params)
	assert.Empty(t, got.Errors)
	assert.Empty(t, got.Invoked)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestReadRuns_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Written out of order on purpose.
	for _, r := range []Run{testRun("c", 3), testRun("a", 1), testRun("b", 2)} {
		require.NoError(t, s.WriteRun(ctx, r))
	}

	runs, err := s.ReadRuns(ctx, RunFilter{})
	require.NoError(t, err)

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestReadRuns_Filter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	other := testRun("x", 2)
	other.Definition = "comments"
	require.NoError(t, s.WriteRun(ctx, testRun("a", 1)))
	require.NoError(t, s.WriteRun(ctx, other))
	require.NoError(t, s.WriteRun(ctx, testRun("b", 3)))

	runs, err := s.ReadRuns(ctx, RunFilter{Definition: "posts"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	runs, err = s.ReadRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "a", runs[0].ID)
}

func TestReadRuns_Empty(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ReadRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestReadRunsByFingerprint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := testRun("a", 1)
	b := testRun("b", 2)
	b.Fingerprint = a.Fingerprint
	require.NoError(t, s.WriteRun(ctx, a))
	require.NoError(t, s.WriteRun(ctx, b))
	require.NoError(t, s.WriteRun(ctx, testRun("c", 3)))

	runs, err := s.ReadRunsByFingerprint(ctx, a.Fingerprint)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}

func TestGetLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.GetLastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, s.WriteRun(ctx, testRun("a", 4)))
	require.NoError(t, s.WriteRun(ctx, testRun("b", 9)))

	seq, err = s.GetLastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), seq)
}

func TestRun_ErrorKeys(t *testing.T) {
	r := Run{Errors: map[string][]string{"z": {"is required"}, "a": {"is required"}}}
	assert.Equal(t, []string{"a", "z"}, r.ErrorKeys())
}

func TestWriteRun_DriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewFromDB(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO runs")).
		WillReturnError(errors.New("database is locked"))

	err = s.WriteRun(context.Background(), testRun("a", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write run a")
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadRun_CorruptParams(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewFromDB(db)

	rows := sqlmock.NewRows([]string{
		"id", "seq", "definition", "source", "params", "params_hash",
		"errors", "invoked", "outcome", "row_count", "fingerprint", "error_message",
	}).AddRow("a", 1, "posts", "posts", "not json", "h", "{}", "[]", "result", 0, "f", "")
	mock.ExpectQuery("FROM runs WHERE id").WithArgs("a").WillReturnRows(rows)

	_, err = s.ReadRun(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal params")
}

func TestGetLastSeq_DriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewFromDB(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(seq) FROM runs")).
		WillReturnError(errors.New("disk I/O error"))

	_, err = s.GetLastSeq(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get last seq")
}
