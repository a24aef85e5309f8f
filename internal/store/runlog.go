package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/sieve/internal/ir"
)

// Run is one entry of the run log.
type Run struct {
	ID          string              `json:"id"`
	Seq         int64               `json:"seq"`
	Definition  string              `json:"definition"`
	Source      string              `json:"source"`
	Params      ir.IRObject         `json:"params"`
	ParamsHash  string              `json:"params_hash"`
	Errors      map[string][]string `json:"errors"`
	Invoked     []string            `json:"invoked"`
	Outcome     string              `json:"outcome"`
	RowCount    int                 `json:"row_count"`
	Fingerprint string              `json:"fingerprint"`
	Error       string              `json:"error,omitempty"`
}

// RunFilter narrows ReadRuns. Zero values mean no restriction.
type RunFilter struct {
	Definition string
	Limit      int
}

// ErrRunNotFound is returned by ReadRun when no run has the given ID.
var ErrRunNotFound = errors.New("run not found")

// WriteRun appends a run to the log. Writing the same ID twice is a no-op.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	params, err := marshalParams(run.Params)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}
	errs, err := marshalErrors(run.Errors)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}
	invoked, err := marshalInvoked(run.Invoked)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, seq, definition, source, params, params_hash,
			errors, invoked, outcome, row_count, fingerprint, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID, run.Seq, run.Definition, run.Source, params, run.ParamsHash,
		errs, invoked, run.Outcome, run.RowCount, run.Fingerprint, run.Error,
	)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, seq, definition, source, params, params_hash,
	errors, invoked, outcome, row_count, fingerprint, error_message`

// ReadRun returns the run with the given ID.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ReadRuns returns runs in log order.
// Results are ordered by seq ASC, id COLLATE BINARY ASC.
func (s *Store) ReadRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if filter.Definition != "" {
		query += ` WHERE definition = ?`
		args = append(args, filter.Definition)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("read runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	return runs, nil
}

// ReadRunsByFingerprint returns every run sharing a fingerprint, in log order.
func (s *Store) ReadRunsByFingerprint(ctx context.Context, fingerprint string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE fingerprint = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("read runs by fingerprint: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("read runs by fingerprint: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read runs by fingerprint: %w", err)
	}
	return runs, nil
}

// GetLastSeq returns the highest seq in the run log, or 0 when it is empty.
// Used to resume the logical clock after a restart.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM runs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var params, errs, invoked string
	err := sc.Scan(
		&run.ID, &run.Seq, &run.Definition, &run.Source, &params, &run.ParamsHash,
		&errs, &invoked, &run.Outcome, &run.RowCount, &run.Fingerprint, &run.Error,
	)
	if err != nil {
		return Run{}, err
	}

	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return Run{}, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return Run{}, fmt.Errorf("unmarshal errors: %w", err)
	}
	if err := json.Unmarshal([]byte(invoked), &run.Invoked); err != nil {
		return Run{}, fmt.Errorf("unmarshal invoked: %w", err)
	}
	return run, nil
}

func marshalParams(params ir.IRObject) (string, error) {
	if params == nil {
		params = ir.IRObject{}
	}
	b, err := ir.MarshalCanonical(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(b), nil
}

func marshalErrors(errs map[string][]string) (string, error) {
	obj := make(ir.IRObject, len(errs))
	for key, msgs := range errs {
		arr := make(ir.IRArray, len(msgs))
		for i, m := range msgs {
			arr[i] = ir.IRString(m)
		}
		obj[key] = arr
	}
	b, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal errors: %w", err)
	}
	return string(b), nil
}

func marshalInvoked(invoked []string) (string, error) {
	arr := make(ir.IRArray, len(invoked))
	for i, op := range invoked {
		arr[i] = ir.IRString(op)
	}
	b, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal invoked: %w", err)
	}
	return string(b), nil
}

// ErrorKeys returns the keys of a run's errors in sorted order.
func (r Run) ErrorKeys() []string {
	keys := make([]string, 0, len(r.Errors))
	for k := range r.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
