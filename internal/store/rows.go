package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/queryir"
)

// QueryRows runs a query and scans every row into an ir.IRObject keyed by
// column name. SQL NULL becomes ir.IRNull.
func (s *Store) QueryRows(ctx context.Context, query string, args ...any) ([]ir.IRObject, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := []ir.IRObject{}
	for rows.Next() {
		obj, err := scanObject(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// QueryInt runs a query returning a single integer, such as COUNT(*).
func (s *Store) QueryInt(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("query int: %w", err)
	}
	return n, nil
}

// TableExists reports whether a table or view named table exists.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type IN ('table', 'view') AND name = ?
	`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

// Exec runs a statement or script, typically fixture DDL.
func (s *Store) Exec(ctx context.Context, script string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, script, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Seed inserts rows into table in one transaction. Columns come from each
// row's keys in sorted order; table and column names must be identifiers.
func (s *Store) Seed(ctx context.Context, table string, rows []ir.IRObject) error {
	if !queryir.IsIdentifier(table) {
		return fmt.Errorf("seed: invalid table name %q", table)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed %s: begin: %w", table, err)
	}
	defer tx.Rollback()

	for i, row := range rows {
		cols := row.SortedKeys()
		quoted := make([]string, len(cols))
		marks := make([]string, len(cols))
		args := make([]any, len(cols))
		for j, col := range cols {
			if !queryir.IsIdentifier(col) {
				return fmt.Errorf("seed %s: row %d: invalid column name %q", table, i, col)
			}
			quoted[j] = `"` + col + `"`
			marks[j] = "?"
			arg, err := columnValue(row[col])
			if err != nil {
				return fmt.Errorf("seed %s: row %d: column %s: %w", table, i, col, err)
			}
			args[j] = arg
		}

		stmt := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`, table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("seed %s: row %d: %w", table, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed %s: commit: %w", table, err)
	}
	return nil
}

func scanObject(rows *sql.Rows, cols []string) (ir.IRObject, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	obj := make(ir.IRObject, len(cols))
	for i, col := range cols {
		v, err := fromColumn(values[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		obj[col] = v
	}
	return obj, nil
}

// fromColumn converts a value scanned by go-sqlite3 into an IR value.
func fromColumn(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case nil:
		return ir.IRNull{}, nil
	case int64:
		return ir.IRInt(val), nil
	case float64:
		return ir.IRFloat(val), nil
	case bool:
		return ir.IRBool(val), nil
	case string:
		return ir.IRString(val), nil
	case []byte:
		return ir.IRString(val), nil
	case time.Time:
		return ir.IRString(val.UTC().Format(time.RFC3339)), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", v)
	}
}

// columnValue converts an IR scalar for insertion. Arrays and objects are
// stored as canonical JSON text.
func columnValue(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRBool:
		return bool(val), nil
	default:
		b, err := ir.MarshalCanonical(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}
