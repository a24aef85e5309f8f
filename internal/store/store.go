package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite database holding both the tables queries run against
// and the run log. Uses WAL mode so history reads don't block a running
// query's log write.
type Store struct {
	db *sql.DB
}

// pragma is one connection setting applied on Open.
type pragma struct {
	name  string
	value string
}

// pragmas are applied in order on every Open.
var pragmas = []pragma{
	// WAL lets readers (history, replay) proceed while a run is written.
	// In-memory databases silently keep journal_mode=memory.
	{"journal_mode", "WAL"},
	// NORMAL is durable in WAL mode except on power loss, which only
	// costs the most recent run log entries.
	{"synchronous", "NORMAL"},
	// Wait up to 5s for a lock instead of failing with SQLITE_BUSY when
	// the CLI and a server share one database file.
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migration upgrades a database created by an older schema.sql. New
// databases already match the latest schema; migrations must therefore be
// safe to apply on top of it.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations are applied in version order, each in its own transaction.
// PRAGMA user_version records the last one applied.
var migrations = []migration{
	{
		version: 1,
		name:    "index runs by fingerprint",
		// Replay looks up earlier runs with identical inputs.
		stmt: `CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint)`,
	},
}

// schemaVersion is the user_version of a fully migrated database.
func schemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Open creates or opens a SQLite database at the given path. ":memory:"
// opens a private in-memory database.
//
// The database is configured with the settings in pragmas and migrated to
// schemaVersion. This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	// Creates the file if it doesn't exist
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// A single connection also keeps a ":memory:" database alive and
	// shared: every new connection would otherwise see an empty one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an already configured database without applying pragmas
// or schema. Used with sqlmock in tests.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection. Closing a Store without a
// database is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	for _, p := range pragmas {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// applySchema creates the run log if it doesn't exist, then migrates.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies every migration newer than user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

// applyMigration runs m and bumps user_version atomically, so a failed
// migration is retried on the next Open.
func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v%d: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.stmt); err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	// PRAGMA does not accept bound parameters
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("set user_version %d: %w", m.version, err)
	}
	return tx.Commit()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
