package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/store"
)

const postsSchema = `CREATE TABLE posts (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	score REAL
);`

var testQueriesDir = filepath.Join("testdata", "queries")

func post(id int, title, author string, score float64) ir.IRObject {
	return ir.IRObject{
		"id":     ir.IRInt(id),
		"title":  ir.IRString(title),
		"author": ir.IRString(author),
		"score":  ir.IRFloat(score),
	}
}

// setupDatabase creates a database file with a seeded posts table.
func setupDatabase(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sieve.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.Exec(ctx, postsSchema))
	require.NoError(t, st.Seed(ctx, "posts", []ir.IRObject{
		post(1, "Hello world", "kevin", 4.5),
		post(2, "Go generics", "ada", 3),
		post(3, "Hello again", "kevin", 2),
		post(4, "Databases", "sam", 5),
	}))
	return path
}

// insertPost adds a row to an existing database.
func insertPost(t *testing.T, dbPath string, row ir.IRObject) {
	t.Helper()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Seed(context.Background(), "posts", []ir.IRObject{row}))
}

func testOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	return &RootOptions{
		Database: setupDatabase(t),
		Queries:  testQueriesDir,
		Policy:   "default",
		Format:   format,
	}
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeResponse decodes a JSON CLI response with its data into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()

	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}
