package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("database", "", "")
	fs.String("queries", "", "")
	fs.String("format", "", "")
	fs.Bool("verbose", false, "")
	fs.String("listen", "", "")
	return fs
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "sieve.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom("", t.TempDir(), nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, DefaultQueries, cfg.Queries)
	assert.Equal(t, DefaultPolicy, cfg.Policy)
	assert.Equal(t, DefaultFormat, cfg.Format)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.False(t, cfg.Verbose)
	assert.Empty(t, cfg.File)
}

func TestLoad_FileInDirectory(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "database: blog.db\npolicy: strict\n")

	cfg, err := LoadFrom("", dir, nil)
	require.NoError(t, err)

	assert.Equal(t, "blog.db", cfg.Database)
	assert.Equal(t, "strict", cfg.Policy)
	assert.Equal(t, DefaultQueries, cfg.Queries)
	assert.Equal(t, path, cfg.File)
}

func TestLoad_ExplicitFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "format: json\n")

	cfg, err := LoadFrom(path, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Format)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "database: file.db\nqueries: file-queries\nlisten: \":9000\"\n")
	t.Setenv("SIEVE_DATABASE", "env.db")
	t.Setenv("SIEVE_QUERIES", "env-queries")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--database", "flag.db", "--verbose"}))

	cfg, err := LoadFrom("", dir, flags)
	require.NoError(t, err)

	assert.Equal(t, "flag.db", cfg.Database, "flag beats env")
	assert.Equal(t, "env-queries", cfg.Queries, "env beats file")
	assert.Equal(t, ":9000", cfg.Listen, "file beats default")
	assert.True(t, cfg.Verbose)
}

func TestLoad_UnchangedFlagsDoNotOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "format: json\n")

	flags := testFlags()
	require.NoError(t, flags.Parse(nil))

	cfg, err := LoadFrom("", dir, flags)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Format)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"policy", "policy: lenient\n", "unknown policy"},
		{"format", "format: xml\n", "must be text or json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.body)

			_, err := LoadFrom("", dir, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
