package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/sieve/internal/config"
)

// RootOptions holds global flags for all commands. Once the root command
// has parsed its flags the fields hold the layered configuration: flags,
// SIEVE_* environment variables, sieve.yaml, then defaults.
type RootOptions struct {
	ConfigFile string
	Database   string
	Queries    string
	Policy     string
	Format     string // "json" | "text"
	Verbose    bool

	// Listen is the resolved serve address. Set only when configuration
	// was loaded through the root command.
	Listen string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sieve CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sieve",
		Short: "sieve - declarative parameter-to-query mapping",
		Long: `Turn loosely structured request parameters into scoped queries.

Query files declare which parameter keys feed which scopes of a source
table. sieve scrubs incoming parameters, checks required keys, and folds
every satisfied scope into one query. Each run is appended to a run log
that can be listed and replayed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (default ./sieve.yaml)")
	pf.StringVar(&opts.Database, "database", config.DefaultDatabase, "path to SQLite database")
	pf.StringVar(&opts.Queries, "queries", config.DefaultQueries, "query file or directory of query files")
	pf.StringVar(&opts.Policy, "policy", config.DefaultPolicy, "whitelist policy for queries that declare none (default|strict)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", config.DefaultFormat, "output format (json|text)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// load resolves configuration and copies it into the options.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	o.Database = cfg.Database
	o.Queries = cfg.Queries
	o.Policy = cfg.Policy
	o.Format = cfg.Format
	o.Verbose = cfg.Verbose
	o.Listen = cfg.Listen
	if cfg.File != "" {
		o.logger(cmd).Debug("configuration loaded", "file", cfg.File)
	}
	return nil
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) (*OutputFormatter, error) {
	if !isValidFormat(o.Format) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}, nil
}

// logger returns a text logger on the command's stderr, at debug level
// when verbose.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	w := cmd.ErrOrStderr()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
