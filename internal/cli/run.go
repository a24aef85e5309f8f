package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/queryable"
	"github.com/roach88/sieve/internal/registry"
	"github.com/roach88/sieve/internal/service"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Params   string // JSON object of parameters
	Count    bool
	NoRecord bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <query> [key=value...]",
		Short: "Run a query with the given parameters",
		Long: `Run a registered query against the database and record it in the run log.

Parameters are given as key=value pairs, exactly like URL query
parameters: a key repeated, or spelled with a trailing "[]", becomes a
list. --params accepts a JSON object for typed or nested values; pairs
override keys of the same name.

Validation errors are not failures: the query collapses to an empty
result and the errors are reported next to it.

Exit codes:
  0 - Query ran (with or without validation errors)
  1 - Execution failed
  2 - Command error (unknown query, unresolved source, bad parameters)

Examples:
  sieve run posts q=hello author=kevin,ada per_page=20
  sieve run posts 'authors[]=kevin' 'authors[]=ada' --count
  sieve run posts --params '{"author": ["kevin"], "per_page": 5}' --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Params, "params", "", "parameters as a JSON object")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "count rows instead of listing them")
	cmd.Flags().BoolVar(&opts.NoRecord, "no-record", false, "do not append the run to the run log")

	return cmd
}

func runQuery(opts *RunOptions, name string, pairs []string, cmd *cobra.Command) error {
	formatter, err := opts.formatter(cmd)
	if err != nil {
		return err
	}

	raw, err := parseRunParams(opts.Params, pairs)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidParams, "invalid parameters", err)
	}

	ctx := cmd.Context()
	logger := opts.logger(cmd)
	ws, err := openWorkspace(ctx, opts.RootOptions, formatter, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ws.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	resp, err := ws.service.Run(ctx, name, raw, service.RunOptions{
		CountOnly: opts.Count,
		NoRecord:  opts.NoRecord,
	})
	if err != nil {
		return outputRunError(formatter, name, resp, err)
	}

	return outputRunResult(formatter, resp, opts.Count)
}

// parseRunParams merges a JSON object with key=value pairs into one raw
// payload. Pairs are decoded the way URL query parameters are.
func parseRunParams(jsonParams string, pairs []string) (map[string]any, error) {
	raw := make(map[string]any)
	if jsonParams != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(jsonParams)))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("--params must be a JSON object: %w", err)
		}
	}

	values := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%q: expected key=value", pair)
		}
		values.Add(key, value)
	}
	for k, v := range ir.FromValues(values) {
		raw[k] = v
	}
	return raw, nil
}

// outputRunError maps a failed run to an exit code. Unknown queries and
// unresolved sources are command errors; anything else failed during
// execution.
func outputRunError(formatter *OutputFormatter, name string, resp *service.Response, err error) error {
	var noDef *registry.NoDefinitionError
	switch {
	case errors.As(err, &noDef):
		return formatter.Fail(ExitCommandError, ErrCodeNoQuery, fmt.Sprintf("no query named %q", name), nil)
	case queryable.IsMissingSource(err):
		return formatter.Fail(ExitCommandError, ErrCodeMissingSource, "query source unavailable", err)
	}

	var details any
	if resp != nil {
		details = resp
	}
	_ = formatter.Error(ErrCodeExecFailed, fmt.Sprintf("query %s failed: %v", name, err), details)
	return WrapExitError(ExitFailure, fmt.Sprintf("%s: query %s failed", ErrCodeExecFailed, name), err)
}

// outputRunResult prints a completed run.
func outputRunResult(formatter *OutputFormatter, resp *service.Response, countOnly bool) error {
	if formatter.Format == "json" {
		return formatter.Success(resp)
	}

	styles := formatter.Styles()
	if countOnly {
		fmt.Fprintf(formatter.Writer, "count: %d\n", resp.Count)
	} else if err := formatter.WriteRows(resp.Rows); err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		fmt.Fprintln(formatter.Writer, styles.Fail.Render("✗ Validation errors (empty result)"))
		formatter.WriteErrors(resp.Errors)
	}

	summary := fmt.Sprintf("%d row(s), outcome %s", resp.Count, resp.Outcome)
	if len(resp.Invoked) > 0 {
		summary += ", invoked " + strings.Join(resp.Invoked, ", ")
	}
	if resp.Seq > 0 {
		summary += fmt.Sprintf(", run %s (seq %d)", resp.ID, resp.Seq)
	}
	fmt.Fprintln(formatter.Writer, styles.Muted.Render(summary))
	formatter.VerboseLog("params %s (hash %s)", canonicalParams(resp.Params), resp.ParamsHash)
	return nil
}

func canonicalParams(params ir.IRObject) string {
	data, err := ir.MarshalCanonical(params)
	if err != nil {
		return err.Error()
	}
	return string(data)
}
