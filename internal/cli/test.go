package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/sieve/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update   bool   // regenerate golden files
	Filter   string // scenario filter (glob pattern on the scenario name)
	Parallel int    // scenarios run concurrently
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "missing"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>",
		Short: "Run conformance scenarios",
		Long: `Run YAML scenarios against an in-memory SQLite database.

Each scenario creates its schema, seeds fixtures, loads its query files,
runs its cases and checks their expectations and assertions. When a
golden file exists at golden/<scenario>.golden next to the scenarios,
the recorded trace must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, malformed scenarios, etc.)

Examples:
  sieve test ./scenarios
  sieve test ./scenarios --filter "posts_*"
  sieve test ./scenarios --update
  sieve test ./scenarios --parallel 4 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "number of scenarios to run concurrently")

	return cmd
}

func runTests(opts *TestOptions, path string, cmd *cobra.Command) error {
	formatter, err := opts.formatter(cmd)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenarios not found: %s", path), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to access scenarios", err)
	}
	goldenDir := filepath.Join(path, "golden")
	if !info.IsDir() {
		goldenDir = filepath.Join(filepath.Dir(path), "golden")
	}

	scenarios, err := harness.LoadScenarios(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load scenarios", err)
	}
	scenarios, err = filterScenarios(scenarios, opts.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid filter pattern", err)
	}

	if len(scenarios) == 0 {
		if formatter.Format == "json" {
			return outputTestJSON(formatter, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	results := runScenarios(cmd.Context(), scenarios, opts.Parallel, goldenDir, opts.Update)

	result := TestResult{Scenarios: results, Total: len(results)}
	for _, r := range results {
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

// filterScenarios keeps scenarios whose name matches the glob pattern.
func filterScenarios(scenarios []*harness.Scenario, pattern string) ([]*harness.Scenario, error) {
	if pattern == "" {
		return scenarios, nil
	}
	var kept []*harness.Scenario
	for _, s := range scenarios {
		matched, err := filepath.Match(pattern, s.Name)
		if err != nil {
			return nil, err
		}
		if matched {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

// runScenarios runs every scenario with at most limit in flight. Results
// are in scenario order; a scenario that cannot execute fails on its own.
func runScenarios(ctx context.Context, scenarios []*harness.Scenario, limit int, goldenDir string, update bool) []ScenarioResult {
	results := make([]ScenarioResult, len(scenarios))

	var eg errgroup.Group
	if limit > 0 {
		eg.SetLimit(limit)
	}
	for i, s := range scenarios {
		eg.Go(func() error {
			results[i] = runScenario(ctx, s, goldenDir, update)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// runScenario executes a single scenario and checks its golden file.
func runScenario(ctx context.Context, scenario *harness.Scenario, goldenDir string, update bool) ScenarioResult {
	res := ScenarioResult{Name: scenario.Name}

	result, err := harness.Run(ctx, scenario)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}
	res.Errors = result.Errors

	goldenPath := filepath.Join(goldenDir, scenario.Name+".golden")
	snapshot, err := harness.MarshalSnapshot(scenario.Name, result)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("failed to marshal trace: %v", err))
		return res
	}

	if update {
		if err := writeGolden(goldenPath, snapshot); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return res
		}
		res.Golden = "updated"
		res.Pass = result.Pass
		return res
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		// No golden file - assertion-based validation only
		res.Golden = "missing"
	case err != nil:
		res.Errors = append(res.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		return res
	case !bytes.Equal(bytes.TrimSpace(golden), snapshot):
		res.Errors = append(res.Errors, "trace does not match golden file (run with --update to regenerate)")
		return res
	default:
		res.Golden = "match"
	}

	res.Pass = result.Pass
	return res
}

// writeGolden writes the trace snapshot, creating the golden directory.
func writeGolden(path string, snapshot []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, snapshot, 0644)
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}
	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	if err := encodeIndented(formatter.Writer, response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer
	styles := formatter.Styles()

	for _, r := range result.Scenarios {
		if r.Pass {
			line := "✓ " + r.Name
			if r.Golden == "updated" {
				line += " (golden updated)"
			}
			fmt.Fprintln(w, styles.Pass.Render(line))
			continue
		}
		fmt.Fprintln(w, styles.Fail.Render("✗ "+r.Name))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, styles.Pass.Render("✓ All scenarios passed"))
	return nil
}
