package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sieve/internal/service"
	"github.com/roach88/sieve/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Query string // replay only runs of this query
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID       string   `json:"run_id"`
	Seq         int64    `json:"seq"`
	Query       string   `json:"query"`
	Outcome     string   `json:"outcome"`
	RowCount    int      `json:"row_count"`
	Match       bool     `json:"match"`
	Differences []string `json:"differences,omitempty"`
	Error       string   `json:"error,omitempty"` // replay execution error
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs      []ReplayRunResult `json:"runs"`
	TotalRuns int               `json:"total_runs"`
	AllMatch  bool              `json:"all_match"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Re-execute recorded runs and compare the outcome",
		Long: `Re-execute recorded runs against the current queries and database.

Each run is executed again with its recorded parameters. The replay
matches when it produces the same parameter hash, invoked operations,
fingerprint, outcome and row count. Replays are not recorded.

Without a run id every recorded run is replayed in log order.

Exit codes:
  0 - All replays match
  1 - At least one replay diverged
  2 - Command error (run not found, database not found, etc.)

Examples:
  sieve replay 01938f2e-7c1a-7d3e-9b1f-2f6f3b2c1a00
  sieve replay --query posts
  sieve replay --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runReplay(opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Query, "query", "", "replay only runs of this query")

	return cmd
}

func runReplay(opts *ReplayOptions, id string, cmd *cobra.Command) error {
	formatter, err := opts.formatter(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := opts.logger(cmd)
	ws, err := openWorkspace(ctx, opts.RootOptions, formatter, logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	var ids []string
	if id != "" {
		ids = []string{id}
	} else {
		runs, err := ws.service.History(ctx, store.RunFilter{Definition: opts.Query})
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read run log", err)
		}
		for _, r := range runs {
			ids = append(ids, r.ID)
		}
	}

	result := ReplayResult{
		Runs:      make([]ReplayRunResult, 0, len(ids)),
		TotalRuns: len(ids),
		AllMatch:  true,
	}
	for _, runID := range ids {
		res, err := ws.service.Replay(ctx, runID)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				return formatter.Fail(ExitCommandError, ErrCodeRunNotFound, fmt.Sprintf("no run with id %q", runID), nil)
			}
			return formatter.Fail(ExitCommandError, ErrCodeExecFailed, fmt.Sprintf("failed to replay run %s", runID), err)
		}
		result.Runs = append(result.Runs, replayRunResult(res))
		if !res.Match {
			result.AllMatch = false
		}
	}

	if formatter.Format == "json" {
		status := "ok"
		if !result.AllMatch {
			status = "error"
		}
		if err := formatter.Respond(status, result); err != nil {
			return err
		}
	} else {
		outputReplayText(formatter, result)
	}

	if !result.AllMatch {
		return NewExitError(ExitFailure, "replay diverged from the recorded run log")
	}
	return nil
}

func replayRunResult(res *service.ReplayResult) ReplayRunResult {
	return ReplayRunResult{
		RunID:       res.Original.ID,
		Seq:         res.Original.Seq,
		Query:       res.Original.Definition,
		Outcome:     res.Original.Outcome,
		RowCount:    res.Original.RowCount,
		Match:       res.Match,
		Differences: res.Differences,
		Error:       res.Error,
	}
}

// outputReplayText outputs the replay result as human-readable text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) {
	w := formatter.Writer
	styles := formatter.Styles()

	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	for _, r := range result.Runs {
		if r.Match {
			fmt.Fprintln(w, styles.Pass.Render(fmt.Sprintf("✓ %s", r.RunID)))
			formatter.VerboseLog("  %s seq %d: %s, %d row(s)", r.Query, r.Seq, r.Outcome, r.RowCount)
			continue
		}
		fmt.Fprintln(w, styles.Fail.Render(fmt.Sprintf("✗ %s", r.RunID)))
		fmt.Fprintf(w, "  %s seq %d diverged: %s\n", r.Query, r.Seq, strings.Join(r.Differences, ", "))
		if r.Error != "" {
			fmt.Fprintf(w, "  replay error: %s\n", r.Error)
		}
	}

	fmt.Fprintln(w)
	matched := 0
	for _, r := range result.Runs {
		if r.Match {
			matched++
		}
	}
	fmt.Fprintf(w, "Replay Summary: %d matched, %d diverged, %d total\n",
		matched, result.TotalRuns-matched, result.TotalRuns)
}
