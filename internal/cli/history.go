package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/sieve/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Query string
	Limit int
}

// HistoryResult holds the listed runs.
type HistoryResult struct {
	Runs  []store.Run `json:"runs"`
	Total int         `json:"total"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs from the run log in the order they were recorded.

Each run shows its logical seq, id, query, outcome, row count and the
operations it invoked. Use the id with replay to re-execute a run.

Examples:
  sieve history
  sieve history --query posts --limit 5
  sieve history --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Query, "query", "", "only runs of this query")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of runs (0 lists all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter, err := opts.formatter(cmd)
	if err != nil {
		return err
	}
	if opts.Limit < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--limit must not be negative", nil)
	}

	st, err := openRunLog(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ReadRuns(cmd.Context(), store.RunFilter{Definition: opts.Query, Limit: opts.Limit})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read run log", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(HistoryResult{Runs: runs, Total: len(runs)})
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tQUERY\tOUTCOME\tROWS\tINVOKED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			r.Seq, r.ID, r.Definition, r.Outcome, r.RowCount, strings.Join(r.Invoked, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, r := range runs {
		if r.Error != "" {
			formatter.VerboseLog("run %s failed: %s", r.ID, r.Error)
		}
	}
	return nil
}
