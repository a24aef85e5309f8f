package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sieve/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled queries in declaration order.
type CompilationResult struct {
	Queries []*compiler.QuerySpec `json:"queries"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	QueryCount   int
	SourceCount  int
	MappingCount int
	ScopeCount   int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [path]",
		Short: "Compile query files to normalized JSON",
		Long: `Compile CUE and YAML query files into one normalized JSON document.

Queries are validated exactly as validate does. The output lists every
query with its source, mappings, scopes and parsers resolved, which is
handy for reviewing what a directory of query files declares.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Queries
			if len(args) == 1 {
				path = args[0]
			}
			return runCompile(opts, path, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter, err := opts.formatter(cmd)
	if err != nil {
		return err
	}

	specs, err := loadQuerySpecs(path, "")
	if err != nil {
		return outputCompileError(formatter, loadErrorCode(err), err.Error())
	}

	for _, spec := range specs {
		formatter.VerboseLog("Compiling query: %s", spec.Name)
	}

	if errs := validateSpecs(specs); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	// Sources default to the query name; write them out resolved.
	for _, spec := range specs {
		spec.Source = spec.SourceName()
		spec.Table = spec.TableName()
	}

	result := &CompilationResult{Queries: specs}
	stats := calculateStats(result)

	if opts.Output != "" {
		if err := writeResultToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// calculateStats computes summary statistics from compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{QueryCount: len(result.Queries)}
	sources := make(map[string]bool)
	for _, q := range result.Queries {
		sources[q.SourceName()] = true
		stats.MappingCount += len(q.Map)
		stats.ScopeCount += len(q.Scopes)
	}
	stats.SourceCount = len(sources)
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, formatter.Styles().Pass.Render(
		fmt.Sprintf("✓ Compiled %d query(s) over %d source(s)", stats.QueryCount, stats.SourceCount)))
	fmt.Fprintln(formatter.Writer)

	fmt.Fprintln(formatter.Writer, "Queries:")
	for _, q := range result.Queries {
		policy := q.Policy
		if policy == "" {
			policy = "default"
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s, %d mapping(s), %d scope(s), %s policy\n",
			q.Name, q.SourceName(), len(q.Map), len(q.Scopes), policy)
	}
	fmt.Fprintln(formatter.Writer)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote compiled queries to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// writeResultToFile writes the compilation result as indented JSON.
func writeResultToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling queries: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
