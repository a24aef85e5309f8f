package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/sieve/internal/compiler"
	"github.com/roach88/sieve/internal/mapping"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Queries int                        `json:"queries"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate query files without touching the database",
		Long: `Validate CUE and YAML query files.

Parses every query file, checks identifiers, scope kinds and arities,
parsers and policies, and builds each mapping definition. Queries naming
the same source must agree on its table, columns and scopes.

The path defaults to the configured queries location.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Queries
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter, err := opts.formatter(cmd)
	if err != nil {
		return err
	}

	specs, err := loadQuerySpecs(path, "")
	if err != nil {
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) {
			return outputValidationErrors(formatter, []compiler.ValidationError{compileErrorToValidation(compileErr)})
		}
		code := loadErrorCode(err)
		return outputValidateError(formatter, code, err.Error())
	}

	formatter.VerboseLog("Found %d queries in %s", len(specs), path)

	if errs := validateSpecs(specs); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Queries: len(specs)})
	}
	fmt.Fprintln(formatter.Writer, formatter.Styles().Pass.Render(fmt.Sprintf("✓ All %d queries valid", len(specs))))
	return nil
}

// validateSpecs assembles specs without a database and converts every
// problem into a ValidationError.
func validateSpecs(specs []*compiler.QuerySpec) []compiler.ValidationError {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := compiler.Assemble(specs, nil, logger)
	if err == nil {
		return nil
	}

	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	var derrs mapping.DefinitionErrors
	if errors.As(err, &derrs) {
		out := make([]compiler.ValidationError, len(derrs))
		for i, d := range derrs {
			out[i] = compiler.ValidationError{Field: d.Field, Message: d.Message, Code: d.Code}
		}
		return out
	}
	var derr mapping.DefinitionError
	if errors.As(err, &derr) {
		return []compiler.ValidationError{{Field: derr.Field, Message: derr.Message, Code: derr.Code}}
	}
	return []compiler.ValidationError{{Field: "queries", Message: err.Error(), Code: ErrCodeGeneric}}
}

// compileErrorToValidation converts a CUE compile error into a validation
// error carrying its line.
func compileErrorToValidation(err *compiler.CompileError) compiler.ValidationError {
	v := compiler.ValidationError{Field: err.Field, Message: err.Message, Code: ErrCodeLoadFailed}
	if err.Pos.IsValid() {
		v.Line = err.Pos.Line()
	}
	return v
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := encodeIndented(formatter.Writer, response); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, formatter.Styles().Fail.Render("✗ Validation failed"))
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		switch {
		case err.Query != "" && err.Line > 0:
			fmt.Fprintf(formatter.Writer, "%s (line %d)\n", err.Query, err.Line)
		case err.Query != "":
			fmt.Fprintln(formatter.Writer, err.Query)
		case err.Line > 0:
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return exitErr
}
