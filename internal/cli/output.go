package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/sieve/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Validation failure, failed scenarios, diverging replay
	ExitCommandError = 2 // Command error (invalid paths, unknown query, etc.)
)

// Error codes reported in CLI responses.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeNoFiles       = "E003" // No query files found
	ErrCodeLoadFailed    = "E004" // Query file could not be parsed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeNoQuery       = "E008" // No query registered under the name
	ErrCodeMissingSource = "E009" // Query source cannot be resolved
	ErrCodeExecFailed    = "E010" // Query execution failed
	ErrCodeInvalidParams = "E011" // Parameters could not be read
	ErrCodeRunNotFound   = "E012" // No recorded run with the id
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool

	styles *Styles
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Styles holds the text styles for terminal output. Writers that are not
// terminals get plain text.
type Styles struct {
	Pass  lipgloss.Style
	Fail  lipgloss.Style
	Muted lipgloss.Style
	Bold  lipgloss.Style
}

// Styles returns styles bound to the formatter's writer.
func (f *OutputFormatter) Styles() *Styles {
	if f.styles == nil {
		r := lipgloss.NewRenderer(f.Writer)
		f.styles = &Styles{
			Pass:  r.NewStyle().Foreground(lipgloss.Color("2")),
			Fail:  r.NewStyle().Foreground(lipgloss.Color("1")),
			Muted: r.NewStyle().Foreground(lipgloss.Color("8")),
			Bold:  r.NewStyle().Bold(true),
		}
	}
	return f.styles
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Respond writes a JSON response with an explicit status. Text callers
// render their own output.
func (f *OutputFormatter) Respond(status string, data any) error {
	return f.encode(CLIResponse{Status: status, Data: data})
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports an error and returns the matching ExitError.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error) error {
	msg := message
	if err != nil {
		msg = fmt.Sprintf("%s: %v", message, err)
	}
	_ = f.Error(code, msg, nil)
	return WrapExitError(exitCode, fmt.Sprintf("%s: %s", code, message), err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// WriteRows renders rows as an aligned table. Columns are the first row's
// keys in sorted order; keys missing from a row print empty.
func (f *OutputFormatter) WriteRows(rows []ir.IRObject) error {
	if len(rows) == 0 {
		return nil
	}
	cols := rows[0].SortedKeys()

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(cols, "\t")))
	cells := make([]string, len(cols))
	for _, row := range rows {
		for i, c := range cols {
			cells[i] = formatCell(row[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// formatCell renders a column value; strings print bare, everything else
// as canonical JSON.
func formatCell(v ir.IRValue) string {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return ""
	case ir.IRString:
		return string(val)
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// WriteErrors renders validation errors one key per line in key order.
func (f *OutputFormatter) WriteErrors(errs map[string][]string) {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(f.Writer, "  %s: %s\n", k, strings.Join(errs[k], ", "))
	}
}

// encode writes one JSON line to the formatter's writer. Row values are
// written unescaped, as the run log stores them.
func (f *OutputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// encodeIndented writes v as indented JSON.
func encodeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
