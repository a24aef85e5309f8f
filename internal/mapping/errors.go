package mapping

import (
	"fmt"
	"strings"
)

// Definition error codes (E200-E299)
const (
	ErrDuplicateOperation = "E201" // two mappings target one operation
	ErrKeyOverlap         = "E202" // key both required and allowed nil
	ErrUndeclaredKey      = "E203" // key not among the mapping's keys
	ErrNoKeys             = "E204" // mapping without keys
	ErrEmptyOperation     = "E205" // operation name is empty
	ErrEmptySource        = "E206" // definition without source
	ErrDuplicateLocal     = "E207" // override or local operation registered twice
	ErrInvalidArity       = "E208" // local operation arity cannot fit its mapping
)

// DefinitionError is a configuration mistake found while building a
// Definition.
type DefinitionError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e DefinitionError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// DefinitionErrors collects every problem found by Builder.Build.
type DefinitionErrors []DefinitionError

func (e DefinitionErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, de := range e {
		msgs[i] = de.Error()
	}
	return fmt.Sprintf("%d definition errors: %s", len(e), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e DefinitionErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, de := range e {
		out[i] = de
	}
	return out
}

// HasCode reports whether any collected error carries code.
func (e DefinitionErrors) HasCode(code string) bool {
	for _, de := range e {
		if de.Code == code {
			return true
		}
	}
	return false
}
