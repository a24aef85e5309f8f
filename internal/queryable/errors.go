package queryable

import (
	"errors"
	"fmt"
)

// MissingSourceError is returned when a source identifier cannot be
// resolved to a Queryable.
type MissingSourceError struct {
	Source string
	Err    error
}

// Error implements the error interface.
func (e *MissingSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %q cannot be resolved: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("source %q cannot be resolved", e.Source)
}

// Unwrap returns the resolver failure, if any.
func (e *MissingSourceError) Unwrap() error {
	return e.Err
}

// UndefinedOperationError is returned when neither a local operation nor
// the queryable exposes the requested operation.
type UndefinedOperationError struct {
	Operation string
	Source    string
}

// Error implements the error interface.
func (e *UndefinedOperationError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("undefined operation %q on source %q", e.Operation, e.Source)
	}
	return fmt.Sprintf("undefined operation %q", e.Operation)
}

// ArityError reports an operation whose declared arity does not fit the
// number of keys mapped to it.
type ArityError struct {
	Operation string
	Want      int
	Got       int
}

// Error implements the error interface.
func (e *ArityError) Error() string {
	return fmt.Sprintf("operation %q takes %d argument(s), mapping supplies %d", e.Operation, e.Want, e.Got)
}

// IsMissingSource reports whether err is or wraps a MissingSourceError.
func IsMissingSource(err error) bool {
	var target *MissingSourceError
	return errors.As(err, &target)
}

// IsUndefinedOperation reports whether err is or wraps an
// UndefinedOperationError.
func IsUndefinedOperation(err error) bool {
	var target *UndefinedOperationError
	return errors.As(err, &target)
}
