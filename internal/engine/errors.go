package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sieve/internal/params"
)

// MessageRequired is recorded for a required key that is absent.
const MessageRequired = "is required"

// Errors maps a parameter key to its validation messages. It is populated
// while the query is planned and never changes afterwards.
type Errors map[params.Key][]string

func (e Errors) add(k params.Key, msg string) {
	e[k] = append(e[k], msg)
}

// Any reports whether any error was recorded.
func (e Errors) Any() bool { return len(e) > 0 }

// On returns the messages recorded for key.
func (e Errors) On(key params.Key) []string { return slices.Clone(e[key]) }

// Keys lists the keys with errors in sorted order.
func (e Errors) Keys() []params.Key {
	keys := make([]params.Key, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// FullMessages renders "key message" strings in key order.
func (e Errors) FullMessages() []string {
	var out []string
	for _, k := range e.Keys() {
		for _, msg := range e[k] {
			out = append(out, fmt.Sprintf("%s %s", k, msg))
		}
	}
	return out
}

// Strings converts to a plain map, as used for JSON output and the run log.
func (e Errors) Strings() map[string][]string {
	out := make(map[string][]string, len(e))
	for k, msgs := range e {
		out[string(k)] = slices.Clone(msgs)
	}
	return out
}

// ValidationError wraps a query's validation errors for callers that want an
// error value. The engine itself never returns it from Result.
type ValidationError struct {
	Errors Errors
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors.FullMessages(), ", ")
}

// UndefinedKeyError is returned by Query.Get for a key that no mapping
// declares.
type UndefinedKeyError struct {
	Key   string
	Valid []params.Key
}

// Error lists the declared keys so typos are easy to spot.
func (e *UndefinedKeyError) Error() string {
	valid := make([]string, len(e.Valid))
	for i, k := range e.Valid {
		valid[i] = string(k)
	}
	return fmt.Sprintf("undefined key %q, valid keys are: %s", e.Key, strings.Join(valid, ", "))
}

// IsUndefinedKey reports whether err is or wraps an UndefinedKeyError.
func IsUndefinedKey(err error) bool {
	var target *UndefinedKeyError
	return errors.As(err, &target)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
