package params

import (
	"reflect"
	"strings"

	"github.com/roach88/sieve/internal/ir"
)

// Scrub returns a copy of v with blank values removed.
//
// Arrays drop elements whose own scrubbed value is blank, objects drop
// entries whose scrubbed value is blank, strings are trimmed, and every other
// scalar passes through unchanged. The input is never modified.
//
// Scrub is idempotent: Scrub(Scrub(v)) equals Scrub(v).
func Scrub(v ir.IRValue) ir.IRValue {
	switch val := v.(type) {
	case ir.IRArray:
		out := make(ir.IRArray, 0, len(val))
		for _, elem := range val {
			s := Scrub(elem)
			if !IsBlank(s) {
				out = append(out, s)
			}
		}
		return out
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for k, elem := range val {
			s := Scrub(elem)
			if !IsBlank(s) {
				out[k] = s
			}
		}
		return out
	case ir.IRString:
		return ir.IRString(strings.TrimSpace(string(val)))
	default:
		return v
	}
}

// IsBlank reports whether v counts as absent: nil, null, whitespace-only
// text, or an empty array or object. False and zero are present values.
func IsBlank(v ir.IRValue) bool {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return true
	case ir.IRString:
		return strings.TrimSpace(string(val)) == ""
	case ir.IRArray:
		return len(val) == 0
	case ir.IRObject:
		return len(val) == 0
	default:
		return false
	}
}

// IsBlankAny applies the IsBlank rules to a plain Go value, as returned by
// an Override. Nil pointers, empty slices and empty maps are blank.
func IsBlankAny(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case ir.IRValue:
		return IsBlank(val)
	case string:
		return strings.TrimSpace(val) == ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
