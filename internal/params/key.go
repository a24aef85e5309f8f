package params

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key is the canonical form of a parameter key.
type Key string

// Symbol is the symbolic spelling of a key. A payload may spell the same key
// as a Symbol or as text; both normalize to the same Key.
type Symbol string

// NormalizeKey converts any supported key spelling into its canonical Key:
// surrounding whitespace trimmed and Unicode NFC normalized. The second
// return value is false for unsupported key types and for keys that are
// empty after trimming.
func NormalizeKey(k any) (Key, bool) {
	var s string
	switch v := k.(type) {
	case Key:
		s = string(v)
	case Symbol:
		s = string(v)
	case string:
		s = v
	case []byte:
		s = string(v)
	case fmt.Stringer:
		s = v.String()
	default:
		return "", false
	}

	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	return Key(s), true
}

// Keys normalizes a list of key spellings, dropping unsupported ones and
// duplicates while preserving first-seen order.
func Keys(spellings ...any) []Key {
	out := make([]Key, 0, len(spellings))
	seen := make(map[Key]bool, len(spellings))
	for _, sp := range spellings {
		k, ok := NormalizeKey(sp)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
