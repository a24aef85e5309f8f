package params

import (
	"fmt"
	"net/url"

	"github.com/roach88/sieve/internal/ir"
)

// Filtered is the scrubbed subset of a raw payload restricted to declared
// keys. It never contains a blank value and cannot be modified after Filter
// returns it.
type Filtered struct {
	values map[Key]ir.IRValue
	order  []Key
}

// rawEntry is one key of a raw payload before canonicalization.
type rawEntry struct {
	value    any
	symbolic bool
}

// Filter projects raw onto allowed. Both the allowed keys and the raw keys
// are normalized with NormalizeKey before comparison, so textual and
// symbolic spellings of a key are interchangeable. Kept values are converted
// with ir.FromAny and scrubbed; entries that scrub to blank are dropped.
//
// Values under keys that are not allowed are never inspected, so junk in
// unrelated fields cannot fail the filter.
func Filter(raw any, allowed []Key) (*Filtered, error) {
	entries, err := rawEntries(raw)
	if err != nil {
		return nil, err
	}

	f := &Filtered{values: make(map[Key]ir.IRValue)}
	for _, spelling := range allowed {
		key, ok := NormalizeKey(spelling)
		if !ok {
			continue
		}
		if _, dup := f.values[key]; dup {
			continue
		}
		entry, ok := entries[key]
		if !ok {
			continue
		}

		v, err := ir.FromAny(entry.value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}
		v = Scrub(v)
		if IsBlank(v) {
			continue
		}
		f.values[key] = v
		f.order = append(f.order, key)
	}

	return f, nil
}

// rawEntries indexes a raw payload by canonical key. When two spellings
// normalize to the same key, the Symbol spelling wins.
func rawEntries(raw any) (map[Key]rawEntry, error) {
	out := make(map[Key]rawEntry)
	put := func(k any, v any) {
		key, ok := NormalizeKey(k)
		if !ok {
			return
		}
		_, symbolic := k.(Symbol)
		if prev, exists := out[key]; exists && prev.symbolic && !symbolic {
			return
		}
		out[key] = rawEntry{value: v, symbolic: symbolic}
	}

	switch r := raw.(type) {
	case nil:
	case *Filtered:
		for k, v := range r.values {
			put(k, v)
		}
	case ir.IRObject:
		for k, v := range r {
			put(k, v)
		}
	case map[string]any:
		for k, v := range r {
			put(k, v)
		}
	case map[Key]any:
		for k, v := range r {
			put(k, v)
		}
	case map[Symbol]any:
		for k, v := range r {
			put(k, v)
		}
	case map[any]any:
		for k, v := range r {
			put(k, v)
		}
	case map[string]string:
		for k, v := range r {
			put(k, v)
		}
	case url.Values:
		for k, v := range ir.FromValues(r) {
			put(k, v)
		}
	case map[string][]string:
		for k, v := range ir.FromValues(url.Values(r)) {
			put(k, v)
		}
	default:
		return nil, fmt.Errorf("unsupported parameter payload type %T", raw)
	}
	return out, nil
}

// Get returns a copy of the value stored under key, which may be given in
// any spelling NormalizeKey accepts.
func (f *Filtered) Get(key any) (ir.IRValue, bool) {
	k, ok := NormalizeKey(key)
	if !ok {
		return nil, false
	}
	v, ok := f.values[k]
	if !ok {
		return nil, false
	}
	return ir.Clone(v), true
}

// String returns the value under key when it is a string.
func (f *Filtered) String(key any) (string, bool) {
	v, ok := f.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(ir.IRString)
	return string(s), ok
}

// Has reports whether key survived filtering.
func (f *Filtered) Has(key any) bool {
	_, ok := f.Get(key)
	return ok
}

// Keys returns the kept keys in declaration order.
func (f *Filtered) Keys() []Key {
	out := make([]Key, len(f.order))
	copy(out, f.order)
	return out
}

// Len returns the number of kept keys.
func (f *Filtered) Len() int {
	return len(f.order)
}

// Object returns a deep copy of the parameters as an ir.IRObject.
func (f *Filtered) Object() ir.IRObject {
	obj := make(ir.IRObject, len(f.values))
	for k, v := range f.values {
		obj[string(k)] = ir.Clone(v)
	}
	return obj
}

// Hash fingerprints the parameters; see ir.ParamsHash.
func (f *Filtered) Hash() (string, error) {
	return ir.ParamsHash(f.Object())
}

// MarshalJSON encodes the parameters as canonical JSON.
func (f *Filtered) MarshalJSON() ([]byte, error) {
	return ir.MarshalCanonical(f.Object())
}
