package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// FromAny converts a loosely typed Go value into an IRValue.
//
// Supported inputs are what HTTP, JSON and YAML decoders produce: nil,
// strings, bools, every integer kind, floats, json.Number, slices and maps
// with string-like keys, plus url.Values. Integral floats stay IRFloat; only
// json.Number decides int vs float by its text.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case []byte:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int8:
		return IRInt(val), nil
	case int16:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint:
		return fromUint(uint64(val))
	case uint8:
		return IRInt(val), nil
	case uint16:
		return IRInt(val), nil
	case uint32:
		return IRInt(val), nil
	case uint64:
		return fromUint(val)
	case float32:
		return IRFloat(val), nil
	case float64:
		return IRFloat(val), nil
	case json.Number:
		return fromNumber(val)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case []string:
		arr := make(IRArray, len(val))
		for i, s := range val {
			arr[i] = IRString(s)
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	case map[string]string:
		obj := make(IRObject, len(val))
		for k, s := range val {
			obj[k] = IRString(s)
		}
		return obj, nil
	case map[any]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				if s, isStringer := k.(fmt.Stringer); isStringer {
					key = s.String()
				} else {
					return nil, fmt.Errorf("object key %v: unsupported key type %T", k, k)
				}
			}
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", key, err)
			}
			obj[key] = irElem
		}
		return obj, nil
	case url.Values:
		return FromValues(val), nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// FromValues converts url.Values. A key with one value maps to a string; a
// key repeated in the query string, or spelled with a trailing "[]", maps to
// an array.
func FromValues(values url.Values) IRObject {
	obj := make(IRObject, len(values))
	for k, vs := range values {
		key, forceArray := strings.CutSuffix(k, "[]")
		if len(vs) == 1 && !forceArray {
			obj[key] = IRString(vs[0])
			continue
		}
		arr := make(IRArray, len(vs))
		for i, s := range vs {
			arr[i] = IRString(s)
		}
		obj[key] = arr
	}
	return obj
}

func fromUint(u uint64) (IRValue, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("number out of int64 range: %d", u)
	}
	return IRInt(u), nil
}

func fromNumber(n json.Number) (IRValue, error) {
	if i, err := n.Int64(); err == nil {
		return IRInt(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", n, err)
	}
	return IRFloat(f), nil
}

// ToNative converts an IRValue into the plain Go value an operation receives:
// nil, string, int64, float64, bool, []any or map[string]any.
func ToNative(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRFloat:
		return float64(val)
	case IRBool:
		return bool(val)
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToNative(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToNative(elem)
		}
		return out
	default:
		return nil
	}
}
