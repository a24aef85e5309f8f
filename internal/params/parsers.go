package params

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/sieve/internal/ir"
)

// DateLayout is the layout the "date" parser accepts.
const DateLayout = "2006-01-02"

// Parser kinds understood by ParserOverride.
const (
	ParseInt   = "int"
	ParseFloat = "float"
	ParseBool  = "bool"
	ParseDate  = "date"
	ParseCSV   = "csv"
	ParseLower = "lower"
	ParseUpper = "upper"
)

var parserKinds = []string{ParseInt, ParseFloat, ParseBool, ParseDate, ParseCSV, ParseLower, ParseUpper}

// ParserKinds lists the built-in parser names.
func ParserKinds() []string {
	return slices.Clone(parserKinds)
}

// ParserOverride returns an Override that parses key's own value with the
// named built-in parser.
func ParserOverride(kind string, key Key) (Override, error) {
	var parse func(ir.IRValue) (any, error)
	switch kind {
	case ParseInt:
		parse = parseInt
	case ParseFloat:
		parse = parseFloat
	case ParseBool:
		parse = parseBool
	case ParseDate:
		parse = parseDate
	case ParseCSV:
		parse = parseCSV
	case ParseLower:
		parse = mapString(strings.ToLower)
	case ParseUpper:
		parse = mapString(strings.ToUpper)
	default:
		return nil, fmt.Errorf("unknown parser %q: must be one of %v", kind, parserKinds)
	}

	return func(p *Filtered) (any, error) {
		v, ok := p.Get(key)
		if !ok {
			return nil, nil
		}
		return parse(v)
	}, nil
}

func parseInt(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRInt:
		return int64(val), nil
	case ir.IRString:
		return strconv.ParseInt(string(val), 10, 64)
	default:
		return nil, fmt.Errorf("cannot parse %T as int", v)
	}
}

func parseFloat(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRInt:
		return float64(val), nil
	case ir.IRString:
		return strconv.ParseFloat(string(val), 64)
	default:
		return nil, fmt.Errorf("cannot parse %T as float", v)
	}
}

func parseBool(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRBool:
		return bool(val), nil
	case ir.IRInt:
		return val != 0, nil
	case ir.IRString:
		switch strings.ToLower(string(val)) {
		case "on", "yes", "y":
			return true, nil
		case "off", "no", "n":
			return false, nil
		}
		return strconv.ParseBool(string(val))
	default:
		return nil, fmt.Errorf("cannot parse %T as bool", v)
	}
}

func parseDate(v ir.IRValue) (any, error) {
	s, ok := v.(ir.IRString)
	if !ok {
		return nil, fmt.Errorf("cannot parse %T as date", v)
	}
	return time.Parse(DateLayout, string(s))
}

// parseCSV splits comma-separated text into a list, dropping blank items.
// An array is passed through as a list.
func parseCSV(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRArray:
		return ir.ToNative(val), nil
	case ir.IRString:
		var out []any
		for _, part := range strings.Split(string(val), ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot parse %T as list", v)
	}
}

func mapString(fn func(string) string) func(ir.IRValue) (any, error) {
	return func(v ir.IRValue) (any, error) {
		s, ok := v.(ir.IRString)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return fn(string(s)), nil
	}
}
