package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileCUE parses a CUE query file and returns its queries in
// declaration order.
func CompileCUE(src []byte, filename string) ([]*QuerySpec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	queriesVal := v.LookupPath(cue.ParsePath("query"))
	if !queriesVal.Exists() {
		return nil, &CompileError{
			Field:   "query",
			Message: "no queries declared",
			Pos:     v.Pos(),
		}
	}

	iter, err := queriesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []*QuerySpec
	for iter.Next() {
		spec, err := compileQuery(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.File = filename
		specs = append(specs, spec)
	}
	return specs, nil
}

// CompileQuery parses a CUE value into a QuerySpec. The query name is the
// last selector of the value's path, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`query: posts: { ... }`)
//	spec, err := CompileQuery(v.LookupPath(cue.ParsePath("query.posts")))
func CompileQuery(v cue.Value) (*QuerySpec, error) {
	var name string
	if sels := v.Path().Selectors(); len(sels) > 0 {
		// The label may be quoted in CUE
		name = strings.Trim(sels[len(sels)-1].String(), `"`)
	}
	return compileQuery(name, v)
}

func compileQuery(name string, v cue.Value) (*QuerySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &QuerySpec{Name: name, Line: v.Pos().Line()}

	var err error
	if spec.Source, err = optionalString(v, "source"); err != nil {
		return nil, err
	}
	if spec.Table, err = optionalString(v, "table"); err != nil {
		return nil, err
	}
	if spec.Policy, err = optionalString(v, "policy"); err != nil {
		return nil, err
	}
	if spec.Columns, err = optionalStrings(v, "columns"); err != nil {
		return nil, err
	}
	if spec.OrderBy, err = optionalStrings(v, "order_by"); err != nil {
		return nil, err
	}
	if spec.Permit, err = optionalStrings(v, "permit"); err != nil {
		return nil, err
	}

	// Parse map (required, may be empty)
	mapVal := v.LookupPath(cue.ParsePath("map"))
	if !mapVal.Exists() {
		return nil, &CompileError{
			Field:   "map",
			Message: "map is required",
			Pos:     v.Pos(),
		}
	}
	spec.Map, err = parseMappings(mapVal)
	if err != nil {
		return nil, err
	}

	spec.Scopes, err = parseScopes(v)
	if err != nil {
		return nil, err
	}

	spec.Parse, err = parseParsers(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// parseMappings reads the ordered list of mapping entries.
func parseMappings(v cue.Value) ([]MappingSpec, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	mappings := []MappingSpec{}
	for iter.Next() {
		entry := iter.Value()

		op, err := optionalString(entry, "op")
		if err != nil {
			return nil, err
		}
		if op == "" {
			return nil, &CompileError{
				Field:   "map.op",
				Message: "op is required",
				Pos:     entry.Pos(),
			}
		}

		m := MappingSpec{Op: op}
		if m.Keys, err = optionalStrings(entry, "keys"); err != nil {
			return nil, err
		}
		if m.Require, err = parseKeySelection(entry, "require"); err != nil {
			return nil, err
		}
		if m.AllowNil, err = parseKeySelection(entry, "allow_nil"); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// parseKeySelection reads a field that is either a bool or a list of keys.
func parseKeySelection(v cue.Value, field string) (KeySelection, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return KeySelection{}, nil
	}
	if b, err := val.Bool(); err == nil {
		return KeySelection{All: b}, nil
	}
	keys, err := stringList(val)
	if err != nil {
		return KeySelection{}, &CompileError{
			Field:   field,
			Message: "must be a bool or a list of keys",
			Pos:     val.Pos(),
		}
	}
	return KeySelection{Keys: keys}, nil
}

// parseScopes reads the scopes struct. Scopes are optional.
func parseScopes(v cue.Value) (map[string]ScopeSpec, error) {
	scopesVal := v.LookupPath(cue.ParsePath("scopes"))
	if !scopesVal.Exists() {
		return nil, nil
	}

	iter, err := scopesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	scopes := make(map[string]ScopeSpec)
	for iter.Next() {
		name := iter.Label()
		scopeVal := iter.Value()

		kind, err := optionalString(scopeVal, "kind")
		if err != nil {
			return nil, err
		}
		if kind == "" {
			return nil, &CompileError{
				Field:   fmt.Sprintf("scopes.%s.kind", name),
				Message: "kind is required",
				Pos:     scopeVal.Pos(),
			}
		}
		fields, err := optionalStrings(scopeVal, "fields")
		if err != nil {
			return nil, err
		}
		scopes[name] = ScopeSpec{Kind: kind, Fields: fields}
	}
	return scopes, nil
}

// parseParsers reads the key to parser-kind struct.
func parseParsers(v cue.Value) (map[string]string, error) {
	parseVal := v.LookupPath(cue.ParsePath("parse"))
	if !parseVal.Exists() {
		return nil, nil
	}

	iter, err := parseVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	parsers := make(map[string]string)
	for iter.Next() {
		kind, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		parsers[iter.Label()] = kind
	}
	return parsers, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalStrings(v cue.Value, field string) ([]string, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return nil, nil
	}
	return stringList(val)
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
