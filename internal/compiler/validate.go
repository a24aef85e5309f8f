package compiler

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sieve/internal/mapping"
	"github.com/roach88/sieve/internal/params"
	"github.com/roach88/sieve/internal/queryable"
	"github.com/roach88/sieve/internal/queryir"
	"github.com/roach88/sieve/internal/querysql"
)

// Validation error codes (E210-E219). Mapping errors keep the
// mapping.DefinitionError codes (E201-E208).
const (
	ErrInvalidIdentifier  = "E210" // table, column or field is not an identifier
	ErrUnknownScopeKind   = "E211" // scope kind is not one of querysql.Kinds
	ErrScopeFields        = "E212" // wrong number of fields for the scope kind
	ErrUndefinedOperation = "E213" // map op is neither a scope nor built in
	ErrOperationArity     = "E214" // mapping keys do not match the scope arity
	ErrUnknownParser      = "E215" // parse kind is not one of params.ParserKinds
	ErrInvalidPolicy      = "E216" // policy is not default or strict
	ErrDuplicateQuery     = "E217" // query name declared twice
	ErrMappingKeys        = "E218" // mapping key is blank or repeats another after normalization
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Query   string `json:"query"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s: %s", e.Code, e.Line, e.Query, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Query, e.Field, e.Message)
}

// ValidationErrors is returned by Build when Validate finds problems.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// HasCode reports whether any error carries code.
func (e ValidationErrors) HasCode(code string) bool {
	return slices.ContainsFunc(e, func(v ValidationError) bool { return v.Code == code })
}

// Validate checks a query spec and returns every problem found (does not
// fail-fast).
func Validate(spec *QuerySpec) []ValidationError {
	v := &validator{spec: spec}
	v.validate()
	return v.errs
}

// ValidateAll validates every spec and rejects duplicate names.
func ValidateAll(specs []*QuerySpec) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for _, spec := range specs {
		if seen[spec.Name] {
			errs = append(errs, ValidationError{
				Query:   spec.Name,
				Field:   "name",
				Message: fmt.Sprintf("query %q declared more than once", spec.Name),
				Code:    ErrDuplicateQuery,
				Line:    spec.Line,
			})
		}
		seen[spec.Name] = true
		errs = append(errs, Validate(spec)...)
	}
	return errs
}

type validator struct {
	spec *QuerySpec
	errs []ValidationError
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Query:   v.spec.Name,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
		Line:    v.spec.Line,
	})
}

func (v *validator) validate() {
	spec := v.spec

	v.identifier("table", spec.TableName())
	for i, col := range spec.Columns {
		v.identifier(fmt.Sprintf("columns[%d]", i), col)
	}
	for i, col := range spec.OrderBy {
		v.identifier(fmt.Sprintf("order_by[%d]", i), col)
	}

	if spec.Policy != "" {
		if _, err := mapping.ParsePolicy(spec.Policy); err != nil {
			v.add("policy", ErrInvalidPolicy, "unknown policy %q (valid: default, strict)", spec.Policy)
		}
	}

	for _, name := range sortedKeys(spec.Scopes) {
		v.scope(name, spec.Scopes[name])
	}

	for i, m := range spec.Map {
		v.mapping(i, m)
	}

	kinds := params.ParserKinds()
	for _, key := range sortedKeys(spec.Parse) {
		if kind := spec.Parse[key]; !slices.Contains(kinds, kind) {
			v.add(fmt.Sprintf("parse.%s", key), ErrUnknownParser,
				"unknown parser %q (valid: %s)", kind, strings.Join(kinds, ", "))
		}
	}

	// Mapping-level rules are checked by the definition builder itself.
	if _, err := buildDefinition(spec); err != nil {
		var defErrs mapping.DefinitionErrors
		if errors.As(err, &defErrs) {
			for _, de := range defErrs {
				v.add(de.Field, de.Code, "%s", de.Message)
			}
		}
	}
}

func (v *validator) identifier(field, name string) {
	if !queryir.IsIdentifier(name) {
		v.add(field, ErrInvalidIdentifier, "%q is not a valid identifier", name)
	}
}

func (v *validator) scope(name string, s ScopeSpec) {
	field := "scopes." + name
	if !slices.Contains(querysql.Kinds(), querysql.Kind(s.Kind)) {
		v.add(field+".kind", ErrUnknownScopeKind, "unknown scope kind %q", s.Kind)
		return
	}
	for i, f := range s.Fields {
		v.identifier(fmt.Sprintf("%s.fields[%d]", field, i), f)
	}
	switch querysql.Kind(s.Kind) {
	case querysql.KindEq, querysql.KindLike:
		if len(s.Fields) == 0 {
			v.add(field+".fields", ErrScopeFields, "%s needs at least one field", s.Kind)
		}
	default:
		if len(s.Fields) != 1 {
			v.add(field+".fields", ErrScopeFields, "%s needs exactly one field, got %d", s.Kind, len(s.Fields))
		}
	}
}

func (v *validator) mapping(i int, m MappingSpec) {
	field := fmt.Sprintf("map[%d]", i)
	if !v.mappingKeys(field, m.Keys) {
		return
	}

	if s, ok := v.spec.Scopes[m.Op]; ok {
		sc := querysql.Scope{Name: m.Op, Kind: querysql.Kind(s.Kind), Fields: s.Fields}
		if sc.Validate() != nil {
			return
		}
		if err := queryable.CheckArity(m.Op, sc.Arity(), len(keys(m.Keys))); err != nil {
			v.add(field, ErrOperationArity, "%v", err)
		}
		return
	}

	if m.Op == LimitOperation {
		return
	}
	v.add(field+".op", ErrUndefinedOperation, "operation %q is not a declared scope", m.Op)
}

// mappingKeys reports whether every key survives normalization as a
// distinct key. Build hands the mapping the normalized, deduplicated list,
// and scope arity is checked against that list.
func (v *validator) mappingKeys(field string, spellings []string) bool {
	valid := true
	seen := make(map[params.Key]string, len(spellings))
	for j, sp := range spellings {
		k, ok := params.NormalizeKey(sp)
		if !ok {
			v.add(fmt.Sprintf("%s.keys[%d]", field, j), ErrMappingKeys, "key %q is blank", sp)
			valid = false
			continue
		}
		if prev, dup := seen[k]; dup {
			v.add(fmt.Sprintf("%s.keys[%d]", field, j), ErrMappingKeys, "key %q repeats %q", sp, prev)
			valid = false
			continue
		}
		seen[k] = sp
	}
	return valid
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
