package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"

	"github.com/roach88/sieve/internal/mapping"
	"github.com/roach88/sieve/internal/params"
	"github.com/roach88/sieve/internal/queryable"
	"github.com/roach88/sieve/internal/querysql"
	"github.com/roach88/sieve/internal/registry"
)

// LimitOperation is the built-in local operation capping a SQL relation's
// row count. Its argument must be a non-negative integer; zero removes the
// cap.
const LimitOperation = "limit"

// Compiled is a validated query ready to register.
type Compiled struct {
	Spec       *QuerySpec
	Definition *mapping.Definition
	Catalog    *querysql.Catalog
}

// Build validates spec and produces its definition and table catalog.
// Validation problems are returned together as ValidationErrors.
func Build(spec *QuerySpec) (*Compiled, error) {
	if errs := Validate(spec); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	def, err := buildDefinition(spec)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", spec.Name, err)
	}

	catalog := querysql.NewCatalog(spec.SourceName(), spec.TableName())
	catalog.Columns = slices.Clone(spec.Columns)
	catalog.OrderBy = slices.Clone(spec.OrderBy)
	for _, name := range sortedKeys(spec.Scopes) {
		s := spec.Scopes[name]
		if err := catalog.AddScope(querysql.Scope{Name: name, Kind: querysql.Kind(s.Kind), Fields: slices.Clone(s.Fields)}); err != nil {
			return nil, fmt.Errorf("query %s: %w", spec.Name, err)
		}
	}

	return &Compiled{Spec: spec, Definition: def, Catalog: catalog}, nil
}

// Assemble builds every spec and wires the results into a registry whose
// sources are tables of db. Queries naming the same source share one
// catalog; their table, columns, ordering and same-named scopes must agree.
func Assemble(specs []*QuerySpec, db querysql.Database, logger *slog.Logger) (*registry.Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if errs := ValidateAll(specs); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	var compiled []*Compiled
	catalogs := make(map[string]*querysql.Catalog)
	for _, spec := range specs {
		c, err := Build(spec)
		if err != nil {
			return nil, err
		}
		if existing, ok := catalogs[c.Catalog.Name]; ok {
			if err := mergeCatalog(existing, c.Catalog); err != nil {
				return nil, fmt.Errorf("query %s: %w", spec.Name, err)
			}
		} else {
			catalogs[c.Catalog.Name] = c.Catalog
		}
		compiled = append(compiled, c)
	}

	src := querysql.NewSource(db)
	for _, name := range sortedKeys(catalogs) {
		if err := src.Add(catalogs[name]); err != nil {
			return nil, err
		}
	}

	reg := registry.New(src)
	for _, c := range compiled {
		if err := reg.Register(c.Definition); err != nil {
			return nil, err
		}
		logger.Debug("query registered",
			"definition", c.Definition.Name(),
			"source", c.Definition.Source(),
			"mappings", len(c.Definition.Mappings()),
		)
	}
	return reg, nil
}

func mergeCatalog(dst, src *querysql.Catalog) error {
	if dst.Table != src.Table {
		return fmt.Errorf("source %s: conflicting tables %s and %s", dst.Name, dst.Table, src.Table)
	}
	if !slices.Equal(dst.Columns, src.Columns) {
		return fmt.Errorf("source %s: conflicting columns", dst.Name)
	}
	if !slices.Equal(dst.OrderBy, src.OrderBy) {
		return fmt.Errorf("source %s: conflicting order_by", dst.Name)
	}
	for _, name := range src.ScopeNames() {
		s := src.Scopes[name]
		prev, ok := dst.Scope(name)
		if !ok {
			dst.Scopes[name] = s
			continue
		}
		if prev.Kind != s.Kind || !slices.Equal(prev.Fields, s.Fields) {
			return fmt.Errorf("source %s: scope %s declared differently", dst.Name, name)
		}
	}
	return nil
}

// buildDefinition maps a spec onto a mapping.Builder. Invalid policies and
// parsers are skipped here; Validate reports them.
func buildDefinition(spec *QuerySpec) (*mapping.Definition, error) {
	b := mapping.NewBuilder(spec.Name, spec.SourceName())

	if spec.Policy != "" {
		if p, err := mapping.ParsePolicy(spec.Policy); err == nil {
			b.Policy(p)
		}
	}

	usesLimit := false
	for _, m := range spec.Map {
		var opts []mapping.Option
		switch {
		case m.Require.All:
			opts = append(opts, mapping.RequireAll())
		case len(m.Require.Keys) > 0:
			opts = append(opts, mapping.Require(keys(m.Require.Keys)...))
		}
		switch {
		case m.AllowNil.All:
			opts = append(opts, mapping.AllowNilAll())
		case len(m.AllowNil.Keys) > 0:
			opts = append(opts, mapping.AllowNil(keys(m.AllowNil.Keys)...))
		}
		b.Map(m.Op, keys(m.Keys), opts...)

		if m.Op == LimitOperation {
			if _, scoped := spec.Scopes[LimitOperation]; !scoped {
				usesLimit = true
			}
		}
	}

	for _, key := range sortedKeys(spec.Parse) {
		k := params.Key(key)
		override, err := params.ParserOverride(spec.Parse[key], k)
		if err != nil {
			continue
		}
		b.Override(k, override)
	}

	if usesLimit {
		b.Operation(LimitOperation, 1, limitOperation)
	}
	if len(spec.Permit) > 0 {
		b.Permit(keys(spec.Permit)...)
	}

	return b.Build()
}

func keys(spellings []string) []params.Key {
	raw := make([]any, len(spellings))
	for i, s := range spellings {
		raw[i] = s
	}
	return params.Keys(raw...)
}

func limitOperation(_ context.Context, call mapping.Call) (queryable.Queryable, error) {
	rel, ok := call.Base.(*querysql.Relation)
	if !ok {
		return nil, fmt.Errorf("limit: source %q is not a SQL relation", queryable.Name(call.Base))
	}
	n, err := limitValue(call.Args[0])
	if err != nil {
		return nil, fmt.Errorf("limit: %w", err)
	}
	return rel.Limit(n), nil
}

func limitValue(v any) (int, error) {
	var n int64
	switch val := v.(type) {
	case nil:
		return 0, nil
	case int64:
		n = val
	case int:
		n = int64(val)
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("%v is not an integer", val)
		}
		n = int64(val)
	case string:
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", val)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("unsupported value %T", v)
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return int(n), nil
}
