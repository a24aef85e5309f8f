package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/queryir"
)

// likeEscape is the escape character used in LIKE patterns.
const likeEscape = `\`

// SQLCompiler compiles queryir queries to parameterized SQLite SQL.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts q to SQL and its parameters. q is validated first; an
// invalid query never produces SQL.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if res := queryir.Validate(q); !res.Valid {
		return "", nil, fmt.Errorf("invalid query: %s", strings.Join(res.Errors, "; "))
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Count:
		return c.compileCount(query.Of)
	case *queryir.Count:
		return c.compileCount(query.Of)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	where, params, err := c.compileWhere(q.Filter)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		c.compileColumns(q.Columns),
		quote(q.From),
		where,
		c.stableOrderKey(q))
	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, int64(q.Limit))
	}
	return sql, params, nil
}

func (c *SQLCompiler) compileCount(q queryir.Select) (string, []any, error) {
	where, params, err := c.compileWhere(q.Filter)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quote(q.From), where), params, nil
}

func (c *SQLCompiler) compileWhere(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	sql, params, err := c.compilePredicate(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return " WHERE " + sql, params, nil
}

func (c *SQLCompiler) compileColumns(cols []string) string {
	if len(cols) == 0 {
		return "*"
	}
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quote(col)
	}
	return strings.Join(quoted, ", ")
}

// stableOrderKey returns the ORDER BY list. Every Select gets one.
// COLLATE BINARY keeps text ordering identical across SQLite versions.
func (c *SQLCompiler) stableOrderKey(q queryir.Select) string {
	if len(q.OrderBy) == 0 {
		return "rowid ASC"
	}
	parts := make([]string, len(q.OrderBy))
	for i, col := range q.OrderBy {
		parts[i] = quote(col) + " COLLATE BINARY ASC"
	}
	return strings.Join(parts, ", ")
}

// compilePredicate compiles one predicate to a WHERE fragment.
// CRITICAL: values are never interpolated.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.None:
		return "0 = 1", nil, nil
	case queryir.Equals:
		param, err := irValueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", pred.Field, err)
		}
		return quote(pred.Field) + " = ?", []any{param}, nil
	case queryir.Like:
		return fmt.Sprintf("%s LIKE ? ESCAPE '%s'", quote(pred.Field), likeEscape), []any{likePattern(pred.Value)}, nil
	case queryir.In:
		return c.compileIn(pred)
	case queryir.Range:
		return c.compileRange(pred)
	case queryir.Flag:
		if pred.Value {
			return quote(pred.Field) + " = 1", nil, nil
		}
		return quote(pred.Field) + " = 0", nil, nil
	case queryir.IsNull:
		if pred.Negate {
			return quote(pred.Field) + " IS NOT NULL", nil, nil
		}
		return quote(pred.Field) + " IS NULL", nil, nil
	case queryir.And:
		return c.compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileIn(in queryir.In) (string, []any, error) {
	if len(in.Values) == 0 {
		return "0 = 1", nil, nil
	}
	marks := make([]string, len(in.Values))
	params := make([]any, len(in.Values))
	for i, v := range in.Values {
		param, err := irValueToParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", in.Field, err)
		}
		marks[i] = "?"
		params[i] = param
	}
	return fmt.Sprintf("%s IN (%s)", quote(in.Field), strings.Join(marks, ", ")), params, nil
}

func (c *SQLCompiler) compileRange(r queryir.Range) (string, []any, error) {
	var parts []string
	var params []any
	for _, bound := range []struct {
		op  string
		val ir.IRValue
	}{{">=", r.Min}, {"<=", r.Max}} {
		if bound.val == nil {
			continue
		}
		param, err := irValueToParam(bound.val)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", r.Field, err)
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", quote(r.Field), bound.op))
		params = append(params, param)
	}
	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		if _, nested := pred.(queryir.And); nested {
			sql = "(" + sql + ")"
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	return strings.Join(sqlParts, " AND "), allParams, nil
}

// quote wraps a validated identifier in double quotes.
func quote(ident string) string {
	return `"` + ident + `"`
}

// likePattern builds a substring pattern with LIKE wildcards escaped.
func likePattern(s string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return "%" + r.Replace(s) + "%"
}

// irValueToParam converts a scalar ir.IRValue to a SQL parameter.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRNull:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
