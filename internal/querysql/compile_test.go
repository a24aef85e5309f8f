package querysql

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/queryir"
)

func goldenSQL(t *testing.T, name string, q queryir.Query) {
	t.Helper()
	sql, params, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)

	encoded, err := ir.MarshalCanonical(params)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(fmt.Sprintf("%s\n%s\n", sql, encoded)))
}

func TestCompileGolden(t *testing.T) {
	t.Run("posts_search", func(t *testing.T) {
		goldenSQL(t, "posts_search", queryir.Select{
			From:    "posts",
			Columns: []string{"id", "title"},
			OrderBy: []string{"published_on", "id"},
			Limit:   20,
			Filter: queryir.Conj(
				queryir.Like{Field: "title", Value: "50%_off"},
				queryir.In{Field: "author", Values: []ir.IRValue{ir.IRString("kevin"), ir.IRString("ada")}},
				queryir.Range{Field: "published_on", Min: ir.IRString("2024-01-01")},
				queryir.Flag{Field: "published", Value: true},
				queryir.IsNull{Field: "deleted_at"},
			),
		})
	})

	t.Run("posts_count", func(t *testing.T) {
		goldenSQL(t, "posts_count", queryir.Count{Of: queryir.Select{
			From: "posts",
			Filter: queryir.Conj(
				queryir.Equals{Field: "author", Value: ir.IRString("kevin")},
				queryir.Range{Field: "score", Min: ir.IRInt(1), Max: ir.IRFloat(9.5)},
			),
		}})
	})
}

func TestCompilePredicates(t *testing.T) {
	tests := []struct {
		name   string
		filter queryir.Predicate
		where  string
		params []any
	}{
		{"no filter", nil, "", nil},
		{"equals", queryir.Equals{Field: "name", Value: ir.IRString("Rex")}, ` WHERE "name" = ?`, []any{"Rex"}},
		{"none", queryir.None{}, " WHERE 0 = 1", nil},
		{"empty in", queryir.In{Field: "id"}, " WHERE 0 = 1", nil},
		{"open range", queryir.Range{Field: "age", Max: ir.IRInt(3)}, ` WHERE "age" <= ?`, []any{int64(3)}},
		{"unbounded range", queryir.Range{Field: "age"}, " WHERE 1 = 1", nil},
		{"false flag", queryir.Flag{Field: "active"}, ` WHERE "active" = 0`, nil},
		{"not null", queryir.IsNull{Field: "x", Negate: true}, ` WHERE "x" IS NOT NULL`, nil},
		{"nested and", queryir.And{Predicates: []queryir.Predicate{
			queryir.Flag{Field: "a", Value: true},
			queryir.And{Predicates: []queryir.Predicate{queryir.IsNull{Field: "b"}, queryir.IsNull{Field: "c"}}},
		}}, ` WHERE "a" = 1 AND ("b" IS NULL AND "c" IS NULL)`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := NewSQLCompiler().Compile(queryir.Select{From: "dogs", Filter: tt.filter})
			require.NoError(t, err)
			assert.Equal(t, `SELECT * FROM "dogs"`+tt.where+" ORDER BY rowid ASC", sql)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestCompileNeverInterpolatesValues(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(queryir.Select{
		From:   "dogs",
		Filter: queryir.Equals{Field: "name", Value: ir.IRString("'; DROP TABLE dogs; --")},
	})
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP")
	assert.Equal(t, []any{"'; DROP TABLE dogs; --"}, params)
}

func TestCompileRejectsInvalidQuery(t *testing.T) {
	_, _, err := NewSQLCompiler().Compile(queryir.Select{From: "dogs; --"})
	assert.ErrorContains(t, err, "invalid query")

	_, _, err = NewSQLCompiler().Compile(nil)
	assert.Error(t, err)
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%50\%\_off\\%`, likePattern(`50%_off\`))
	assert.Equal(t, "%rex%", likePattern("rex"))
}
