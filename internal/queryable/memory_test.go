package queryable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sieve/internal/ir"
)

func dogs() *Memory {
	return NewMemory("dogs", []ir.IRObject{
		{"name": ir.IRString("Rex"), "breed": ir.IRString("collie")},
		{"name": ir.IRString("Fido"), "breed": ir.IRString("pug")},
		{"name": ir.IRString("Ace"), "breed": ir.IRString("pug")},
	}, map[string]MemoryOp{
		"named":  {Arity: 1, Filter: FieldEquals("name")},
		"breeds": {Arity: 1, Filter: FieldIn("breed")},
		"all":    {Arity: 0, Filter: func(ir.IRObject, []any) bool { return true }},
	})
}

func TestMemoryInvoke(t *testing.T) {
	ctx := context.Background()
	base := dogs()

	q, err := base.Invoke(ctx, "breeds", []any{"pug"})
	require.NoError(t, err)
	n, err := Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	q, err = q.Invoke(ctx, "named", "Ace")
	require.NoError(t, err)
	rows, err := q.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.IRString("Ace"), rows[0]["name"])

	n, err = Count(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "base must be untouched")
}

func TestMemoryNilArgumentIsNoOp(t *testing.T) {
	q, err := dogs().Invoke(context.Background(), "named", nil)
	require.NoError(t, err)
	n, _ := Count(context.Background(), q)
	assert.Equal(t, 3, n)
}

func TestMemoryUndefinedOperation(t *testing.T) {
	_, err := dogs().Invoke(context.Background(), "fly")
	require.Error(t, err)
	assert.True(t, IsUndefinedOperation(err))
	assert.Contains(t, err.Error(), `"dogs"`)
}

func TestMemoryArityMismatch(t *testing.T) {
	_, err := dogs().Invoke(context.Background(), "named")
	var arityErr *ArityError
	require.ErrorAs(t, err, &arityErr)
	assert.Equal(t, 1, arityErr.Want)
	assert.Equal(t, 0, arityErr.Got)
}

func TestMemoryNone(t *testing.T) {
	none := dogs().None()
	rows, err := none.Rows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, "dogs", Name(none))

	arity, ok := none.Arity("named")
	assert.True(t, ok)
	assert.Equal(t, 1, arity)
}

func TestMemoryRowsAreCopies(t *testing.T) {
	m := dogs()
	rows, _ := m.Rows(context.Background())
	rows[0]["name"] = ir.IRString("changed")

	again, _ := m.Rows(context.Background())
	assert.Equal(t, ir.IRString("Rex"), again[0]["name"])
}

func TestCheckArity(t *testing.T) {
	assert.NoError(t, CheckArity("a", Variadic, 3))
	assert.NoError(t, CheckArity("a", 0, 3))
	assert.NoError(t, CheckArity("a", 2, 2))
	assert.Error(t, CheckArity("a", 1, 2))
	assert.Nil(t, Args(0, []any{1}))
	assert.Equal(t, []any{1}, Args(1, []any{1}))
}

func TestSourcesResolve(t *testing.T) {
	sources := Sources{"dogs": dogs()}

	q, err := sources.Resolve(context.Background(), "dogs")
	require.NoError(t, err)
	assert.Equal(t, "dogs", Name(q))

	_, err = sources.Resolve(context.Background(), "cats")
	assert.True(t, IsMissingSource(err))
	assert.EqualError(t, err, `source "cats" cannot be resolved`)
	assert.Equal(t, []string{"dogs"}, sources.Names())
}
