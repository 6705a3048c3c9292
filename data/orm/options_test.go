package orm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectQueryOptions(t *testing.T) {
	opts := CollectQueryOptions(
		WithWhere(Eq("name", "a")),
		WithWhere(Gt("id", 1)),
		WithOrderBy(Desc("name"), OrderBy{}),
		WithOffset(-3),
		WithLimit(5),
		WithPreload(" Orders ", ""),
		WithNoTracking(),
		nil,
	)

	assert.Equal(t, OpAnd, opts.Where.Op)
	assert.Len(t, opts.Where.Children, 2)
	assert.Equal(t, []OrderBy{Desc("name")}, opts.OrderBy)
	assert.Equal(t, 0, opts.Offset)
	assert.Equal(t, 5, opts.Limit)
	assert.True(t, opts.Limited)
	assert.Equal(t, []string{"Orders"}, opts.Preload)
	assert.True(t, opts.NoTracking)
}

func TestQueryOptions_Resolve(t *testing.T) {
	m, err := MetaFor[customer]()
	require.NoError(t, err)

	resolved, err := QueryOptions{}.Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, []OrderBy{Asc("id")}, resolved.OrderBy, "默认按主键升序")

	base := QueryOptions{OrderBy: []OrderBy{Desc("name")}}
	resolved, err = base.Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, []OrderBy{Desc("name"), Asc("id")}, resolved.OrderBy, "主键作为次序键")
	assert.Len(t, base.OrderBy, 1, "Resolve 不修改原选项")

	resolved, err = QueryOptions{OrderBy: []OrderBy{Desc("id")}}.Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, []OrderBy{Desc("id")}, resolved.OrderBy)

	_, err = QueryOptions{OrderBy: []OrderBy{Asc("missing")}}.Resolve(m)
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = QueryOptions{OrderBy: []OrderBy{Asc("id; drop")}}.Resolve(m)
	assert.ErrorIs(t, err, ErrUnsafeIdentifier)

	_, err = QueryOptions{Where: Eq("missing", 1)}.Resolve(m)
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = QueryOptions{Preload: []string{"Nope"}}.Resolve(m)
	assert.ErrorIs(t, err, ErrUnknownAssociation)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, Paginate(items, 0, 0, false))
	assert.Equal(t, []int{3, 4, 5}, Paginate(items, 2, 0, false))
	assert.Equal(t, []int{3, 4}, Paginate(items, 2, 2, true))
	assert.Empty(t, Paginate(items, 2, 0, true))
	assert.Empty(t, Paginate(items, 9, 1, true))
	assert.Equal(t, []int{5}, Paginate(items, 4, 10, true))
}

func TestPagedCount(t *testing.T) {
	assert.Equal(t, int64(5), PagedCount(5, 0, 0, false))
	assert.Equal(t, int64(3), PagedCount(5, 2, 0, false))
	assert.Equal(t, int64(2), PagedCount(5, 2, 2, true))
	assert.Equal(t, int64(0), PagedCount(5, 7, 2, true))
	assert.Equal(t, int64(0), PagedCount(5, 0, 0, true))
}
