package orm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableFetcher 以内存切片模拟批量读取，记录调用次数
type tableFetcher struct {
	tables map[string][]any
	calls  map[string]int
}

func (f *tableFetcher) fetch(ctx context.Context, target *ModelMeta, column string, keys []any) ([]any, error) {
	f.calls[target.Table]++
	var out []any
	for _, row := range f.tables[target.Table] {
		v, err := target.Value(row, column)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if Equal(v, k) {
				out = append(out, row)
				break
			}
		}
	}
	return out, nil
}

func newFixture() *tableFetcher {
	return &tableFetcher{
		tables: map[string][]any{
			"customers": {
				&customer{baseRow: baseRow{ID: 1}, Name: "alice"},
				&customer{baseRow: baseRow{ID: 2}, Name: "bob"},
			},
			"orders": {
				&order{baseRow: baseRow{ID: 10}, CustomerID: 1, Total: 5},
				&order{baseRow: baseRow{ID: 11}, CustomerID: 1, Total: 7},
				&order{baseRow: baseRow{ID: 12}, CustomerID: 2, Total: 1},
			},
			"line": {
				&line{ID: 100, OrderID: 10, SKU: "A"},
				&line{ID: 101, OrderID: 10, SKU: "B"},
				&line{ID: 102, OrderID: 12, SKU: "C"},
			},
			"profile": {
				&profile{ID: 1000, CustomerID: 2, Bio: "hi"},
			},
		},
		calls: map[string]int{},
	}
}

func TestSplitIncludes(t *testing.T) {
	assert.Equal(t, []string{"Orders", "Orders.Lines", "Profile"}, SplitIncludes(" Orders, ,Orders.Lines,Profile ,"))
	assert.Nil(t, SplitIncludes(""))
	assert.Nil(t, SplitIncludes(" , "))
}

func TestResolvePath(t *testing.T) {
	m, err := MetaFor[customer]()
	require.NoError(t, err)

	chain, err := ResolvePath(m, "Orders.Lines")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "Orders", chain[0].Name)
	assert.Equal(t, "Lines", chain[1].Name)

	_, err = ResolvePath(m, "Orders.Nope")
	assert.ErrorIs(t, err, ErrUnknownAssociation)
}

func TestPreload_HasManyNested(t *testing.T) {
	fx := newFixture()
	m, err := MetaFor[customer]()
	require.NoError(t, err)

	c1 := &customer{baseRow: baseRow{ID: 1}}
	c2 := &customer{baseRow: baseRow{ID: 2}}
	c3 := &customer{baseRow: baseRow{ID: 3}}

	err = Preload(context.Background(), m, []any{c1, c2, c3}, []string{"Orders", "orders.Lines", "Profile"}, fx.fetch)
	require.NoError(t, err)

	require.Len(t, c1.Orders, 2)
	assert.Len(t, c1.Orders[0].Lines, 2)
	assert.Empty(t, c1.Orders[1].Lines)
	assert.NotNil(t, c1.Orders[1].Lines, "has_many 无匹配时为空切片")
	require.Len(t, c2.Orders, 1)
	assert.Equal(t, "C", c2.Orders[0].Lines[0].SKU)
	assert.NotNil(t, c3.Orders)
	assert.Empty(t, c3.Orders)

	assert.Nil(t, c1.Profile)
	require.NotNil(t, c2.Profile)
	assert.Equal(t, "hi", c2.Profile.Bio)

	// 公共前缀只加载一次
	assert.Equal(t, 1, fx.calls["orders"])
	assert.Equal(t, 1, fx.calls["line"])
}

func TestPreload_BelongsTo(t *testing.T) {
	fx := newFixture()
	m, err := MetaFor[order]()
	require.NoError(t, err)

	o1 := &order{baseRow: baseRow{ID: 10}, CustomerID: 1}
	o2 := &order{baseRow: baseRow{ID: 11}, CustomerID: 1}
	o3 := &order{baseRow: baseRow{ID: 13}, CustomerID: 99}

	require.NoError(t, Preload(context.Background(), m, []any{o1, o2, o3}, []string{"Customer"}, fx.fetch))
	require.NotNil(t, o1.Customer)
	assert.Equal(t, "alice", o1.Customer.Name)
	assert.Same(t, o1.Customer, o2.Customer)
	assert.Nil(t, o3.Customer)
}

func TestPreload_UnknownPath(t *testing.T) {
	fx := newFixture()
	m, err := MetaFor[customer]()
	require.NoError(t, err)

	err = Preload(context.Background(), m, []any{&customer{}}, []string{"Invoices"}, fx.fetch)
	assert.ErrorIs(t, err, ErrUnknownAssociation)
	assert.Empty(t, fx.calls)
}
