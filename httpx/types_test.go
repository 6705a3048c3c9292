package httpx

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gochen-data/data/dbcontext"
	"gochen-data/data/dbcontext/memory"
	"gochen-data/data/orm"
	"gochen-data/data/repo"
	"gochen-data/errors"
)

func TestBindList(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=2&page_size=3&sort=name:desc,%20id", nil)

	r := BindList(c)
	assert.Equal(t, 2, r.Page)
	assert.Equal(t, 3, r.PageSize)
	assert.Equal(t, map[string]string{"name": "desc", "id": ""}, r.Sort)

	opts := orm.CollectQueryOptions(r.Options()...)
	assert.Equal(t, 3, opts.Offset)
	assert.Equal(t, 3, opts.Limit)
	assert.True(t, opts.Limited)
	assert.Equal(t, []orm.OrderBy{orm.Asc("id"), orm.Desc("name")}, opts.OrderBy)
}

func TestListRequest_Defaults(t *testing.T) {
	opts := orm.CollectQueryOptions(NewListRequest(0, 0).Options()...)
	assert.Zero(t, opts.Offset)
	assert.Equal(t, DefaultPageSize, opts.Limit)
	assert.Empty(t, opts.OrderBy)
}

func TestListRequest_AppliesToRepository(t *testing.T) {
	ctx := context.Background()
	c := memory.New("catalog", nil)
	products, err := repo.New[*product, int64](c)
	require.NoError(t, err)
	for i := range 7 {
		_, err := products.Add(&product{Name: fmt.Sprintf("p%d", i)})
		require.NoError(t, err)
	}
	_, err = products.Commit(ctx)
	require.NoError(t, err)

	req := NewListRequest(2, 3)
	req.SetSort("name", "desc")
	got, err := products.Find(req.Options()...).List(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, p := range got {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"p3", "p2", "p1"}, names)
}

func TestStatusOf(t *testing.T) {
	dup := errors.WrapDatabaseError(context.Background(),
		fmt.Errorf("%w: products", dbcontext.ErrDuplicateKey), "commit")
	cases := []struct {
		err  error
		want int
	}{
		{errors.NewError(errors.ErrCodeNotFound, "x"), http.StatusNotFound},
		{errors.NewError(errors.ErrCodeValidation, "x"), http.StatusBadRequest},
		{errors.NewError(errors.ErrCodeAmbiguousResult, "x"), http.StatusConflict},
		{dup, http.StatusConflict},
		{errors.NewError(errors.ErrCodeDatabase, "x"), http.StatusInternalServerError},
		{errors.NewError(errors.ErrCodeMissingContext, "x"), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}

func TestListRequest_Validate(t *testing.T) {
	assert.NoError(t, NewListRequest(0, 0).Validate())

	r := NewListRequest(1, 10)
	r.SetSort("name", "DESC")
	assert.NoError(t, r.Validate())

	r.SetSort("id", "sideways")
	assert.True(t, errors.IsValidation(r.Validate()))

	assert.True(t, errors.IsValidation(NewListRequest(-1, 10).Validate()))
	assert.True(t, errors.IsValidation(NewListRequest(1, 500).Validate()))
}
