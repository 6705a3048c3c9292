package sqlctx

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "gochen-data/data/db"
	"gochen-data/data/db/basic"
	"gochen-data/data/dbcontext"
	"gochen-data/data/orm"
	"gochen-data/domain/entity"
)

type author struct {
	entity.Entity[int64]
	Name  string  `db:"name"`
	Books []*book `orm:"has_many"`
}

func (*author) TableName() string { return "authors" }

type book struct {
	entity.Entity[int64]
	AuthorID int64   `db:"author_id"`
	Title    string  `db:"title"`
	Author   *author `orm:"belongs_to"`
}

func (*book) TableName() string { return "books" }

const auditColumns = `created_at DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	modified_by TEXT NOT NULL DEFAULT '',
	disabled BOOLEAN NOT NULL DEFAULT 0`

func setupTestDB(t *testing.T) *basic.DB {
	t.Helper()
	db, err := basic.New(core.DBConfig{
		Driver:       "sqlite",
		Database:     filepath.Join(t.TempDir(), "sqlctx.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.ExecDDL(context.Background(),
		`CREATE TABLE authors (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE, `+auditColumns+`)`,
		`CREATE TABLE books (id INTEGER PRIMARY KEY AUTOINCREMENT, author_id INTEGER NOT NULL, title TEXT NOT NULL, `+auditColumns+`)`,
	))
	return db
}

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func newTestContext(t *testing.T, db core.IDatabase) (*Context, dbcontext.IEntitySet, dbcontext.IEntitySet) {
	t.Helper()
	c := New("library", db, WithClock(func() time.Time { return fixedNow }))
	am, err := orm.MetaFor[author]()
	require.NoError(t, err)
	bm, err := orm.MetaFor[book]()
	require.NoError(t, err)
	authors, err := c.Set(am)
	require.NoError(t, err)
	books, err := c.Set(bm)
	require.NoError(t, err)
	return c, authors, books
}

func seed(t *testing.T, c *Context, authors, books dbcontext.IEntitySet) []*author {
	t.Helper()
	ctx := context.Background()
	out := []*author{{Name: "Ada"}, {Name: "Brian"}, {Name: "Carol"}}
	for _, a := range out {
		require.NoError(t, authors.Add(a))
	}
	_, err := c.SaveChanges(ctx)
	require.NoError(t, err)
	for _, b := range []*book{
		{AuthorID: out[0].ID, Title: "Engines"},
		{AuthorID: out[0].ID, Title: "Notes"},
		{AuthorID: out[1].ID, Title: "C"},
	} {
		require.NoError(t, books.Add(b))
	}
	_, err = c.SaveChanges(ctx)
	require.NoError(t, err)
	return out
}

func TestToSqlizer(t *testing.T) {
	quote := func(s string) string { return `"` + s + `"` }
	p := orm.And(
		orm.Eq("name", "Ada"),
		orm.Or(orm.Gt("id", 3), orm.IsNull("title")),
		orm.Not(orm.In("id", 1, 2)),
		orm.Raw("length(name) > ?", 2),
	)
	s, err := toSqlizer(p, quote)
	require.NoError(t, err)
	sql, args, err := squirrel.Select("*").From("t").Where(s).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM t WHERE ("name" = ? AND ("id" > ? OR "title" IS NULL) AND NOT ("id" IN (?,?)) AND length(name) > ?)`,
		sql)
	assert.Equal(t, []any{"Ada", 3, 1, 2, 2}, args)

	empty, err := toSqlizer(orm.In("id"), quote)
	require.NoError(t, err)
	sql, _, err = empty.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "1=0", sql)
}

func TestContext_InsertAssignsKeysAndAudit(t *testing.T) {
	db := setupTestDB(t)
	c, authors, books := newTestContext(t, db)
	seeded := seed(t, c, authors, books)

	assert.Equal(t, int64(1), seeded[0].ID)
	assert.Equal(t, int64(3), seeded[2].ID)
	assert.True(t, fixedNow.Equal(seeded[0].CreatedAt))
	assert.Equal(t, dbcontext.Unchanged, authors.State(seeded[0]))

	var n int
	require.NoError(t, db.QueryRow(context.Background(), "SELECT COUNT(*) FROM books").Scan(&n))
	assert.Equal(t, 3, n)
}

func TestContext_QueryFilterOrderPage(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	c, authors, books := newTestContext(t, db)
	seeded := seed(t, c, authors, books)

	got, err := authors.Query(ctx, orm.CollectQueryOptions(
		orm.WithWhere(orm.Ne("name", "Brian")),
		orm.WithOrderBy(orm.Desc("name")),
	))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Same(t, seeded[2], got[0], "跟踪查询返回已跟踪实例")
	assert.Same(t, seeded[0], got[1])

	page, err := authors.Query(ctx, orm.CollectQueryOptions(orm.WithOffset(1), orm.WithLimit(1)))
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Brian", page[0].(*author).Name)

	tail, err := authors.Query(ctx, orm.CollectQueryOptions(orm.WithOffset(1)))
	require.NoError(t, err, "只有 OFFSET 时补齐不限条数的 LIMIT")
	assert.Len(t, tail, 2)

	raw, err := authors.Query(ctx, orm.CollectQueryOptions(orm.WithWhere(orm.Raw("length(name) = ?", 3))))
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "Ada", raw[0].(*author).Name)

	n, err := authors.Count(ctx, orm.Gte("id", int64(2)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestContext_Preload(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	c, authors, books := newTestContext(t, db)
	seed(t, c, authors, books)

	got, err := authors.Query(ctx, orm.CollectQueryOptions(orm.WithPreload("Books"), orm.WithNoTracking()))
	require.NoError(t, err)
	require.Len(t, got, 3)
	ada := got[0].(*author)
	require.Len(t, ada.Books, 2)
	assert.Equal(t, "Engines", ada.Books[0].Title)
	assert.Empty(t, got[2].(*author).Books)

	bs, err := books.Query(ctx, orm.CollectQueryOptions(orm.WithPreload("Author")))
	require.NoError(t, err)
	require.Len(t, bs, 3)
	assert.Equal(t, "Brian", bs[2].(*book).Author.Name)
}

func TestContext_UpdateRemoveDiscard(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	c, authors, books := newTestContext(t, db)
	seeded := seed(t, c, authors, books)

	seeded[0].Name = "Ada L."
	require.NoError(t, authors.Update(seeded[0]))
	require.NoError(t, authors.Remove(seeded[1]))
	n, err := c.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, freshAuthors, _ := newTestContext(t, db)
	all, err := freshAuthors.Query(ctx, orm.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Ada L.", all[0].(*author).Name)

	seeded[2].Name = "scratch"
	require.NoError(t, authors.Update(seeded[2]))
	require.NoError(t, c.Discard(ctx))
	assert.Equal(t, "Carol", seeded[2].Name)
}

func TestContext_FailedFlushIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	c, authors, books := newTestContext(t, db)
	seed(t, c, authors, books)

	other, otherAuthors, _ := newTestContext(t, db)
	fresh := &author{Name: "Dan"}
	require.NoError(t, otherAuthors.Add(fresh))
	require.NoError(t, otherAuthors.Add(&author{Name: "Ada"}))

	_, err := other.SaveChanges(ctx)
	assert.ErrorIs(t, err, dbcontext.ErrDuplicateKey)
	assert.Zero(t, fresh.ID, "回滚后撤销生成的主键")

	n, err := authors.Count(ctx, orm.All())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "隐式事务回滚，没有部分写入")

	ghost, ghostAuthors, _ := newTestContext(t, db)
	require.NoError(t, ghostAuthors.Update(&author{Entity: entity.Entity[int64]{ID: 99}, Name: "ghost"}))
	_, err = ghost.SaveChanges(ctx)
	assert.ErrorIs(t, err, dbcontext.ErrStaleEntity)
}

func TestContext_Transaction(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	c, authors, _ := newTestContext(t, db)

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	_, err = c.Begin(ctx)
	assert.ErrorIs(t, err, dbcontext.ErrTransactionActive)

	require.NoError(t, authors.Add(&author{Name: "temp"}))
	_, err = c.SaveChanges(ctx)
	require.NoError(t, err)
	n, err := authors.Count(ctx, orm.All())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "事务内可读到本事务写入")

	require.NoError(t, tx.Rollback(ctx))
	assert.False(t, c.InTransaction())
	n, err = authors.Count(ctx, orm.All())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.ErrorIs(t, tx.Rollback(ctx), dbcontext.ErrNoTransaction)
}

func TestContext_Close(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	c := New("library", db, OwnDatabase())

	_, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Error(t, db.Ping(ctx), "拥有的数据库随上下文关闭")

	_, err = c.SaveChanges(ctx)
	assert.ErrorIs(t, err, dbcontext.ErrContextClosed)
}
