// Package sqlctx 提供基于 database/sql 的持久化上下文。
//
// 语句由 squirrel 生成并统一使用 ? 占位符，由 data/db 实现按方言改写；
// 实体映射复用 data/orm 的模型元数据。SaveChanges 在活动事务中执行，
// 没有活动事务时使用隐式事务，保证一次落库要么全部生效要么全部回滚。
package sqlctx

import (
	"context"
	"time"

	core "gochen-data/data/db"
	"gochen-data/data/db/dialect"
	"gochen-data/data/dbcontext"
	"gochen-data/data/orm"
	"gochen-data/logging"
)

// Context SQL 持久化上下文
type Context struct {
	name    string
	db      core.IDatabase
	dialect dialect.Dialect
	tracker *dbcontext.Tracker
	tx      *transaction
	ownsDB  bool
	closed  bool
	logger  logging.Logger
	now     func() time.Time
}

// Option 上下文选项
type Option func(*Context)

// WithLogger 设置日志
func WithLogger(l logging.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(c *Context) {
		if now != nil {
			c.now = now
		}
	}
}

// OwnDatabase Close 时一并关闭数据库连接
func OwnDatabase() Option {
	return func(c *Context) { c.ownsDB = true }
}

// New 创建 SQL 上下文
func New(name string, database core.IDatabase, opts ...Option) *Context {
	c := &Context{
		name:    name,
		db:      database,
		dialect: dialect.FromDatabase(database),
		tracker: dbcontext.NewTracker(),
		logger:  logging.ComponentLogger("dbcontext.sql"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(
		logging.String("context", name),
		logging.String("dialect", string(c.dialect.Name())),
	)
	return c
}

var _ dbcontext.IContext = (*Context)(nil)

func (c *Context) Name() string { return c.name }

// Database 返回底层数据库
func (c *Context) Database() core.IDatabase { return c.db }

// Tracker 返回变更跟踪器
func (c *Context) Tracker() *dbcontext.Tracker { return c.tracker }

func (c *Context) Capabilities() orm.Capabilities {
	return orm.NewCapabilities(
		orm.CapabilityBasicCRUD,
		orm.CapabilityQuery,
		orm.CapabilityPreload,
		orm.CapabilityTransaction,
		orm.CapabilityRawFilter,
	)
}

func (c *Context) Set(meta *orm.ModelMeta) (dbcontext.IEntitySet, error) {
	if c.closed {
		return nil, dbcontext.ErrContextClosed
	}
	if meta == nil {
		return nil, orm.ErrInvalidModel
	}
	return &entitySet{c: c, meta: meta}, nil
}

// querier 有活动事务时返回事务，保证读到本事务内的写入
func (c *Context) querier() core.IQuerier {
	if c.tx != nil {
		return c.tx.tx
	}
	return c.db
}

func (c *Context) quote(name string) string {
	return c.dialect.QuoteIdentifier(name)
}

// Discard 丢弃暂存变更
func (c *Context) Discard(ctx context.Context) error {
	if c.closed {
		return dbcontext.ErrContextClosed
	}
	return c.tracker.Revert()
}

// Begin 开启数据库事务
func (c *Context) Begin(ctx context.Context) (dbcontext.ITransaction, error) {
	if c.closed {
		return nil, dbcontext.ErrContextClosed
	}
	if c.tx != nil {
		return nil, dbcontext.ErrTransactionActive
	}
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	c.tx = &transaction{c: c, tx: tx}
	c.logger.Debug(ctx, "transaction begun")
	return c.tx, nil
}

func (c *Context) InTransaction() bool { return c.tx != nil }

// Close 回滚未结束的事务、清空跟踪；OwnDatabase 时关闭连接。可重复调用
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.tx != nil {
		err = c.tx.tx.Rollback()
		c.tx.done = true
		c.tx = nil
	}
	c.tracker.Clear()
	if c.ownsDB && c.db != nil {
		if cerr := c.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type transaction struct {
	c    *Context
	tx   core.ITransaction
	done bool
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.done {
		return dbcontext.ErrNoTransaction
	}
	t.done = true
	t.c.tx = nil
	if err := t.tx.Commit(); err != nil {
		return err
	}
	t.c.logger.Debug(ctx, "transaction committed")
	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	if t.done {
		return dbcontext.ErrNoTransaction
	}
	t.done = true
	t.c.tx = nil
	if err := t.tx.Rollback(); err != nil {
		return err
	}
	t.c.logger.Debug(ctx, "transaction rolled back")
	return nil
}
