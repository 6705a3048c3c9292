package memory

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"gochen-data/data/dbcontext"
	"gochen-data/data/orm"
	"gochen-data/logging"
)

// Context 内存持久化上下文
type Context struct {
	name    string
	store   *Store
	tracker *dbcontext.Tracker
	tx      *transaction
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

// New 创建内存上下文；store 为 nil 时使用私有存储
func New(name string, store *Store, opts ...Option) *Context {
	if store == nil {
		store = NewStore()
	}
	c := &Context{
		name:    name,
		store:   store,
		tracker: dbcontext.NewTracker(),
		logger:  logging.ComponentLogger("dbcontext.memory"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(logging.String("context", name))
	return c
}

var _ dbcontext.IContext = (*Context)(nil)

func (c *Context) Name() string { return c.name }

// Store 返回底层存储
func (c *Context) Store() *Store { return c.store }

// Capabilities 不支持 Raw 过滤
func (c *Context) Capabilities() orm.Capabilities {
	return orm.NewCapabilities(
		orm.CapabilityBasicCRUD,
		orm.CapabilityQuery,
		orm.CapabilityPreload,
		orm.CapabilityTransaction,
	)
}

func (c *Context) Set(meta *orm.ModelMeta) (dbcontext.IEntitySet, error) {
	if c.closed {
		return nil, dbcontext.ErrContextClosed
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: nil model meta", orm.ErrInvalidModel)
	}
	return &entitySet{c: c, meta: meta}, nil
}

// SaveChanges 在存储写锁内依次应用暂存变更，任一失败则恢复存储并返回错误
func (c *Context) SaveChanges(ctx context.Context) (int, error) {
	if c.closed {
		return 0, dbcontext.ErrContextClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	pending := c.tracker.Pending()
	if len(pending) == 0 {
		return 0, nil
	}

	c.store.mu.Lock()
	backup := c.store.cloneLocked()
	var generated []*dbcontext.Entry
	for _, e := range pending {
		gen, err := c.apply(e)
		if gen {
			generated = append(generated, e)
		}
		if err != nil {
			c.store.restoreLocked(backup)
			c.store.mu.Unlock()
			resetGeneratedKeys(generated)
			return 0, err
		}
	}
	c.store.mu.Unlock()

	if err := c.tracker.Accept(pending); err != nil {
		return 0, err
	}
	c.logger.Debug(ctx, "memory context saved changes", logging.Int("affected", len(pending)))
	return len(pending), nil
}

// apply 调用方须持有存储写锁；gen 表示是否由存储分配了主键
func (c *Context) apply(e *dbcontext.Entry) (gen bool, err error) {
	meta := e.Meta
	pk := meta.PrimaryKey().Column
	t := c.store.tableLocked(meta.Table)

	switch e.State {
	case dbcontext.Added:
		storeGenerated, err := dbcontext.PrepareInsert(meta, e.Entity, c.now())
		if err != nil {
			return false, err
		}
		if storeGenerated {
			t.seq++
			if err := meta.SetValue(e.Entity, pk, t.seq); err != nil {
				return false, err
			}
		}
		row, err := meta.Values(e.Entity)
		if err != nil {
			return storeGenerated, err
		}
		key := orm.NormalizeKey(row[pk])
		if n, ok := key.(int64); ok && n > t.seq {
			t.seq = n
		}
		if _, exists := t.rows[key]; exists {
			return storeGenerated, fmt.Errorf("%w: %s key %v", dbcontext.ErrDuplicateKey, meta.Table, row[pk])
		}
		t.rows[key] = row
		return storeGenerated, nil

	case dbcontext.Modified:
		row, err := meta.Values(e.Entity)
		if err != nil {
			return false, err
		}
		key := orm.NormalizeKey(row[pk])
		if _, exists := t.rows[key]; !exists {
			return false, fmt.Errorf("%w: %s key %v", dbcontext.ErrStaleEntity, meta.Table, row[pk])
		}
		t.rows[key] = row
		return false, nil

	case dbcontext.Deleted:
		k, err := meta.Key(e.Entity)
		if err != nil {
			return false, err
		}
		key := orm.NormalizeKey(k)
		if _, exists := t.rows[key]; !exists {
			return false, fmt.Errorf("%w: %s key %v", dbcontext.ErrStaleEntity, meta.Table, k)
		}
		delete(t.rows, key)
		return false, nil
	}
	return false, nil
}

// resetGeneratedKeys 落库失败时撤销存储分配的主键，实体保持可重试
func resetGeneratedKeys(entries []*dbcontext.Entry) {
	for _, e := range entries {
		pk := e.Meta.PrimaryKey().Column
		_ = e.Meta.SetValue(e.Entity, pk, reflect.Zero(e.Meta.PrimaryKey().Type).Interface())
	}
}

// Discard 丢弃暂存变更
func (c *Context) Discard(ctx context.Context) error {
	if c.closed {
		return dbcontext.ErrContextClosed
	}
	return c.tracker.Revert()
}

// Begin 开启快照事务
func (c *Context) Begin(ctx context.Context) (dbcontext.ITransaction, error) {
	if c.closed {
		return nil, dbcontext.ErrContextClosed
	}
	if c.tx != nil {
		return nil, dbcontext.ErrTransactionActive
	}
	c.store.mu.Lock()
	snap := c.store.cloneLocked()
	c.store.mu.Unlock()

	c.tx = &transaction{c: c, snapshot: snap}
	return c.tx, nil
}

func (c *Context) InTransaction() bool { return c.tx != nil }

// Close 回滚未结束的事务并清空跟踪，可重复调用
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	var err error
	if c.tx != nil {
		err = c.tx.Rollback(context.Background())
	}
	c.tracker.Clear()
	c.closed = true
	return err
}

// Tracker 返回变更跟踪器
func (c *Context) Tracker() *dbcontext.Tracker { return c.tracker }

type transaction struct {
	c        *Context
	snapshot map[string]*table
	done     bool
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.done {
		return dbcontext.ErrNoTransaction
	}
	t.done = true
	t.c.tx = nil
	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	if t.done {
		return dbcontext.ErrNoTransaction
	}
	t.c.store.mu.Lock()
	t.c.store.restoreLocked(t.snapshot)
	t.c.store.mu.Unlock()
	t.done = true
	t.c.tx = nil
	return nil
}
