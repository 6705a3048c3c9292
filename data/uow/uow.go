// Package uow 提供工作单元：管理一个或多个持久化上下文，
// 按 (实体类型, 主键类型) 惰性创建并缓存仓储，把提交与回滚分派到对应上下文，
// 并保证每个上下文只被释放一次。
//
// UnitOfWork 的公开方法都在互斥锁下执行，可被多个 goroutine 调用；
// 它发出的仓储与上下文仍然只能由单一调用方使用。
package uow

import (
	"context"
	stdErrors "errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"gochen-data/data/dbcontext"
	"gochen-data/data/repo"
	"gochen-data/domain/entity"
	"gochen-data/errors"
	"gochen-data/logging"
)

// Factory 按需构造上下文，构造出的上下文由工作单元拥有
type Factory func() (dbcontext.IContext, error)

// Option 工作单元选项
type Option func(*UnitOfWork)

// WithContexts 注册上下文。同名上下文以第一次注册为准
func WithContexts(ctxs ...dbcontext.IContext) Option {
	return func(u *UnitOfWork) {
		for _, c := range ctxs {
			if c != nil {
				u.pending = append(u.pending, c)
			}
		}
	}
}

// WithFactory 声明上下文工厂，上下文首次被请求时调用
func WithFactory(name string, f Factory) Option {
	return func(u *UnitOfWork) {
		if f != nil {
			u.factories[name] = f
		}
	}
}

// WithBindings 设置实体到上下文的显式绑定
func WithBindings(b *Bindings) Option {
	return func(u *UnitOfWork) { u.bindings = b }
}

// WithLogger 设置日志
func WithLogger(l logging.Logger) Option {
	return func(u *UnitOfWork) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *Metrics) Option {
	return func(u *UnitOfWork) { u.metrics = m }
}

// WithStrictRollback 回滚未注册的上下文时返回 MissingContext，而不是静默忽略
func WithStrictRollback() Option {
	return func(u *UnitOfWork) { u.strictRollback = true }
}

type repoKey struct {
	entity reflect.Type
	key    reflect.Type
}

// UnitOfWork 工作单元
type UnitOfWork struct {
	mu             sync.Mutex
	id             string
	contexts       map[string]dbcontext.IContext
	pending        []dbcontext.IContext
	order          []string
	factories      map[string]Factory
	bindings       *Bindings
	repos          map[repoKey]any
	logger         logging.Logger
	metrics        *Metrics
	strictRollback bool
	closed         bool
}

// New 创建工作单元
func New(opts ...Option) *UnitOfWork {
	u := &UnitOfWork{
		id:        uuid.NewString(),
		contexts:  make(map[string]dbcontext.IContext),
		factories: make(map[string]Factory),
		repos:     make(map[repoKey]any),
		logger:    logging.ComponentLogger("uow"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	u.logger = u.logger.WithFields(logging.String("uow", u.id))
	for _, c := range u.pending {
		u.register(c)
	}
	u.pending = nil
	return u
}

// ID 工作单元实例标识
func (u *UnitOfWork) ID() string { return u.id }

func (u *UnitOfWork) register(c dbcontext.IContext) bool {
	name := c.Name()
	if _, exists := u.contexts[name]; exists {
		u.logger.Debug(context.Background(), "忽略重复注册的上下文", logging.String("context", name))
		return false
	}
	u.contexts[name] = c
	u.order = append(u.order, name)
	return true
}

// Contexts 已注册上下文的名称，按注册顺序
func (u *UnitOfWork) Contexts() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.order...)
}

// Context 返回指定名称的上下文；未注册时通过工厂创建并注册
func (u *UnitOfWork) Context(name string) (dbcontext.IContext, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil, errors.NewError(errors.ErrCodeDisposed, "unit of work is closed")
	}
	return u.contextLocked(name)
}

func (u *UnitOfWork) contextLocked(name string) (dbcontext.IContext, error) {
	if c, ok := u.contexts[name]; ok {
		return c, nil
	}
	f, ok := u.factories[name]
	if !ok {
		return nil, errors.NewError(errors.ErrCodeMissingContext, "persistence context not registered").
			WithContext("context", name)
	}
	c, err := f()
	if err != nil {
		return nil, errors.WrapDatabaseError(context.Background(), err, "create context "+name)
	}
	if c == nil {
		return nil, errors.NewError(errors.ErrCodeMissingContext, "context factory returned nil").
			WithContext("context", name)
	}
	if c.Name() != name {
		_ = c.Close()
		return nil, errors.NewError(errors.ErrCodeMissingContext,
			fmt.Sprintf("context factory for %q built context %q", name, c.Name()))
	}
	u.register(c)
	u.logger.Debug(context.Background(), "通过工厂创建上下文", logging.String("context", name))
	return c, nil
}

// contextNameFor 先查显式绑定，再查实体声明的 ContextName
func (u *UnitOfWork) contextNameFor(t reflect.Type) (string, error) {
	if name, ok := u.bindings.Lookup(t); ok {
		return name, nil
	}
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		if bound, ok := reflect.New(t.Elem()).Interface().(entity.IContextBound); ok {
			return bound.ContextName(), nil
		}
	}
	return "", errors.NewError(errors.ErrCodeMissingContext, "no persistence context bound to entity").
		WithContext("entity", t.String())
}

// Repository 返回实体 T 的仓储，同一工作单元内每个 (T, K) 只创建一次
func Repository[T entity.IEntity[K], K comparable](u *UnitOfWork) (*repo.Repository[T, K], error) {
	key := repoKey{entity: reflect.TypeFor[T](), key: reflect.TypeFor[K]()}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil, errors.NewError(errors.ErrCodeDisposed, "unit of work is closed")
	}
	if r, ok := u.repos[key]; ok {
		return r.(*repo.Repository[T, K]), nil
	}
	name, err := u.contextNameFor(key.entity)
	if err != nil {
		return nil, err
	}
	c, err := u.contextLocked(name)
	if err != nil {
		return nil, err
	}
	r, err := repo.New[T, K](c)
	if err != nil {
		return nil, err
	}
	u.repos[key] = r
	return r, nil
}

// RepositoryOf 主键为 int64 的仓储
func RepositoryOf[T entity.IEntity[int64]](u *UnitOfWork) (*repo.Repository[T, int64], error) {
	return Repository[T, int64](u)
}

// Commit 落库指定上下文的暂存变更。失败时先丢弃该上下文的暂存变更，再返回存储错误
func (u *UnitOfWork) Commit(ctx context.Context, name string) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, errors.NewError(errors.ErrCodeDisposed, "unit of work is closed")
	}
	c, ok := u.contexts[name]
	if !ok {
		return 0, errors.NewError(errors.ErrCodeMissingContext, "persistence context not registered").
			WithContext("context", name)
	}
	return u.commitLocked(ctx, c)
}

func (u *UnitOfWork) commitLocked(ctx context.Context, c dbcontext.IContext) (int, error) {
	start := time.Now()
	n, err := c.SaveChanges(ctx)
	u.metrics.recordCommit(c.Name(), time.Since(start), err)
	if err != nil {
		if derr := c.Discard(ctx); derr != nil {
			u.logger.Warn(ctx, "提交失败后丢弃变更失败",
				logging.String("context", c.Name()), logging.Error(derr))
		}
		u.metrics.recordRollback(c.Name())
		return 0, errors.WrapDatabaseError(ctx, err, "commit "+c.Name())
	}
	u.logger.Debug(ctx, "提交完成", logging.String("context", c.Name()), logging.Int("rows", n))
	return n, nil
}

// CommitAll 按注册顺序提交全部上下文。
// 某个上下文失败时，回滚它及其后的全部上下文，错误详情中列出已经提交的上下文
func (u *UnitOfWork) CommitAll(ctx context.Context) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, errors.NewError(errors.ErrCodeDisposed, "unit of work is closed")
	}

	total := 0
	committed := make([]string, 0, len(u.order))
	for i, name := range u.order {
		n, err := u.commitLocked(ctx, u.contexts[name])
		if err != nil {
			for _, rest := range u.order[i+1:] {
				_ = u.rollbackLocked(ctx, u.contexts[rest])
			}
			u.logger.Warn(ctx, "部分提交失败",
				logging.String("failed", name), logging.Strings("committed", committed))
			if ie, ok := err.(errors.IError); ok {
				return total, ie.WithDetails(map[string]any{
					"failed":    name,
					"committed": committed,
				})
			}
			return total, err
		}
		total += n
		committed = append(committed, name)
	}
	return total, nil
}

// Rollback 丢弃指定上下文的暂存变更，已跟踪实体恢复到加载时的值。
// 上下文未注册时默认忽略，WithStrictRollback 时返回 MissingContext
func (u *UnitOfWork) Rollback(ctx context.Context, name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return errors.NewError(errors.ErrCodeDisposed, "unit of work is closed")
	}
	c, ok := u.contexts[name]
	if !ok {
		if u.strictRollback {
			return errors.NewError(errors.ErrCodeMissingContext, "persistence context not registered").
				WithContext("context", name)
		}
		return nil
	}
	return u.rollbackLocked(ctx, c)
}

// RollbackAll 丢弃全部上下文的暂存变更
func (u *UnitOfWork) RollbackAll(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return errors.NewError(errors.ErrCodeDisposed, "unit of work is closed")
	}
	var errs []error
	for _, name := range u.order {
		if err := u.rollbackLocked(ctx, u.contexts[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}

func (u *UnitOfWork) rollbackLocked(ctx context.Context, c dbcontext.IContext) error {
	u.metrics.recordRollback(c.Name())
	if err := c.Discard(ctx); err != nil {
		return errors.WrapDatabaseError(ctx, err, "rollback "+c.Name())
	}
	u.logger.Debug(ctx, "回滚完成", logging.String("context", c.Name()))
	return nil
}

// BeginTransaction 在指定上下文上开启事务，返回的事务不拥有上下文
func (u *UnitOfWork) BeginTransaction(ctx context.Context, name string, opts ...TxOption) (*Transaction, error) {
	c, err := u.Context(name)
	if err != nil {
		return nil, err
	}
	tx := NewTransaction(c, append([]TxOption{WithTxLogger(u.logger), WithTxMetrics(u.metrics)}, opts...)...)
	if err := tx.Begin(ctx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Close 释放全部上下文，每个上下文只关闭一次；重复调用无副作用
func (u *UnitOfWork) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true

	var errs []error
	for _, name := range u.order {
		if err := u.contexts[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context %s: %w", name, err))
		}
	}
	u.repos = nil
	u.logger.Debug(context.Background(), "工作单元已释放", logging.Int("contexts", len(u.order)))
	return stdErrors.Join(errs...)
}
