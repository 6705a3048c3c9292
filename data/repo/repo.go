// Package repo 提供基于持久化上下文的泛型仓储。
//
// Repository[T, K] 面向单一实体类型：查询返回延迟执行的 Query[T]，
// 写操作只在上下文中暂存，由 Commit（或工作单元）统一落库。
// 仓储持有上下文的非拥有引用，不负责关闭上下文。
package repo

import (
	"context"
	"fmt"
	"reflect"

	"gochen-data/data/dbcontext"
	"gochen-data/data/orm"
	"gochen-data/domain/entity"
	"gochen-data/domain/repository"
	"gochen-data/errors"
)

// Repository 泛型仓储，T 为实体指针类型，K 为主键类型
type Repository[T entity.IEntity[K], K comparable] struct {
	ctx  dbcontext.IContext
	meta *orm.ModelMeta
}

var (
	_ repository.IRepository[*entity.Entity[int64], int64] = (*Repository[*entity.Entity[int64], int64])(nil)
	_ repository.ITransactional                            = (*Repository[*entity.Entity[int64], int64])(nil)
)

// New 创建绑定到上下文的仓储
func New[T entity.IEntity[K], K comparable](c dbcontext.IContext) (*Repository[T, K], error) {
	if c == nil {
		return nil, errors.NewError(errors.ErrCodeMissingContext, "persistence context is nil")
	}
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, errors.WrapError(orm.ErrInvalidModel, errors.ErrCodeInvalidInput,
			fmt.Sprintf("entity type %s must be a pointer to struct", t))
	}
	meta, err := orm.MetaOf(t.Elem())
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "invalid entity model "+t.String())
	}
	if err := c.Capabilities().Require(orm.CapabilityBasicCRUD); err != nil {
		return nil, errors.WrapDatabaseError(context.Background(), err, "bind repository "+meta.Table)
	}
	return &Repository[T, K]{ctx: c, meta: meta}, nil
}

// Context 返回绑定的持久化上下文
func (r *Repository[T, K]) Context() dbcontext.IContext { return r.ctx }

// Meta 返回实体模型元数据
func (r *Repository[T, K]) Meta() *orm.ModelMeta { return r.meta }

func (r *Repository[T, K]) entitySet() (dbcontext.IEntitySet, error) {
	return r.ctx.Set(r.meta)
}

func (r *Repository[T, K]) capabilities() orm.Capabilities {
	return r.ctx.Capabilities()
}

// Find 组合查询的入口：默认匹配全部、按主键升序、不分页
func (r *Repository[T, K]) Find(opts ...Option) *Query[T] {
	return &Query[T]{src: r, opts: orm.CollectQueryOptions(opts...)}
}

// GetAll 全部实体，按主键升序
func (r *Repository[T, K]) GetAll(opts ...Option) *Query[T] {
	return r.Find(opts...)
}

// Get 按主键获取单个实体。没有匹配时返回 NotFound，多于一条时返回 AmbiguousResult
func (r *Repository[T, K]) Get(ctx context.Context, key K, opts ...Option) (T, error) {
	opts = append([]Option{Where(orm.Eq(r.meta.PrimaryKey().Column, key))}, opts...)
	return r.Find(opts...).Single(ctx)
}

// GetByID 兼容 repository.IRepository
func (r *Repository[T, K]) GetByID(ctx context.Context, id K) (T, error) {
	return r.Get(ctx, id)
}

// List 偏移/限制列表，limit <= 0 表示不限
func (r *Repository[T, K]) List(ctx context.Context, offset, limit int) ([]T, error) {
	q := r.Find(Skip(offset))
	if limit > 0 {
		q = q.Top(limit)
	}
	return q.List(ctx)
}

// Count 统计总数
func (r *Repository[T, K]) Count(ctx context.Context) (int64, error) {
	return r.Find().Count(ctx)
}

// Exists 检查主键对应的实体是否存在
func (r *Repository[T, K]) Exists(ctx context.Context, id K) (bool, error) {
	n, err := r.Find(Where(orm.Eq(r.meta.PrimaryKey().Column, id))).Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Add 暂存新增。实现 IValidatable 的实体先校验
func (r *Repository[T, K]) Add(e T) (T, error) {
	if err := r.stage(e, "add", func(set dbcontext.IEntitySet) error { return set.Add(e) }); err != nil {
		var zero T
		return zero, err
	}
	return e, nil
}

// AddRange 批量暂存新增，遇到第一个错误即停止
func (r *Repository[T, K]) AddRange(es []T) ([]T, error) {
	for _, e := range es {
		if _, err := r.Add(e); err != nil {
			return nil, err
		}
	}
	return es, nil
}

// Update 无条件标记为修改，返回该实体
func (r *Repository[T, K]) Update(e T) (T, error) {
	if err := r.stage(e, "update", func(set dbcontext.IEntitySet) error { return set.Update(e) }); err != nil {
		var zero T
		return zero, err
	}
	return e, nil
}

// UpdateRange 批量标记修改，遇到第一个错误即停止
func (r *Repository[T, K]) UpdateRange(es []T) ([]T, error) {
	for _, e := range es {
		if _, err := r.Update(e); err != nil {
			return nil, err
		}
	}
	return es, nil
}

// Remove 暂存删除，返回被删除的实体
func (r *Repository[T, K]) Remove(e T) (T, error) {
	var zero T
	if isNil(e) {
		return zero, errors.NewError(errors.ErrCodeInvalidInput, "entity is nil")
	}
	set, err := r.entitySet()
	if err != nil {
		return zero, errors.WrapDatabaseError(context.Background(), err, "remove")
	}
	if err := set.Remove(e); err != nil {
		return zero, errors.WrapDatabaseError(context.Background(), err, "remove "+r.meta.Table)
	}
	return e, nil
}

// RemoveByKey 先按主键解析实体再暂存删除，返回被删除的实体
func (r *Repository[T, K]) RemoveByKey(ctx context.Context, key K) (T, error) {
	e, err := r.Get(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.Remove(e)
}

// RemoveRange 批量暂存删除，返回被删除的实体
func (r *Repository[T, K]) RemoveRange(es []T) ([]T, error) {
	for _, e := range es {
		if _, err := r.Remove(e); err != nil {
			return nil, err
		}
	}
	return es, nil
}

// RemoveRangeByKeys 删除存在的主键对应的实体，不存在的主键被忽略
func (r *Repository[T, K]) RemoveRangeByKeys(ctx context.Context, keys []K) ([]T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals := make([]any, len(keys))
	for i, k := range keys {
		vals[i] = k
	}
	found, err := r.Find(Where(orm.In(r.meta.PrimaryKey().Column, vals...))).List(ctx)
	if err != nil {
		return nil, err
	}
	return r.RemoveRange(found)
}

// Commit 落库所绑定上下文的全部暂存变更（包括其他仓储暂存的变更）
func (r *Repository[T, K]) Commit(ctx context.Context) (int, error) {
	n, err := r.ctx.SaveChanges(ctx)
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "commit "+r.ctx.Name())
	}
	return n, nil
}

// Rollback 丢弃所绑定上下文的暂存变更
func (r *Repository[T, K]) Rollback(ctx context.Context) error {
	if err := r.ctx.Discard(ctx); err != nil {
		return errors.WrapDatabaseError(ctx, err, "rollback "+r.ctx.Name())
	}
	return nil
}

func (r *Repository[T, K]) stage(e T, op string, fn func(dbcontext.IEntitySet) error) error {
	if isNil(e) {
		return errors.NewError(errors.ErrCodeInvalidInput, "entity is nil")
	}
	if v, ok := any(e).(entity.IValidatable); ok {
		if err := v.Validate(); err != nil {
			return errors.WrapError(err, errors.ErrCodeValidation, op+" "+r.meta.Table+": validation failed")
		}
	}
	set, err := r.entitySet()
	if err != nil {
		return errors.WrapDatabaseError(context.Background(), err, op)
	}
	if err := fn(set); err != nil {
		return errors.WrapDatabaseError(context.Background(), err, op+" "+r.meta.Table)
	}
	return nil
}

func isNil[T any](e T) bool {
	v := reflect.ValueOf(e)
	return !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil())
}
