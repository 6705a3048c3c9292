package repo

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"gochen-data/data/dbcontext"
	"gochen-data/data/orm"
	"gochen-data/errors"
)

// source 查询执行所需的仓储能力
type source interface {
	entitySet() (dbcontext.IEntitySet, error)
	capabilities() orm.Capabilities
	Meta() *orm.ModelMeta
}

// stage 分页之后追加的一步组合，在取回的结果上于内存中执行
type stage struct {
	where   *orm.Predicate
	orders  []orm.OrderBy
	offset  int
	limit   int
	limited bool
}

// Query 延迟执行、可重复迭代的查询描述。
//
// 构造与组合不产生 I/O，All/List/First/Single/Count 时才访问持久化上下文；
// 组合方法返回新的描述，接收者保持不变。
// 组合按调用顺序生效：分页之前的 Where/OrderBy 下推到存储，
// 分页之后的 Where/OrderBy 只作用于已截取的那一页。
type Query[T any] struct {
	src  source
	opts orm.QueryOptions
	post []stage
}

func (q *Query[T]) with(fn func(*orm.QueryOptions)) *Query[T] {
	opts := q.opts.Clone()
	fn(&opts)
	return &Query[T]{src: q.src, opts: opts, post: q.post}
}

func (q *Query[T]) then(s stage) *Query[T] {
	post := append(append([]stage(nil), q.post...), s)
	return &Query[T]{src: q.src, opts: q.opts.Clone(), post: post}
}

// paged 已经分页，或已有分页后的组合
func (q *Query[T]) paged() bool {
	return len(q.post) > 0 || q.opts.Offset > 0 || q.opts.Limited
}

// Options 返回查询描述的副本
func (q *Query[T]) Options() orm.QueryOptions { return q.opts.Clone() }

// Where 追加过滤条件（AND）。已分页时只过滤当前页
func (q *Query[T]) Where(p orm.Predicate) *Query[T] {
	if q.paged() {
		return q.then(stage{where: &p})
	}
	return q.with(func(o *orm.QueryOptions) { o.Where = orm.And(o.Where, p) })
}

// OrderBy 替换排序。已分页时只对当前页稳定重排
func (q *Query[T]) OrderBy(orders ...orm.OrderBy) *Query[T] {
	if q.paged() {
		return q.then(stage{orders: append([]orm.OrderBy(nil), orders...)})
	}
	return q.with(func(o *orm.QueryOptions) {
		o.OrderBy = nil
		orm.WithOrderBy(orders...)(o)
	})
}

// Skip 在当前结果上再跳过 n 条
func (q *Query[T]) Skip(n int) *Query[T] {
	n = max(n, 0)
	if len(q.post) > 0 {
		return q.then(stage{offset: n})
	}
	return q.with(func(o *orm.QueryOptions) {
		o.Offset += n
		if o.Limited {
			o.Limit = max(o.Limit-n, 0)
		}
	})
}

// Top 在当前结果上最多保留 n 条
func (q *Query[T]) Top(n int) *Query[T] {
	n = max(n, 0)
	if len(q.post) > 0 {
		return q.then(stage{limit: n, limited: true})
	}
	return q.with(func(o *orm.QueryOptions) {
		if !o.Limited || n < o.Limit {
			o.Limit = n
		}
		o.Limited = true
	})
}

// Include 追加预加载路径，支持点分嵌套路径
func (q *Query[T]) Include(paths ...string) *Query[T] {
	return q.with(orm.WithPreload(paths...))
}

// AsNoTracking 返回不被跟踪的副本
func (q *Query[T]) AsNoTracking() *Query[T] {
	return q.with(orm.WithNoTracking())
}

// List 执行查询并物化结果
func (q *Query[T]) List(ctx context.Context) ([]T, error) {
	rows, err := q.run(ctx, q.opts)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.(T))
	}
	return out, nil
}

// All 以迭代器形式消费结果，每次迭代重新执行查询
func (q *Query[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		rows, err := q.run(ctx, q.opts)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for _, r := range rows {
			if !yield(r.(T), nil) {
				return
			}
		}
	}
}

// First 返回第一条结果，没有结果时返回 NotFound
func (q *Query[T]) First(ctx context.Context) (T, error) {
	var zero T
	items, err := q.Top(1).List(ctx)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, errors.NewError(errors.ErrCodeNotFound, "record not found")
	}
	return items[0], nil
}

// Single 要求恰好一条结果：没有时返回 NotFound，多于一条时返回 AmbiguousResult
func (q *Query[T]) Single(ctx context.Context) (T, error) {
	var zero T
	items, err := q.Top(2).List(ctx)
	if err != nil {
		return zero, err
	}
	switch len(items) {
	case 0:
		return zero, errors.NewError(errors.ErrCodeNotFound, "record not found")
	case 1:
		return items[0], nil
	default:
		return zero, errors.NewError(errors.ErrCodeAmbiguousResult, "more than one record matches").
			WithContext("where", q.opts.Where.String())
	}
}

// Count 统计分页后的结果条数
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	if len(q.post) > 0 {
		rows, err := q.run(ctx, q.opts)
		if err != nil {
			return 0, err
		}
		return int64(len(rows)), nil
	}
	if err := q.src.capabilities().Require(orm.CapabilityQuery); err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "count")
	}
	set, err := q.src.entitySet()
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "count")
	}
	total, err := set.Count(ctx, q.opts.Where)
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "count "+set.Meta().Table)
	}
	return orm.PagedCount(total, q.opts.Offset, q.opts.Limit, q.opts.Limited), nil
}

func (q *Query[T]) run(ctx context.Context, opts orm.QueryOptions) ([]any, error) {
	caps := []orm.Capability{orm.CapabilityQuery}
	if len(opts.Preload) > 0 {
		caps = append(caps, orm.CapabilityPreload)
	}
	if err := q.src.capabilities().Require(caps...); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "query")
	}
	set, err := q.src.entitySet()
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "query")
	}
	rows, err := set.Query(ctx, opts)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "query "+set.Meta().Table)
	}
	for _, s := range q.post {
		if rows, err = s.apply(q.src.Meta(), rows); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "query "+set.Meta().Table)
		}
	}
	return rows, nil
}

func (s stage) apply(meta *orm.ModelMeta, rows []any) ([]any, error) {
	switch {
	case s.where != nil:
		if err := s.where.Validate(meta); err != nil {
			return nil, err
		}
		out := make([]any, 0, len(rows))
		for _, e := range rows {
			vals, err := meta.Values(e)
			if err != nil {
				return nil, err
			}
			ok, err := orm.Evaluate(*s.where, vals)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, e)
			}
		}
		return out, nil
	case s.orders != nil:
		return sortEntities(meta, rows, s.orders)
	default:
		return orm.Paginate(rows, s.offset, s.limit, s.limited), nil
	}
}

// sortEntities 按给定列稳定排序，不追加主键次序键
func sortEntities(meta *orm.ModelMeta, rows []any, orders []orm.OrderBy) ([]any, error) {
	type keyed struct {
		e    any
		vals map[string]any
	}
	for _, o := range orders {
		if _, ok := meta.Field(o.Column); !ok {
			return nil, fmt.Errorf("%w: %s.%s", orm.ErrUnknownColumn, meta.Table, o.Column)
		}
	}
	items := make([]keyed, len(rows))
	for i, e := range rows {
		v, err := meta.Values(e)
		if err != nil {
			return nil, err
		}
		items[i] = keyed{e: e, vals: v}
	}
	var sortErr error
	slices.SortStableFunc(items, func(x, y keyed) int {
		c, err := orm.CompareRows(x.vals, y.vals, orders)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return c
	})
	if sortErr != nil {
		return nil, sortErr
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it.e
	}
	return out, nil
}
