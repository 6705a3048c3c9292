package orm

import (
	"fmt"
	"strings"
)

// OrderBy 表示排序字段。
type OrderBy struct {
	Column string
	Desc   bool
}

// Asc 升序
func Asc(column string) OrderBy { return OrderBy{Column: column} }

// Desc 降序
func Desc(column string) OrderBy { return OrderBy{Column: column, Desc: true} }

// QueryOptions 描述一次查询：过滤、排序、分页、预加载与跟踪方式。
//
// 语义顺序固定为：过滤 → 排序 → 跳过 Offset → 截取 Limit。
// Limited 为 false 时不限条数；为 true 时 Limit 可为 0（返回空结果）。
type QueryOptions struct {
	Where      Predicate
	OrderBy    []OrderBy
	Offset     int
	Limit      int
	Limited    bool
	Preload    []string
	NoTracking bool
}

// QueryOption 用于配置 QueryOptions。
type QueryOption func(*QueryOptions)

// WithWhere 追加查询条件，与已有条件取 AND。
func WithWhere(p Predicate) QueryOption {
	return func(opts *QueryOptions) {
		opts.Where = And(opts.Where, p)
	}
}

// WithOrderBy 追加排序。
func WithOrderBy(orders ...OrderBy) QueryOption {
	return func(opts *QueryOptions) {
		for _, o := range orders {
			if o.Column != "" {
				opts.OrderBy = append(opts.OrderBy, o)
			}
		}
	}
}

// WithLimit 设置查询条数上限，负数视为 0。
func WithLimit(limit int) QueryOption {
	return func(opts *QueryOptions) {
		opts.Limit = max(limit, 0)
		opts.Limited = true
	}
}

// WithOffset 设置查询偏移，负数视为 0。
func WithOffset(offset int) QueryOption {
	return func(opts *QueryOptions) {
		opts.Offset = max(offset, 0)
	}
}

// WithPreload 追加预加载关联路径。
func WithPreload(paths ...string) QueryOption {
	return func(opts *QueryOptions) {
		for _, p := range paths {
			if p = strings.TrimSpace(p); p != "" {
				opts.Preload = append(opts.Preload, p)
			}
		}
	}
}

// WithNoTracking 结果不进入变更跟踪。
func WithNoTracking() QueryOption {
	return func(opts *QueryOptions) {
		opts.NoTracking = true
	}
}

// CollectQueryOptions 聚合 QueryOption，方便上下文读取。
func CollectQueryOptions(options ...QueryOption) QueryOptions {
	var opts QueryOptions
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}
	return opts
}

// Clone 深拷贝切片字段，便于在不可变查询描述间传递。
func (o QueryOptions) Clone() QueryOptions {
	o.OrderBy = append([]OrderBy(nil), o.OrderBy...)
	o.Preload = append([]string(nil), o.Preload...)
	return o
}

// Resolve 校验并补全查询选项：
// 排序为空时按主键升序，否则追加主键作为次序键，保证分页结果确定。
func (o QueryOptions) Resolve(meta *ModelMeta) (QueryOptions, error) {
	out := o.Clone()
	if err := out.Where.Validate(meta); err != nil {
		return out, err
	}
	pk := meta.PrimaryKey().Column
	hasPK := false
	for _, ob := range out.OrderBy {
		if !IsSafeIdentifier(ob.Column) {
			return out, fmt.Errorf("%w: order column %q", ErrUnsafeIdentifier, ob.Column)
		}
		if _, ok := meta.Field(ob.Column); !ok {
			return out, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, meta.Table, ob.Column)
		}
		if ob.Column == pk {
			hasPK = true
		}
	}
	if !hasPK {
		out.OrderBy = append(out.OrderBy, Asc(pk))
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	if out.Limit < 0 {
		out.Limit = 0
	}
	for _, path := range out.Preload {
		if _, err := ResolvePath(meta, path); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Paginate 对已排序结果应用 Offset/Limit。
func Paginate[E any](items []E, offset, limit int, limited bool) []E {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[max(offset, 0):]
	if limited && limit < len(items) {
		items = items[:max(limit, 0)]
	}
	return items
}

// PagedCount 由总匹配数推算分页后的条数。
func PagedCount(total int64, offset, limit int, limited bool) int64 {
	n := max(total-int64(max(offset, 0)), 0)
	if limited && int64(limit) < n {
		n = int64(max(limit, 0))
	}
	return n
}
