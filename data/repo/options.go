package repo

import "gochen-data/data/orm"

// Option 配置 Find/GetAll/Get
type Option = orm.QueryOption

// Where 过滤条件，多次使用取 AND
func Where(p orm.Predicate) Option { return orm.WithWhere(p) }

// OrderBy 排序，未指定时按主键升序
func OrderBy(orders ...orm.OrderBy) Option { return orm.WithOrderBy(orders...) }

// Skip 跳过前 n 条
func Skip(n int) Option { return orm.WithOffset(n) }

// Top 最多返回 n 条
func Top(n int) Option { return orm.WithLimit(n) }

// WithIncludes 逗号分隔的预加载路径，如 "Orders,Orders.Lines"
func WithIncludes(csv string) Option {
	return orm.WithPreload(orm.SplitIncludes(csv)...)
}

// ReadOnly 返回不被跟踪的副本
func ReadOnly() Option { return orm.WithNoTracking() }
