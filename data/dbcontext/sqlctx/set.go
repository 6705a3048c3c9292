package sqlctx

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"gochen-data/data/dbcontext"
	"gochen-data/data/orm"
	"gochen-data/logging"
)

type entitySet struct {
	c    *Context
	meta *orm.ModelMeta
}

func (s *entitySet) Meta() *orm.ModelMeta { return s.meta }

func (s *entitySet) Query(ctx context.Context, opts orm.QueryOptions) ([]any, error) {
	if s.c.closed {
		return nil, dbcontext.ErrContextClosed
	}
	opts, err := opts.Resolve(s.meta)
	if err != nil {
		return nil, err
	}

	qb, err := s.c.selectFrom(s.meta, opts.Where)
	if err != nil {
		return nil, err
	}
	for _, ob := range opts.OrderBy {
		dir := "ASC"
		if ob.Desc {
			dir = "DESC"
		}
		qb = qb.OrderBy(s.c.quote(ob.Column) + " " + dir)
	}
	switch {
	case opts.Limited:
		qb = qb.Limit(uint64(opts.Limit))
		if opts.Offset > 0 {
			qb = qb.Offset(uint64(opts.Offset))
		}
	case opts.Offset > 0 && s.c.dialect.RequiresLimitForOffset():
		qb = qb.Suffix(fmt.Sprintf("LIMIT %s OFFSET %d", s.c.dialect.UnboundedLimit(), opts.Offset))
	case opts.Offset > 0:
		qb = qb.Offset(uint64(opts.Offset))
	}

	out, err := s.c.load(ctx, s.meta, qb)
	if err != nil {
		return nil, err
	}
	if !opts.NoTracking {
		for i, e := range out {
			if out[i], err = s.c.tracker.Attach(s.meta, e); err != nil {
				return nil, err
			}
		}
	}
	if len(opts.Preload) > 0 {
		if err := orm.Preload(ctx, s.meta, out, opts.Preload, s.c.fetch); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *entitySet) Count(ctx context.Context, where orm.Predicate) (int64, error) {
	if s.c.closed {
		return 0, dbcontext.ErrContextClosed
	}
	if err := where.Validate(s.meta); err != nil {
		return 0, err
	}
	cond, err := toSqlizer(where, s.c.quote)
	if err != nil {
		return 0, err
	}
	query, args, err := squirrel.Select("COUNT(*)").
		From(s.c.quote(s.meta.Table)).
		Where(cond).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}
	var n int64
	if err := s.c.querier().QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *entitySet) Add(entity any) error {
	if s.c.closed {
		return dbcontext.ErrContextClosed
	}
	return s.c.tracker.Add(s.meta, entity)
}

func (s *entitySet) Update(entity any) error {
	if s.c.closed {
		return dbcontext.ErrContextClosed
	}
	return s.c.tracker.Update(s.meta, entity)
}

func (s *entitySet) Remove(entity any) error {
	if s.c.closed {
		return dbcontext.ErrContextClosed
	}
	return s.c.tracker.Remove(s.meta, entity)
}

func (s *entitySet) State(entity any) dbcontext.EntityState {
	return s.c.tracker.State(entity)
}

func (c *Context) selectFrom(meta *orm.ModelMeta, where orm.Predicate) (squirrel.SelectBuilder, error) {
	cols := meta.Columns()
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = c.quote(col)
	}
	qb := squirrel.Select(quoted...).From(c.quote(meta.Table))
	if where.IsAll() {
		return qb, nil
	}
	cond, err := toSqlizer(where, c.quote)
	if err != nil {
		return qb, err
	}
	return qb.Where(cond), nil
}

// load 执行查询并物化为模型指针，不做跟踪
func (c *Context) load(ctx context.Context, meta *orm.ModelMeta, qb squirrel.SelectBuilder) ([]any, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	c.logger.Debug(ctx, "sql query", logging.String("table", meta.Table), logging.String("sql", query))

	rows, err := c.querier().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []any
	for rows.Next() {
		e := meta.New()
		dest, err := meta.ScanTargets(e, columns)
		if err != nil {
			return nil, err
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", meta.Table, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetch 预加载使用：每条路径每层一次 IN 查询，结果按主键升序
func (c *Context) fetch(ctx context.Context, target *orm.ModelMeta, column string, keys []any) ([]any, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	qb, err := c.selectFrom(target, orm.In(column, keys...))
	if err != nil {
		return nil, err
	}
	qb = qb.OrderBy(c.quote(target.PrimaryKey().Column) + " ASC")
	return c.load(ctx, target, qb)
}
