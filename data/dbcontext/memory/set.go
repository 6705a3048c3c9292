package memory

import (
	"context"

	"gochen-data/data/dbcontext"
	"gochen-data/data/orm"
)

type entitySet struct {
	c    *Context
	meta *orm.ModelMeta
}

func (s *entitySet) Meta() *orm.ModelMeta { return s.meta }

// Query 过滤 → 排序 → 分页 → 物化（按需跟踪）→ 预加载
func (s *entitySet) Query(ctx context.Context, opts orm.QueryOptions) ([]any, error) {
	if s.c.closed {
		return nil, dbcontext.ErrContextClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts, err := opts.Resolve(s.meta)
	if err != nil {
		return nil, err
	}
	if opts.Where.HasRaw() {
		return nil, &orm.UnsupportedError{Capability: orm.CapabilityRawFilter}
	}

	rows, err := s.c.store.selectRows(s.meta.Table, opts.Where)
	if err != nil {
		return nil, err
	}
	if err := orm.SortRows(rows, opts.OrderBy); err != nil {
		return nil, err
	}
	rows = orm.Paginate(rows, opts.Offset, opts.Limit, opts.Limited)

	out := make([]any, 0, len(rows))
	for _, row := range rows {
		e := s.meta.New()
		if err := s.meta.Assign(e, row); err != nil {
			return nil, err
		}
		if !opts.NoTracking {
			if e, err = s.c.tracker.Attach(s.meta, e); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
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
	if where.HasRaw() {
		return 0, &orm.UnsupportedError{Capability: orm.CapabilityRawFilter}
	}
	return s.c.store.countRows(s.meta.Table, where)
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

// fetch 预加载使用，结果按主键升序且不进入跟踪
func (c *Context) fetch(ctx context.Context, target *orm.ModelMeta, column string, keys []any) ([]any, error) {
	rows, err := c.store.selectRows(target.Table, orm.In(column, keys...))
	if err != nil {
		return nil, err
	}
	if err := orm.SortRows(rows, []orm.OrderBy{orm.Asc(target.PrimaryKey().Column)}); err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		e := target.New()
		if err := target.Assign(e, row); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
