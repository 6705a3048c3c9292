package sqlctx

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/Masterminds/squirrel"

	core "gochen-data/data/db"
	"gochen-data/data/dbcontext"
	"gochen-data/logging"
)

// SaveChanges 按暂存顺序执行 INSERT/UPDATE/DELETE。
// 更新或删除未命中任何行返回 ErrStaleEntity，唯一键冲突返回 ErrDuplicateKey（同时保留驱动错误）。
func (c *Context) SaveChanges(ctx context.Context) (n int, err error) {
	if c.closed {
		return 0, dbcontext.ErrContextClosed
	}
	pending := c.tracker.Pending()
	if len(pending) == 0 {
		return 0, nil
	}

	var q core.IQuerier
	var implicit core.ITransaction
	if c.tx != nil {
		q = c.tx.tx
	} else {
		implicit, err = c.db.Begin(ctx)
		if err != nil {
			return 0, err
		}
		q = implicit
	}

	var generated []*dbcontext.Entry
	defer func() {
		if err == nil {
			return
		}
		if implicit != nil {
			if rbErr := implicit.Rollback(); rbErr != nil {
				c.logger.Warn(ctx, "implicit transaction rollback failed", logging.Error(rbErr))
			}
		}
		for _, e := range generated {
			pk := e.Meta.PrimaryKey()
			_ = e.Meta.SetValue(e.Entity, pk.Column, reflect.Zero(pk.Type).Interface())
		}
	}()

	now := c.now()
	for _, e := range pending {
		switch e.State {
		case dbcontext.Added:
			gen, ierr := c.insert(ctx, q, e, now)
			if gen {
				generated = append(generated, e)
			}
			err = ierr
		case dbcontext.Modified:
			err = c.update(ctx, q, e)
		case dbcontext.Deleted:
			err = c.delete(ctx, q, e)
		}
		if err != nil {
			return 0, err
		}
	}

	if implicit != nil {
		if err = implicit.Commit(); err != nil {
			return 0, err
		}
	}
	if err = c.tracker.Accept(pending); err != nil {
		return 0, err
	}
	c.logger.Debug(ctx, "sql context saved changes", logging.Int("affected", len(pending)))
	return len(pending), nil
}

func (c *Context) insert(ctx context.Context, q core.IQuerier, e *dbcontext.Entry, now time.Time) (bool, error) {
	meta := e.Meta
	storeGenerated, err := dbcontext.PrepareInsert(meta, e.Entity, now)
	if err != nil {
		return false, err
	}
	row, err := meta.Values(e.Entity)
	if err != nil {
		return false, err
	}
	pk := meta.PrimaryKey().Column

	var cols []string
	var vals []any
	for _, col := range meta.Columns() {
		if storeGenerated && col == pk {
			continue
		}
		cols = append(cols, c.quote(col))
		vals = append(vals, row[col])
	}
	ib := squirrel.Insert(c.quote(meta.Table)).Columns(cols...).Values(vals...)

	if storeGenerated && c.dialect.SupportsReturning() {
		ib = ib.Suffix("RETURNING " + c.quote(pk))
		query, args, err := ib.ToSql()
		if err != nil {
			return false, fmt.Errorf("building insert query: %w", err)
		}
		var id int64
		if err := q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			return false, c.classify(meta.Table, err)
		}
		return true, meta.SetValue(e.Entity, pk, id)
	}

	query, args, err := ib.ToSql()
	if err != nil {
		return false, fmt.Errorf("building insert query: %w", err)
	}
	res, err := q.Exec(ctx, query, args...)
	if err != nil {
		return false, c.classify(meta.Table, err)
	}
	if !storeGenerated {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}
	return true, meta.SetValue(e.Entity, pk, id)
}

func (c *Context) update(ctx context.Context, q core.IQuerier, e *dbcontext.Entry) error {
	meta := e.Meta
	row, err := meta.Values(e.Entity)
	if err != nil {
		return err
	}
	pk := meta.PrimaryKey().Column

	ub := squirrel.Update(c.quote(meta.Table))
	for _, col := range meta.Columns() {
		if col == pk {
			continue
		}
		ub = ub.Set(c.quote(col), row[col])
	}
	query, args, err := ub.Where(squirrel.Eq{c.quote(pk): row[pk]}).ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	res, err := q.Exec(ctx, query, args...)
	if err != nil {
		return c.classify(meta.Table, err)
	}
	return expectRows(res, meta.Table, row[pk])
}

func (c *Context) delete(ctx context.Context, q core.IQuerier, e *dbcontext.Entry) error {
	meta := e.Meta
	key, err := meta.Key(e.Entity)
	if err != nil {
		return err
	}
	query, args, err := squirrel.Delete(c.quote(meta.Table)).
		Where(squirrel.Eq{c.quote(meta.PrimaryKey().Column): key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	res, err := q.Exec(ctx, query, args...)
	if err != nil {
		return c.classify(meta.Table, err)
	}
	return expectRows(res, meta.Table, key)
}

// classify 唯一键冲突同时匹配 ErrDuplicateKey 与驱动错误
func (c *Context) classify(table string, err error) error {
	if c.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s: %w", dbcontext.ErrDuplicateKey, table, err)
	}
	return err
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func expectRows(res rowsAffected, table string, key any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s key %v", dbcontext.ErrStaleEntity, table, key)
	}
	return nil
}
