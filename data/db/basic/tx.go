package basic

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	core "gochen-data/data/db"
	"gochen-data/data/db/dialect"
)

// Tx 事务实现，委托给 *sqlx.Tx；不支持嵌套事务，事务边界由上层协调
type Tx struct {
	tx      *sqlx.Tx
	dialect dialect.Dialect
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := t.tx.QueryxContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: t.tx.QueryRowxContext(ctx, t.dialect.Rebind(query), args...)}
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// GetDialectName 实现 core.IDialectNameProvider，便于在事务中复用方言能力
func (t *Tx) GetDialectName() string {
	return string(t.dialect.Name())
}
