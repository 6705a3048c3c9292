package uow

import (
	"context"
	stdErrors "errors"
	"fmt"

	"gochen-data/data/dbcontext"
	"gochen-data/errors"
	"gochen-data/logging"
)

// TxState 事务包装的状态
type TxState int

const (
	TxIdle TxState = iota
	TxBegun
	TxCommitted
	TxRolledBack
	TxDisposed
)

func (s TxState) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxBegun:
		return "begun"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled_back"
	case TxDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("TxState(%d)", int(s))
	}
}

// TxOption 事务包装选项
type TxOption func(*Transaction)

// OwnContext 事务释放时一并关闭上下文
func OwnContext() TxOption {
	return func(t *Transaction) { t.owns = true }
}

// WithTxLogger 设置日志
func WithTxLogger(l logging.Logger) TxOption {
	return func(t *Transaction) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithTxMetrics 设置指标
func WithTxMetrics(m *Metrics) TxOption {
	return func(t *Transaction) { t.metrics = m }
}

// Transaction 单上下文的提交或回滚包装。
//
// 状态流转为 Idle → Begun → Committed/RolledBack → Disposed。
// Commit 与 Rollback 结束后总会释放；不在 Begun 状态调用它们返回 TransactionMisuse。
type Transaction struct {
	c       dbcontext.IContext
	tx      dbcontext.ITransaction
	state   TxState
	outcome TxState
	owns    bool
	closed  bool
	logger  logging.Logger
	metrics *Metrics
}

// NewTransaction 创建事务包装，默认不拥有上下文
func NewTransaction(c dbcontext.IContext, opts ...TxOption) *Transaction {
	t := &Transaction{c: c, logger: logging.ComponentLogger("uow.tx")}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithFields(logging.String("context", c.Name()))
	return t
}

// State 当前状态
func (t *Transaction) State() TxState { return t.state }

// Outcome 结束时的状态：TxCommitted 或 TxRolledBack，尚未结束时为 TxIdle/TxBegun
func (t *Transaction) Outcome() TxState { return t.outcome }

// Context 包装的上下文
func (t *Transaction) Context() dbcontext.IContext { return t.c }

func (t *Transaction) misuse(op string) error {
	return errors.NewError(errors.ErrCodeTransactionMisuse,
		fmt.Sprintf("cannot %s transaction in state %s", op, t.state)).
		WithContext("context", t.c.Name())
}

// Begin 在上下文上开启事务
func (t *Transaction) Begin(ctx context.Context) error {
	if t.state != TxIdle {
		return t.misuse("begin")
	}
	tx, err := t.c.Begin(ctx)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "begin "+t.c.Name())
	}
	t.tx = tx
	t.state = TxBegun
	t.outcome = TxBegun
	t.logger.Debug(ctx, "事务开始")
	return nil
}

// Commit 在事务内落库暂存变更并提交。任一步失败都会回滚并返回原始失败
func (t *Transaction) Commit(ctx context.Context) (n int, err error) {
	if t.state != TxBegun {
		return 0, t.misuse("commit")
	}
	defer t.disposeInto(&err)

	n, err = t.c.SaveChanges(ctx)
	if err == nil {
		err = t.tx.Commit(ctx)
	}
	if err != nil {
		t.abort(ctx)
		t.metrics.recordTransaction(t.c.Name(), "failed")
		return 0, errors.WrapDatabaseError(ctx, err, "commit transaction "+t.c.Name())
	}
	t.state = TxCommitted
	t.outcome = TxCommitted
	t.metrics.recordTransaction(t.c.Name(), "committed")
	t.logger.Debug(ctx, "事务提交", logging.Int("rows", n))
	return n, nil
}

// Rollback 回滚事务并丢弃暂存变更
func (t *Transaction) Rollback(ctx context.Context) (err error) {
	if t.state != TxBegun {
		return t.misuse("rollback")
	}
	defer t.disposeInto(&err)

	err = t.tx.Rollback(ctx)
	if derr := t.c.Discard(ctx); derr != nil && err == nil {
		err = derr
	}
	t.state = TxRolledBack
	t.outcome = TxRolledBack
	t.metrics.recordTransaction(t.c.Name(), "rolled_back")
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "rollback transaction "+t.c.Name())
	}
	t.logger.Debug(ctx, "事务回滚")
	return nil
}

// abort 提交失败后的回滚，回滚自身的错误只记录日志
func (t *Transaction) abort(ctx context.Context) {
	if err := t.tx.Rollback(ctx); err != nil && !stdErrors.Is(err, dbcontext.ErrNoTransaction) {
		t.logger.Warn(ctx, "提交失败后回滚失败", logging.Error(err))
	}
	if err := t.c.Discard(ctx); err != nil {
		t.logger.Warn(ctx, "提交失败后丢弃变更失败", logging.Error(err))
	}
	t.state = TxRolledBack
	t.outcome = TxRolledBack
}

// Close 释放事务；仍在 Begun 状态时先回滚。重复调用无副作用
func (t *Transaction) Close() error {
	if t.closed {
		return nil
	}
	var err error
	if t.state == TxBegun {
		err = t.Rollback(context.Background())
	}
	if cerr := t.dispose(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// disposeInto 释放事务，上下文关闭失败时并入 *errp
func (t *Transaction) disposeInto(errp *error) {
	cerr := t.dispose()
	if cerr == nil {
		return
	}
	cerr = errors.WrapDatabaseError(context.Background(), cerr, "close context "+t.c.Name())
	if *errp == nil {
		*errp = cerr
		return
	}
	*errp = stdErrors.Join(*errp, cerr)
}

func (t *Transaction) dispose() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.state = TxDisposed
	t.tx = nil
	if t.owns {
		return t.c.Close()
	}
	return nil
}

// WithinTransaction 在事务中执行 fn：fn 成功则提交，返回错误或 panic 时回滚
func WithinTransaction(ctx context.Context, c dbcontext.IContext, fn func(tx *Transaction) error, opts ...TxOption) (n int, err error) {
	tx := NewTransaction(c, opts...)
	if err := tx.Begin(ctx); err != nil {
		return 0, err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Close()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			tx.logger.Warn(ctx, "回滚失败", logging.Error(rerr))
		}
		return 0, err
	}
	return tx.Commit(ctx)
}
