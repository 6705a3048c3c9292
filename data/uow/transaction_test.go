package uow

import (
	"context"
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gochen-data/data/dbcontext"
	"gochen-data/data/dbcontext/memory"
	"gochen-data/data/orm"
	"gochen-data/errors"
)

// failingContext 可注入落库与提交失败，并记录事务回滚次数
type failingContext struct {
	*countingContext
	saveErr   error
	commitErr error
	closeErr  error
	rollbacks int
}

func (f *failingContext) Close() error {
	if err := f.countingContext.Close(); err != nil {
		return err
	}
	return f.closeErr
}

func (f *failingContext) SaveChanges(ctx context.Context) (int, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	return f.countingContext.SaveChanges(ctx)
}

func (f *failingContext) Begin(ctx context.Context) (dbcontext.ITransaction, error) {
	tx, err := f.countingContext.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &spyTx{ITransaction: tx, f: f}, nil
}

type spyTx struct {
	dbcontext.ITransaction
	f *failingContext
}

func (s *spyTx) Commit(ctx context.Context) error {
	if s.f.commitErr != nil {
		return s.f.commitErr
	}
	return s.ITransaction.Commit(ctx)
}

func (s *spyTx) Rollback(ctx context.Context) error {
	s.f.rollbacks++
	return s.ITransaction.Rollback(ctx)
}

func newFailing(store *memory.Store) *failingContext {
	return &failingContext{countingContext: counting("catalog", store)}
}

func stageProduct(t *testing.T, c dbcontext.IContext, name string) *product {
	t.Helper()
	meta, err := orm.MetaFor[product]()
	require.NoError(t, err)
	set, err := c.Set(meta)
	require.NoError(t, err)
	p := &product{Name: name}
	require.NoError(t, set.Add(p))
	return p
}

func TestTransaction_Commit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := newFailing(store)
	tx := NewTransaction(c)

	require.NoError(t, tx.Begin(ctx))
	assert.Equal(t, TxBegun, tx.State())
	stageProduct(t, c, "lamp")

	n, err := tx.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, TxCommitted, tx.Outcome())
	assert.Equal(t, TxDisposed, tx.State())
	assert.Equal(t, 1, store.Count("products"))
	assert.False(t, c.InTransaction())
	assert.Zero(t, c.closeCount(), "默认不拥有上下文")
}

func TestTransaction_SaveFailureRollsBackAndDisposesOnce(t *testing.T) {
	ctx := context.Background()
	c := newFailing(memory.NewStore())
	storageErr := stdErrors.New("disk full")
	c.saveErr = storageErr
	tx := NewTransaction(c, OwnContext())

	require.NoError(t, tx.Begin(ctx))
	stageProduct(t, c, "lamp")

	_, err := tx.Commit(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsStorageFailure(err))
	assert.ErrorIs(t, err, storageErr, "返回原始失败")
	assert.Equal(t, 1, c.rollbacks, "失败后回滚，事务不会悬挂")
	assert.Equal(t, TxRolledBack, tx.Outcome())
	assert.Equal(t, TxDisposed, tx.State())
	assert.Equal(t, 1, c.closeCount())

	require.NoError(t, tx.Close())
	require.NoError(t, tx.Close())
	assert.Equal(t, 1, c.closeCount(), "只释放一次")
}

func TestTransaction_CommitFailureUndoesFlushedWrites(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := newFailing(store)
	c.commitErr = stdErrors.New("connection reset")
	tx := NewTransaction(c)

	require.NoError(t, tx.Begin(ctx))
	stageProduct(t, c, "lamp")

	_, err := tx.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, c.commitErr)
	assert.Equal(t, 1, c.rollbacks)
	assert.Zero(t, store.Count("products"), "已落库的写入随回滚撤销")
}

func TestTransaction_OwnedCloseFailureReported(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	closeErr := stdErrors.New("socket closed")

	c := newFailing(store)
	c.closeErr = closeErr
	tx := NewTransaction(c, OwnContext())
	require.NoError(t, tx.Begin(ctx))
	stageProduct(t, c, "lamp")

	n, err := tx.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, closeErr)
	assert.True(t, errors.IsStorageFailure(err))
	assert.Equal(t, 1, n, "提交已生效")
	assert.Equal(t, TxCommitted, tx.Outcome())
	assert.Equal(t, 1, store.Count("products"))

	c = newFailing(store)
	c.closeErr = closeErr
	c.saveErr = stdErrors.New("disk full")
	tx = NewTransaction(c, OwnContext())
	require.NoError(t, tx.Begin(ctx))
	_, err = tx.Commit(ctx)
	assert.ErrorIs(t, err, c.saveErr, "保留原始失败")
	assert.ErrorIs(t, err, closeErr)

	c = newFailing(store)
	c.closeErr = closeErr
	tx = NewTransaction(c, OwnContext())
	require.NoError(t, tx.Begin(ctx))
	assert.ErrorIs(t, tx.Rollback(ctx), closeErr)
	assert.Equal(t, 1, c.closeCount())
	require.NoError(t, tx.Close(), "已释放的事务不再关闭上下文")
}

func TestTransaction_Rollback(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := newFailing(store)
	tx := NewTransaction(c)

	require.NoError(t, tx.Begin(ctx))
	stageProduct(t, c, "lamp")
	_, err := c.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count("products"))

	require.NoError(t, tx.Rollback(ctx))
	assert.Zero(t, store.Count("products"))
	assert.Equal(t, TxRolledBack, tx.Outcome())
	assert.False(t, c.InTransaction())
}

func TestTransaction_Misuse(t *testing.T) {
	ctx := context.Background()
	c := newFailing(memory.NewStore())

	idle := NewTransaction(c)
	_, err := idle.Commit(ctx)
	assert.True(t, errors.IsTransactionMisuse(err))
	assert.True(t, errors.IsTransactionMisuse(idle.Rollback(ctx)))

	tx := NewTransaction(c)
	require.NoError(t, tx.Begin(ctx))
	assert.True(t, errors.IsTransactionMisuse(tx.Begin(ctx)))

	second := NewTransaction(c)
	assert.True(t, errors.IsTransactionMisuse(second.Begin(ctx)), "同一上下文至多一个活动事务")

	require.NoError(t, tx.Rollback(ctx))
	_, err = tx.Commit(ctx)
	assert.True(t, errors.IsTransactionMisuse(err))
	assert.True(t, errors.IsTransactionMisuse(tx.Rollback(ctx)))
}

func TestTransaction_CloseRollsBackOpen(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := newFailing(store)
	tx := NewTransaction(c, OwnContext())

	require.NoError(t, tx.Begin(ctx))
	stageProduct(t, c, "lamp")
	_, err := c.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Close())
	require.NoError(t, tx.Close())
	assert.Equal(t, 1, c.rollbacks)
	assert.Equal(t, 1, c.closeCount())
	assert.Zero(t, store.Count("products"))
}

func TestWithinTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		store := memory.NewStore()
		c := newFailing(store)
		n, err := WithinTransaction(ctx, c, func(tx *Transaction) error {
			stageProduct(t, tx.Context(), "lamp")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, store.Count("products"))
	})

	t.Run("error", func(t *testing.T) {
		store := memory.NewStore()
		c := newFailing(store)
		boom := stdErrors.New("boom")
		_, err := WithinTransaction(ctx, c, func(tx *Transaction) error {
			stageProduct(t, tx.Context(), "lamp")
			if _, err := tx.Context().SaveChanges(ctx); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, store.Count("products"))
		assert.Equal(t, 1, c.rollbacks)
	})

	t.Run("panic", func(t *testing.T) {
		c := newFailing(memory.NewStore())
		assert.PanicsWithValue(t, "kaboom", func() {
			_, _ = WithinTransaction(ctx, c, func(tx *Transaction) error {
				panic("kaboom")
			})
		})
		assert.False(t, c.InTransaction())
		assert.Equal(t, 1, c.rollbacks)
	})
}
