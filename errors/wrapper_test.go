package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gochen-data/data/dbcontext"
	"gochen-data/data/orm"
)

func TestWrap(t *testing.T) {
	ctx := context.Background()
	original := errors.New("原始错误")

	wrapped := Wrap(ctx, original, ErrCodeInternal, "包装消息")
	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, original)
	assert.Equal(t, ErrCodeInternal, GetErrorCode(wrapped))

	assert.NoError(t, Wrap(ctx, nil, ErrCodeInternal, "消息"))
}

func TestWrapDatabaseError(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, WrapDatabaseError(ctx, nil, "noop"))

	driverErr := errors.New("connection reset")
	err := WrapDatabaseError(ctx, driverErr, "查询用户")
	assert.True(t, IsStorageFailure(err))
	assert.ErrorIs(t, err, driverErr, "驱动错误可通过 errors.Is 访问")

	err = WrapDatabaseError(ctx, fmt.Errorf("load: %w", sql.ErrNoRows), "查询用户")
	assert.True(t, IsNotFound(err))

	err = WrapDatabaseError(ctx, &orm.UnsupportedError{Capability: orm.CapabilityRawFilter}, "查询")
	assert.True(t, IsStorageFailure(err), "能力缺失按存储失败上报")
	assert.ErrorIs(t, err, orm.ErrUnsupported)

	err = WrapDatabaseError(ctx, fmt.Errorf("orders: %w", dbcontext.ErrDuplicateKey), "commit")
	assert.True(t, IsStorageFailure(err), "约束冲突属于存储失败")
	assert.ErrorIs(t, err, dbcontext.ErrDuplicateKey)
	var appErr IError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, string(ErrCodeDuplicate), appErr.Details()["reason"])

	err = WrapDatabaseError(ctx, dbcontext.ErrNoTransaction, "commit")
	assert.True(t, IsTransactionMisuse(err))

	already := NewError(ErrCodeAmbiguousResult, "两条记录")
	assert.Same(t, already, WrapDatabaseError(ctx, already, "get"))
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{orm.ErrNotFound, ErrCodeNotFound},
		{dbcontext.ErrNoTransaction, ErrCodeTransactionMisuse},
		{dbcontext.ErrTransactionActive, ErrCodeTransactionMisuse},
		{dbcontext.ErrContextClosed, ErrCodeDisposed},
		{fmt.Errorf("orders key 3: %w", dbcontext.ErrStaleEntity), ErrCodeConcurrency},
		{dbcontext.ErrDuplicateKey, ErrCodeDuplicate},
		{dbcontext.ErrIdentityConflict, ErrCodeConflict},
		{orm.ErrUnknownColumn, ErrCodeInvalidInput},
		{orm.ErrUnsafeIdentifier, ErrCodeInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			got := Normalize(tc.err)
			assert.Equal(t, tc.code, GetErrorCode(got))
			assert.ErrorIs(t, got, tc.err)
		})
	}

	plain := errors.New("boom")
	assert.Same(t, plain, Normalize(plain))
	assert.NoError(t, Normalize(nil))
}

func TestAppError_IsByCode(t *testing.T) {
	err := NewError(ErrCodeMissingContext, "orders 未注册")
	assert.ErrorIs(t, err, ErrMissingContext)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.True(t, IsMissingContext(fmt.Errorf("resolve: %w", err)))

	withDetails := NewError(ErrCodeDatabase, "提交失败").WithContext("committed", []string{"a"})
	assert.Equal(t, []string{"a"}, withDetails.Details()["committed"])
}

func TestIsConflict(t *testing.T) {
	ctx := context.Background()

	assert.False(t, IsConflict(nil))
	assert.False(t, IsConflict(errors.New("plain")))
	assert.True(t, IsConflict(NewError(ErrCodeAmbiguousResult, "两条记录")))
	assert.True(t, IsConflict(fmt.Errorf("save: %w", ErrConcurrency)))
	assert.False(t, IsConflict(NewError(ErrCodeNotFound, "不存在")))

	dup := WrapDatabaseError(ctx, dbcontext.ErrDuplicateKey, "commit")
	assert.True(t, IsStorageFailure(dup))
	assert.True(t, IsConflict(dup), "约束冲突的存储失败视为冲突")

	stale := WrapDatabaseError(ctx, dbcontext.ErrStaleEntity, "commit")
	assert.True(t, IsConflict(stale))

	assert.False(t, IsConflict(WrapDatabaseError(ctx, errors.New("disk full"), "commit")))
}
