package errors

import (
	"database/sql"
	stdErrors "errors"

	"gochen-data/data/dbcontext"
	"gochen-data/data/orm"
)

// Normalize 将持久化上下文与模型映射层的哨兵错误规范化为 AppError。
//
// 注意：
//   - 如果传入的 err 已经是 IError，则原样返回；
//   - 未识别的错误保持原样，不强行包装，交由调用方决定是否 Wrap。
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(IError); ok {
		return err
	}
	if normalized, ok := normalize(err); ok {
		return normalized
	}
	// orm.ErrUnsupported 等未识别的错误保持原样
	return err
}

func normalize(err error) (error, bool) {
	switch {
	case stdErrors.Is(err, orm.ErrNotFound), stdErrors.Is(err, sql.ErrNoRows):
		return WrapError(err, ErrCodeNotFound, "实体未找到"), true

	case stdErrors.Is(err, dbcontext.ErrNoTransaction):
		return WrapError(err, ErrCodeTransactionMisuse, "没有活动事务"), true
	case stdErrors.Is(err, dbcontext.ErrTransactionActive):
		return WrapError(err, ErrCodeTransactionMisuse, "事务已开启"), true
	case stdErrors.Is(err, dbcontext.ErrContextClosed):
		return WrapError(err, ErrCodeDisposed, "持久化上下文已关闭"), true

	case stdErrors.Is(err, dbcontext.ErrStaleEntity):
		return WrapError(err, ErrCodeConcurrency, "实体已被并发修改或删除"), true
	case stdErrors.Is(err, dbcontext.ErrDuplicateKey):
		return WrapError(err, ErrCodeDuplicate, "主键或唯一键冲突"), true
	case stdErrors.Is(err, dbcontext.ErrIdentityConflict):
		return WrapError(err, ErrCodeConflict, "同一主键已被另一个实例跟踪"), true

	case stdErrors.Is(err, orm.ErrUnknownColumn),
		stdErrors.Is(err, orm.ErrUnknownAssociation),
		stdErrors.Is(err, orm.ErrUnsafeIdentifier),
		stdErrors.Is(err, orm.ErrInvalidModel):
		return WrapError(err, ErrCodeInvalidInput, "无效的查询或模型"), true
	}
	return nil, false
}
