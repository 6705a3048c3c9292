package errors

import (
	"context"
	"fmt"
	"runtime"

	"gochen-data/logging"
)

// Wrap 包装错误，添加错误码和上下文信息
func Wrap(ctx context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	wrapped := WrapError(err, code, msg)
	logging.GetLogger().Debug(ctx, "错误包装",
		logging.String("message", msg),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	)
	return wrapped
}

// WrapWithLog 包装错误并记录警告日志
func WrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	wrapped := WrapError(err, code, msg)

	allFields := append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	}, fields...)
	logging.GetLogger().Warn(ctx, msg, allFields...)

	return wrapped
}

// WrapDatabaseError 包装持久化层错误。
// 未找到、事务误用、上下文已关闭、无效查询按 Normalize 映射为对应错误码；
// 约束冲突与过期实体属于存储失败，与其余未识别错误一样包装为 DATABASE_ERROR，
// 细分原因记录在 details["reason"]，原始错误作为 cause 保留。
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(IError); ok {
		return err
	}

	reason := ErrCodeDatabase
	if normalized, ok := normalize(err); ok {
		code := GetErrorCode(normalized)
		switch code {
		case ErrCodeConcurrency, ErrCodeDuplicate, ErrCodeConflict:
			reason = code
		default:
			return normalized
		}
	}

	wrapped := WrapWithLog(ctx, err, ErrCodeDatabase,
		fmt.Sprintf("数据库操作失败: %s", operation),
		logging.String("operation", operation),
		logging.String("reason", string(reason)),
	)
	return wrapped.(IError).WithContext("reason", string(reason))
}
