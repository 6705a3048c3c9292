// Package errors 提供数据访问层统一的错误码体系。
//
// 仓储、工作单元与事务包装器返回的错误都是 *AppError，
// 调用方通过 ErrorCode 区分 NotFound / AmbiguousResult / MissingContext /
// StorageFailure / TransactionMisuse，底层驱动错误作为 cause 保留。
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 预定义错误代码
const (
	// 通用错误代码
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"

	// 业务错误代码
	ErrCodeValidation  ErrorCode = "VALIDATION_ERROR"
	ErrCodeDuplicate   ErrorCode = "DUPLICATE_ERROR"
	ErrCodeConcurrency ErrorCode = "CONCURRENCY_ERROR"

	// 数据访问层错误代码
	ErrCodeAmbiguousResult   ErrorCode = "AMBIGUOUS_RESULT"
	ErrCodeMissingContext    ErrorCode = "MISSING_CONTEXT"
	ErrCodeTransactionMisuse ErrorCode = "TRANSACTION_MISUSE"
	ErrCodeDisposed          ErrorCode = "DISPOSED"

	// 基础设施错误代码（StorageFailure）
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// IError 错误接口
type IError interface {
	error

	// 获取错误代码
	Code() ErrorCode

	// 获取错误消息
	Message() string

	// 获取原始错误
	Cause() error

	// 获取错误详情
	Details() map[string]any

	// 获取堆栈信息
	Stack() string

	// 是否为指定类型的错误
	Is(target error) bool

	// 包装错误
	Wrap(msg string) IError

	// 添加详情
	WithDetails(details map[string]any) IError

	// 添加上下文
	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{
		code:    code,
		message: message,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// WrapError 包装错误
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}

	return &AppError{
		code:    code,
		message: message,
		cause:   err,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Code 获取错误代码
func (e *AppError) Code() ErrorCode {
	return e.code
}

// Message 获取错误消息
func (e *AppError) Message() string {
	return e.message
}

// Cause 获取原始错误
func (e *AppError) Cause() error {
	return e.cause
}

// Details 获取错误详情
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

// Stack 获取堆栈信息
func (e *AppError) Stack() string {
	return e.stack
}

// Is 检查是否为指定类型的错误。同错误码的 AppError 视为相同。
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}

	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}

	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}

	return false
}

// Unwrap 解包错误（支持 errors.Unwrap）
func (e *AppError) Unwrap() error {
	return e.cause
}

// Wrap 包装错误
func (e *AppError) Wrap(msg string) IError {
	return &AppError{
		code:    e.code,
		message: fmt.Sprintf("%s: %s", msg, e.message),
		cause:   e,
		details: copyMap(e.details),
		stack:   captureStack(),
	}
}

// WithDetails 添加详情
func (e *AppError) WithDetails(details map[string]any) IError {
	newDetails := copyMap(e.details)
	for k, v := range details {
		newDetails[k] = v
	}

	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: newDetails,
		stack:   e.stack,
	}
}

// WithContext 添加上下文
func (e *AppError) WithContext(key string, value any) IError {
	newDetails := copyMap(e.details)
	newDetails[key] = value

	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: newDetails,
		stack:   e.stack,
	}
}

// 预定义错误变量，仅用于 errors.Is 按错误码比较
var (
	ErrInternal          = NewError(ErrCodeInternal, "内部错误")
	ErrInvalidInput      = NewError(ErrCodeInvalidInput, "无效的输入参数")
	ErrNotFound          = NewError(ErrCodeNotFound, "实体未找到")
	ErrConflict          = NewError(ErrCodeConflict, "资源冲突")
	ErrValidation        = NewError(ErrCodeValidation, "数据验证失败")
	ErrDuplicate         = NewError(ErrCodeDuplicate, "数据重复")
	ErrConcurrency       = NewError(ErrCodeConcurrency, "并发冲突")
	ErrAmbiguousResult   = NewError(ErrCodeAmbiguousResult, "唯一键匹配到多条记录")
	ErrMissingContext    = NewError(ErrCodeMissingContext, "持久化上下文未注册")
	ErrTransactionMisuse = NewError(ErrCodeTransactionMisuse, "事务使用不当")
	ErrDisposed          = NewError(ErrCodeDisposed, "对象已释放")
	ErrDatabase          = NewError(ErrCodeDatabase, "数据库错误")
)

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsAmbiguous 检查是否为唯一键多匹配错误
func IsAmbiguous(err error) bool {
	return IsErrorCode(err, ErrCodeAmbiguousResult)
}

// IsMissingContext 检查是否为上下文缺失错误
func IsMissingContext(err error) bool {
	return IsErrorCode(err, ErrCodeMissingContext)
}

// IsStorageFailure 检查是否为底层存储失败
func IsStorageFailure(err error) bool {
	return IsErrorCode(err, ErrCodeDatabase)
}

// IsTransactionMisuse 检查是否为事务误用
func IsTransactionMisuse(err error) bool {
	return IsErrorCode(err, ErrCodeTransactionMisuse)
}

// IsValidation 检查是否为验证错误
func IsValidation(err error) bool {
	return IsErrorCode(err, ErrCodeValidation)
}

// IsConflict 检查是否为冲突类错误：冲突、重复、并发、多匹配，
// 以及细分原因为约束冲突的存储失败
func IsConflict(err error) bool {
	var appErr *AppError
	if !stdErrors.As(err, &appErr) {
		return false
	}
	switch appErr.code {
	case ErrCodeConflict, ErrCodeDuplicate, ErrCodeConcurrency, ErrCodeAmbiguousResult:
		return true
	case ErrCodeDatabase:
		switch appErr.details["reason"] {
		case string(ErrCodeDuplicate), string(ErrCodeConcurrency), string(ErrCodeConflict):
			return true
		}
	}
	return false
}

// IsErrorCode 检查错误链上最外层 AppError 的错误代码
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}

	return false
}

// GetErrorCode 获取错误代码
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}

	return ErrCodeInternal
}

// captureStack 捕获堆栈信息
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		builder.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))

		if !more {
			break
		}
	}

	return builder.String()
}

// copyMap 复制映射
func copyMap(original map[string]any) map[string]any {
	if original == nil {
		return make(map[string]any)
	}

	copied := make(map[string]any, len(original))
	for k, v := range original {
		copied[k] = v
	}

	return copied
}
