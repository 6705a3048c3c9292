package httpx

import (
	"context"

	"github.com/google/uuid"
)

// HeaderCorrelationID 请求与响应中携带 correlation ID 的头
const HeaderCorrelationID = "X-Correlation-ID"

type contextKey string

const contextKeyCorrelationID contextKey = "correlation_id"

// WithCorrelationID 在 context 中设置 correlation_id
//
// Correlation ID 标识一次请求及其工作单元，出现在提交、回滚相关的日志中。
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyCorrelationID, id)
}

// GetCorrelationID 从 context 中获取 correlation_id，不存在时返回空字符串
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextKeyCorrelationID).(string); ok {
		return id
	}
	return ""
}

// GenerateCorrelationID 生成新的 correlation ID
func GenerateCorrelationID() string {
	return "cor-" + uuid.NewString()
}
