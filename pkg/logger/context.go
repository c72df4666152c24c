package logger

import (
	"context"

	"go.uber.org/zap"
)

// ContextFieldExtractor 从 context 提取字段的函数类型
type ContextFieldExtractor func(ctx context.Context) []zap.Field

// DefaultContextExtractor 默认的 context 提取器（不提取任何字段）
func DefaultContextExtractor(ctx context.Context) []zap.Field {
	return nil
}

type requestIDKey struct{}

// WithRequestID 将请求 ID 写入 context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext 读取 context 中的请求 ID
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// RequestIDExtractor 提取 request_id 字段
func RequestIDExtractor(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		return []zap.Field{zap.String("request_id", id)}
	}
	return nil
}
