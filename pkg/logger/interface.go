package logger

import "context"

// Logger 键值对风格的结构化日志
// 除本包外的代码只依赖该接口，不直接引用 zap
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)

	// Context 版本额外输出 ContextExtractor 从 ctx 中取出的字段，例如 request_id
	DebugContext(ctx context.Context, msg string, keysAndValues ...any)
	InfoContext(ctx context.Context, msg string, keysAndValues ...any)
	WarnContext(ctx context.Context, msg string, keysAndValues ...any)
	ErrorContext(ctx context.Context, msg string, keysAndValues ...any)

	// Named 名称以 . 拼接，例如 remoted.server
	Named(name string) Logger
	WithFields(keysAndValues ...any) Logger

	Sync() error
}
