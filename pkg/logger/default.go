package logger

import (
	"context"
	"os"
	"sync"

	"github.com/lk2023060901/httpremote/pkg/config"
)

var (
	defaultLogger   Logger
	defaultLoggerMu sync.RWMutex
)

// InitDefault 初始化默认 logger
func InitDefault(cfg *Config, opts ...Option) error {
	l, err := New(cfg, opts...)
	if err != nil {
		return err
	}

	SetDefault(l)
	return nil
}

// InitDefaultFromEnv 从环境变量初始化默认 logger
// 环境变量前缀: HTTPREMOTE_LOG_
func InitDefaultFromEnv() error {
	envConfig := &Config{}

	if level := os.Getenv("HTTPREMOTE_LOG_LEVEL"); level != "" {
		envConfig.Level = Level(level)
	}
	if format := os.Getenv("HTTPREMOTE_LOG_FORMAT"); format != "" {
		envConfig.Format = Format(format)
	}
	if path := os.Getenv("HTTPREMOTE_LOG_PATH"); path != "" {
		envConfig.EnableFile = true
		envConfig.OutputPath = path
	}
	if os.Getenv("HTTPREMOTE_LOG_DEVELOPMENT") == "true" {
		envConfig.Development = true
	}

	mergedConfig, err := config.MergeConfig(DefaultConfig(), envConfig)
	if err != nil {
		return err
	}

	return InitDefault(mergedConfig)
}

// SetDefault 设置默认 logger
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = l
}

// Default 获取默认 logger
// 懒加载：未初始化时使用默认配置 (仅控制台输出)
func Default() Logger {
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	if defaultLogger == nil {
		created, err := New(DefaultConfig())
		if err != nil {
			panic(err)
		}
		defaultLogger = created
	}
	return defaultLogger
}

// --- 便捷函数 (使用默认 logger) ---

func Debug(msg string, keysAndValues ...any) {
	Default().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	Default().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	Default().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	Default().Error(msg, keysAndValues...)
}

func InfoContext(ctx context.Context, msg string, keysAndValues ...any) {
	Default().InfoContext(ctx, msg, keysAndValues...)
}

func ErrorContext(ctx context.Context, msg string, keysAndValues ...any) {
	Default().ErrorContext(ctx, msg, keysAndValues...)
}

func Named(name string) Logger {
	return Default().Named(name)
}

func Sync() error {
	return Default().Sync()
}
