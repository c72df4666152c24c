package app

import (
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/httpremote/pkg/logger"
)

// Options 应用程序选项
type Options struct {
	// ID 进程实例 ID，默认随机生成
	ID          string
	Name        string
	StopTimeout time.Duration
	Logger      logger.Logger
	// PrintBanner 启动时向标准输出打印版本信息
	PrintBanner  bool
	NamedLoggers map[string]*logger.Config
}

type Option func(*Options)

func DefaultOptions() Options {
	return Options{
		ID:          uuid.NewString(),
		Name:        AppName,
		StopTimeout: 30 * time.Second,
		PrintBanner: true,
		Logger:      logger.Default(),
	}
}

// WithNamedLoggers 启动时按配置创建具名日志
func WithNamedLoggers(loggers map[string]*logger.Config) Option {
	return func(o *Options) { o.NamedLoggers = loggers }
}

// WithLogger 应用主日志，由调用方创建以便挂载钩子
func WithLogger(l logger.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithID(id string) Option {
	return func(o *Options) { o.ID = id }
}

func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// WithStopTimeout 等待所有 Server 停止的最长时间
func WithStopTimeout(t time.Duration) Option {
	return func(o *Options) { o.StopTimeout = t }
}

func WithBanner(enabled bool) Option {
	return func(o *Options) { o.PrintBanner = enabled }
}
