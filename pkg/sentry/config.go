package sentry

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/getsentry/sentry-go"
)

var (
	ErrInvalidConfig = errors.New("sentry: invalid config")
	ErrInvalidDSN    = errors.New("sentry: invalid DSN")
	ErrClientClosed  = errors.New("sentry: client closed")
)

// Config Sentry 配置，DSN 为空时不上报
type Config struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
	Release     string `mapstructure:"release"`
	ServerName  string `mapstructure:"server_name"`

	// SampleRate 错误采样率 (0.0-1.0)
	SampleRate       float64 `mapstructure:"sample_rate"`
	AttachStacktrace bool    `mapstructure:"attach_stacktrace"`
	MaxBreadcrumbs   int     `mapstructure:"max_breadcrumbs"`

	// MinLevel 日志达到该级别时上报（warn / error / fatal）
	MinLevel string `mapstructure:"min_level"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Debug           bool          `mapstructure:"debug"`

	Tags map[string]string `mapstructure:"tags"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Environment:      "production",
		SampleRate:       1.0,
		AttachStacktrace: true,
		MaxBreadcrumbs:   100,
		MinLevel:         "error",
		ShutdownTimeout:  2 * time.Second,
	}
}

// Enabled 配置了 DSN 才启用
func (c *Config) Enabled() bool {
	return c != nil && c.DSN != ""
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c == nil || c.DSN == "" {
		return ErrInvalidDSN
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return ErrInvalidConfig
	}
	if c.MaxBreadcrumbs < 0 {
		return ErrInvalidConfig
	}
	if _, err := parseLevel(c.MinLevel); err != nil {
		return err
	}
	return nil
}

func (c *Config) toClientOptions() sentry.ClientOptions {
	return sentry.ClientOptions{
		Dsn:              c.DSN,
		Environment:      c.Environment,
		Release:          c.Release,
		ServerName:       c.ServerName,
		SampleRate:       c.SampleRate,
		AttachStacktrace: c.AttachStacktrace,
		MaxBreadcrumbs:   c.MaxBreadcrumbs,
		Debug:            c.Debug,
	}
}
