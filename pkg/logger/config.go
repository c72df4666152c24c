package logger

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Level 日志等级
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
	PanicLevel Level = "panic"
	FatalLevel Level = "fatal"
)

// Format 日志格式
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

// RotationType 轮换类型
type RotationType string

const (
	RotationBySize RotationType = "size"
	RotationByTime RotationType = "time"
)

// Config 日志配置
type Config struct {
	Level  Level  `mapstructure:"level"`  // 日志等级
	Format Format `mapstructure:"format"` // 输出格式 (json/console)

	EnableConsole bool   `mapstructure:"enable_console"` // 启用控制台输出
	EnableFile    bool   `mapstructure:"enable_file"`    // 启用文件输出
	OutputPath    string `mapstructure:"output_path"`    // 日志文件路径

	TimeFormat string `mapstructure:"time_format"` // 时间格式 (默认: 2006-01-02 15:04:05)

	Rotation RotationConfig `mapstructure:"rotation"`

	EnableStacktrace bool  `mapstructure:"enable_stacktrace"`
	StacktraceLevel  Level `mapstructure:"stacktrace_level"`

	// 采样配置 (防止高频日志)
	EnableSampling     bool `mapstructure:"enable_sampling"`
	SamplingInitial    int  `mapstructure:"sampling_initial"`    // 每秒前 N 条日志
	SamplingThereafter int  `mapstructure:"sampling_thereafter"` // 之后每 N 条记录 1 条

	Development bool `mapstructure:"development"` // 开发模式 (彩色输出)

	GlobalFields map[string]any `mapstructure:"global_fields"`

	// ContextExtractor 不参与配置文件解析
	ContextExtractor ContextFieldExtractor `mapstructure:"-"`
}

// RotationConfig 轮换配置
type RotationConfig struct {
	Type RotationType `mapstructure:"type"` // 轮换类型: size 或 time

	// 按大小轮换 (lumberjack)
	MaxSize    int  `mapstructure:"max_size"`    // 单文件最大大小 (MB)
	MaxBackups int  `mapstructure:"max_backups"` // 保留的旧文件数量
	MaxAge     int  `mapstructure:"max_age"`     // 保留天数
	Compress   bool `mapstructure:"compress"`

	// 按时间轮换 (file-rotatelogs)
	Interval  time.Duration `mapstructure:"interval"`  // 轮换间隔
	Retention time.Duration `mapstructure:"retention"` // 旧文件保留时长
	Pattern   string        `mapstructure:"pattern"`   // 文件名后缀，strftime 格式
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Level:         InfoLevel,
		Format:        ConsoleFormat,
		EnableConsole: true,
		EnableFile:    false,
		TimeFormat:    "2006-01-02 15:04:05",
		Rotation: RotationConfig{
			Type:       RotationBySize,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     7,
			Compress:   true,
			Interval:   24 * time.Hour,
			Retention:  7 * 24 * time.Hour,
			Pattern:    ".%Y%m%d",
		},
		EnableStacktrace:   true,
		StacktraceLevel:    ErrorLevel,
		SamplingInitial:    100,
		SamplingThereafter: 100,
		GlobalFields:       make(map[string]any),
		ContextExtractor:   RequestIDExtractor,
	}
}

// Validate 空的等级与格式视为默认值
func (c *Config) Validate() error {
	switch c.Level {
	case "", DebugLevel, InfoLevel, WarnLevel, ErrorLevel, PanicLevel, FatalLevel:
	default:
		return errors.Wrapf(ErrInvalidLevel, "%q", c.Level)
	}
	switch c.Rotation.Type {
	case "", RotationBySize, RotationByTime:
	default:
		return errors.Wrapf(ErrInvalidRotation, "%q", c.Rotation.Type)
	}
	switch c.Format {
	case "", JSONFormat, ConsoleFormat:
	default:
		return errors.Wrapf(ErrInvalidFormat, "%q", c.Format)
	}
	if c.EnableFile && c.OutputPath == "" {
		return ErrInvalidOutputPath
	}
	if !c.EnableConsole && !c.EnableFile {
		return ErrNoOutputEnabled
	}
	return nil
}
