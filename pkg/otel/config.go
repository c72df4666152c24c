package otel

import "time"

// Config TracerProvider 配置
type Config struct {
	// Enabled 是否启用追踪
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 服务名称
	ServiceName string `mapstructure:"service_name"`

	// Endpoint 导出器端点
	// OTLP HTTP: localhost:4318
	// OTLP gRPC: localhost:4317
	Endpoint string `mapstructure:"endpoint"`

	// ExporterType 导出器类型: "otlp-http", "otlp-grpc", "stdout", "noop"
	ExporterType ExporterType `mapstructure:"exporter_type" validate:"omitempty,oneof=otlp-http otlp-grpc stdout noop"`

	Sampler SamplerConfig `mapstructure:"sampler"`

	BatchExport BatchExportConfig `mapstructure:"batch_export"`

	// Attributes 资源属性
	Attributes map[string]string `mapstructure:"attributes"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Insecure 不使用 TLS
	Insecure bool `mapstructure:"insecure"`
}

// ExporterType 导出器类型
type ExporterType string

const (
	ExporterTypeOTLPHTTP ExporterType = "otlp-http"
	ExporterTypeOTLPGRPC ExporterType = "otlp-grpc"
	// ExporterTypeStdout 标准输出导出器（调试用）
	ExporterTypeStdout ExporterType = "stdout"
	// ExporterTypeNoop 只做上下文传播，不导出 span
	ExporterTypeNoop ExporterType = "noop"
)

// SamplerConfig 采样配置
type SamplerConfig struct {
	// Type 采样类型: "always", "never", "ratio", "parent"
	Type SamplerType `mapstructure:"type"`

	// Ratio 采样比率（0.0-1.0），仅当 Type 为 "ratio" 时有效
	Ratio float64 `mapstructure:"ratio"`
}

// SamplerType 采样类型
type SamplerType string

const (
	SamplerTypeAlways SamplerType = "always"
	SamplerTypeNever  SamplerType = "never"
	SamplerTypeRatio  SamplerType = "ratio"
	// SamplerTypeParent 跟随父 Span 采样决策
	SamplerTypeParent SamplerType = "parent"
)

// BatchExportConfig 批量导出配置
type BatchExportConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	ExportTimeout time.Duration `mapstructure:"export_timeout"`
	MaxQueueSize  int           `mapstructure:"max_queue_size"`
	BatchTimeout  time.Duration `mapstructure:"batch_timeout"`
}

// DefaultConfig 返回默认配置
// 默认不导出，只安装传播器，保证 trace context 在节点间透传
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		ServiceName:  "httpremote",
		Endpoint:     "localhost:4318",
		ExporterType: ExporterTypeNoop,
		Sampler: SamplerConfig{
			Type:  SamplerTypeParent,
			Ratio: 1.0,
		},
		BatchExport: BatchExportConfig{
			BatchSize:     512,
			ExportTimeout: 30 * time.Second,
			MaxQueueSize:  2048,
			BatchTimeout:  5 * time.Second,
		},
		Attributes:      make(map[string]string),
		ShutdownTimeout: 5 * time.Second,
		Insecure:        true,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return ErrInvalidServiceName
	}
	if c.Sampler.Type == SamplerTypeRatio && (c.Sampler.Ratio < 0 || c.Sampler.Ratio > 1) {
		return ErrInvalidSamplerRatio
	}
	return nil
}
