package otel

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider 追踪提供者
type TracerProvider struct {
	config   *Config
	provider *sdktrace.TracerProvider
	closed   atomic.Bool
}

// New 创建追踪提供者并设置为全局
// 无论是否导出，都会安装 W3C 传播器
func New(cfg *Config) (*TracerProvider, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	// bool 零值无法通过合并表达
	if cfg != nil && !cfg.Enabled {
		newCfg.Enabled = false
	}

	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	otel.SetTextMapPropagator(NewCompositeTextMapPropagator())

	tp := &TracerProvider{config: newCfg}
	if !newCfg.Enabled {
		return tp, nil
	}

	exporter, err := createExporter(context.Background(), newCfg)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		return tp, nil
	}

	tp.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(newCfg.BatchExport.BatchTimeout),
			sdktrace.WithExportTimeout(newCfg.BatchExport.ExportTimeout),
			sdktrace.WithMaxExportBatchSize(newCfg.BatchExport.BatchSize),
			sdktrace.WithMaxQueueSize(newCfg.BatchExport.MaxQueueSize),
		),
		sdktrace.WithResource(createResource(newCfg)),
		sdktrace.WithSampler(createSampler(newCfg.Sampler)),
	)
	otel.SetTracerProvider(tp.provider)

	return tp, nil
}

func createResource(cfg *Config) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func createSampler(cfg SamplerConfig) sdktrace.Sampler {
	switch cfg.Type {
	case SamplerTypeAlways:
		return sdktrace.AlwaysSample()
	case SamplerTypeNever:
		return sdktrace.NeverSample()
	case SamplerTypeRatio:
		return sdktrace.TraceIDRatioBased(cfg.Ratio)
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// Tracer 获取指定名称的 Tracer
func (p *TracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return p.Provider().Tracer(name, opts...)
}

// Provider 获取底层 TracerProvider，未导出时返回全局实现
func (p *TracerProvider) Provider() trace.TracerProvider {
	if p.provider == nil {
		return otel.GetTracerProvider()
	}
	return p.provider
}

// Shutdown 关闭提供者，刷新未导出的 span
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	if p.closed.Swap(true) {
		return ErrProviderClosed
	}
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}

// Close 使用配置的超时关闭，满足 io.Closer
func (p *TracerProvider) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.ShutdownTimeout)
	defer cancel()

	if err := p.Shutdown(ctx); err != nil && !errors.Is(err, ErrProviderClosed) {
		return err
	}
	return nil
}

// IsEnabled 是否真正导出 span
func (p *TracerProvider) IsEnabled() bool {
	return p.config.Enabled && p.provider != nil
}

func (p *TracerProvider) Config() *Config {
	return p.config
}
