package otel

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestNew_NoopExporter(t *testing.T) {
	tp, err := New(&Config{Enabled: true, ExporterType: ExporterTypeNoop})
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.Equal(t, "httpremote", tp.Config().ServiceName)
	assert.NotNil(t, tp.Tracer("test"))

	require.NoError(t, tp.Close())
	assert.ErrorIs(t, tp.Shutdown(context.Background()), ErrProviderClosed)
	assert.NoError(t, tp.Close())
}

func TestNew_Disabled(t *testing.T) {
	tp, err := New(&Config{Enabled: false, ExporterType: ExporterTypeStdout})
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
}

func TestNew_Stdout(t *testing.T) {
	tp, err := New(&Config{Enabled: true, ExporterType: ExporterTypeStdout, Sampler: SamplerConfig{Type: SamplerTypeNever}})
	require.NoError(t, err)
	assert.True(t, tp.IsEnabled())
	require.NoError(t, tp.Close())
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(&Config{Enabled: true, Sampler: SamplerConfig{Type: SamplerTypeRatio, Ratio: 2}})
	assert.ErrorIs(t, err, ErrInvalidSamplerRatio)

	_, err = New(&Config{Enabled: true, ExporterType: "zipkin"})
	assert.ErrorIs(t, err, ErrUnsupportedExporter)
}

func TestPropagation_RoundTrip(t *testing.T) {
	_, err := New(&Config{Enabled: true})
	require.NoError(t, err)

	provider := sdktrace.NewTracerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx, span := provider.Tracer("test").Start(context.Background(), "call")
	defer span.End()

	header := http.Header{}
	InjectHTTP(ctx, header)
	assert.NotEmpty(t, header.Get("traceparent"))

	extracted := ExtractHTTP(context.Background(), header)
	sc := trace.SpanContextFromContext(extracted)
	assert.Equal(t, span.SpanContext().TraceID(), sc.TraceID())
	assert.True(t, sc.IsRemote())
}
