package httpx

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/otel"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelapi "go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans 安装记录所有 span 的全局 TracerProvider，测试结束后还原
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otelapi.GetTracerProvider()
	otelapi.SetTracerProvider(tp)
	t.Cleanup(func() {
		otelapi.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func clientSpans(recorder *tracetest.SpanRecorder) []sdktrace.ReadOnlySpan {
	var spans []sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.SpanKind() == otel.SpanKindClient {
			spans = append(spans, s)
		}
	}
	return spans
}

func TestTransporter_SpanCoversResponseDecode(t *testing.T) {
	recorder := recordSpans(t)
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))
	tr := newTestTransporter(t)

	var reply runJobResp
	err := tr.Ask(context.Background(), remote.NewURL(addr, "/worker/plain"), &pingReq{}, &reply)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrSerialization))

	spans := clientSpans(recorder)
	require.Len(t, spans, 1)
	assert.Equal(t, "ask /worker/plain", spans[0].Name())
	assert.Equal(t, otel.CodeError, spans[0].Status().Code)
	assert.NotEmpty(t, spans[0].Events(), "decode error recorded on the span")
}

func TestTransporter_SpanOk(t *testing.T) {
	recorder := recordSpans(t)
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))
	tr := newTestTransporter(t)

	require.NoError(t, tr.Tell(context.Background(), remote.NewURL(addr, "/worker/notify"), &pingReq{Name: "x"}))

	spans := clientSpans(recorder)
	require.Len(t, spans, 1)
	assert.Equal(t, "tell /worker/notify", spans[0].Name())
	assert.NotEqual(t, otel.CodeError, spans[0].Status().Code)
}
