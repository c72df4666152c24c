package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// 重导出常用类型，使用者无需直接依赖 go.opentelemetry.io/otel
type (
	Span            = trace.Span
	SpanKind        = trace.SpanKind
	SpanStartOption = trace.SpanStartOption
	Attribute       = attribute.KeyValue
)

const (
	SpanKindServer = trace.SpanKindServer
	SpanKindClient = trace.SpanKindClient

	CodeError = codes.Error
	CodeOk    = codes.Ok
)

// Tracer 获取全局 Tracer
func Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return otel.Tracer(name, opts...)
}

// SpanFromContext 返回 context 中的当前 span，没有时返回无操作 span
func SpanFromContext(ctx context.Context) Span {
	return trace.SpanFromContext(ctx)
}

// WithSpanKind 设置 span 类型
func WithSpanKind(kind SpanKind) SpanStartOption {
	return trace.WithSpanKind(kind)
}

// WithAttributes 设置 span 属性
func WithAttributes(attrs ...Attribute) SpanStartOption {
	return trace.WithAttributes(attrs...)
}

var (
	String = attribute.String
	Int    = attribute.Int
)

// 远程调用相关属性键
const (
	RPCSystemKey      = "rpc.system"
	RPCMethodKey      = "rpc.method"
	ServerAddressKey  = "server.address"
	ServerPortKey     = "server.port"
	HTTPRouteKey      = "http.route"
	HTTPStatusCodeKey = "http.response.status_code"
	RequestIDKey      = "httpremote.request_id"
)

// RPCSystem rpc.system 的取值
const RPCSystem = "httpremote"
