package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/httpremote/pkg/compress"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/otel"
	"github.com/lk2023060901/httpremote/pkg/pool/bytebuff"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/lk2023060901/httpremote/pkg/security"
	"github.com/lk2023060901/httpremote/pkg/serializer"
	"github.com/lk2023060901/httpremote/pkg/util/conc"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	headerRequestID = "X-Request-Id"
	headerServer    = "Server"

	headerAuthorization   = "Authorization"
	headerContentEncoding = "Content-Encoding"
	headerAcceptEncoding  = "Accept-Encoding"
	// maxErrorBody 非 200 响应体最多保留的字节数
	maxErrorBody = 4 << 10
)

var _ remote.Transporter = (*Transporter)(nil)

// TransporterOption Transporter 选项
type TransporterOption func(*transporterOptions)

type transporterOptions struct {
	logger      logger.Logger
	registerer  prometheus.Registerer
	metrics     *Metrics
	poolOptions []PoolOption
	serializer  serializer.Serializer
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) TransporterOption {
	return func(o *transporterOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegisterer 指标注册到指定 Registerer
func WithRegisterer(r prometheus.Registerer) TransporterOption {
	return func(o *transporterOptions) {
		o.registerer = r
	}
}

// WithMetrics 复用已创建的指标
func WithMetrics(m *Metrics) TransporterOption {
	return func(o *transporterOptions) {
		o.metrics = m
	}
}

// WithPoolOptions 透传连接池选项
func WithPoolOptions(opts ...PoolOption) TransporterOption {
	return func(o *transporterOptions) {
		o.poolOptions = append(o.poolOptions, opts...)
	}
}

// WithSerializer 请求体编码，默认 JSON
// 响应按对端返回的 Content-Type 解码
func WithSerializer(s serializer.Serializer) TransporterOption {
	return func(o *transporterOptions) {
		if s != nil {
			o.serializer = s
		}
	}
}

// Transporter 基于连接池的 HTTP 出站传输
// Tell 与 Ask 都是同步阻塞调用，需要并发请使用 AskAsync
type Transporter struct {
	config     *Config
	pool       *Pool
	keepAlive  time.Duration
	serializer serializer.Serializer
	logger     logger.Logger
	metrics    *Metrics
	// compressor 为 nil 时请求体不压缩
	compressor compress.Compressor
	// tokens 为 nil 时不携带节点令牌
	tokens *security.TokenSource

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewTransporter 创建出站传输
// keepalive 超时优先读取环境变量 HTTPREMOTE_TRANSPORTER_KEEPALIVE_TIMEOUT
func NewTransporter(cfg *Config, opts ...TransporterOption) (*Transporter, error) {
	merged, err := mergeConfig(cfg)
	if err != nil {
		return nil, err
	}

	keepAlive, err := resolveKeepAlive(merged)
	if err != nil {
		return nil, err
	}

	o := &transporterOptions{
		logger:     logger.Default(),
		serializer: serializer.NewJSON(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(o.registerer)
	}

	var compressor compress.Compressor
	if merged.Compression.Type != "" {
		compressor, err = compress.Get(compress.Type(merged.Compression.Type))
		if err != nil {
			return nil, remote.ConfigErrorf("compression: %v", err)
		}
	}

	var tokens *security.TokenSource
	if merged.Auth.Enabled() {
		tm, err := security.NewTokenManager(&merged.Auth)
		if err != nil {
			return nil, remote.ConfigErrorf("auth: %v", err)
		}
		tokens = tm.Source(serverName(merged.ServerType), merged.ServerType.String())
	}

	poolCfg := merged.Pool
	poolCfg.KeepAliveTimeout = keepAlive

	pool, err := NewPool(&poolCfg, append([]PoolOption{
		WithPoolLogger(o.logger),
		WithPoolMetrics(o.metrics),
	}, o.poolOptions...)...)
	if err != nil {
		return nil, err
	}

	t := &Transporter{
		config:     merged,
		pool:       pool,
		keepAlive:  keepAlive,
		serializer: o.serializer,
		logger:     o.logger.Named("remote.http.transporter"),
		metrics:    o.metrics,
		compressor: compressor,
		tokens:     tokens,
	}
	t.logger.Info("transporter created",
		"server_type", merged.ServerType,
		"pool_max_size", poolCfg.MaxSize,
		"keepalive", keepAlive.String(),
		"compression", merged.Compression.Type,
		"auth", tokens != nil,
	)
	return t, nil
}

// Protocol 返回 HTTP
func (t *Transporter) Protocol() remote.Protocol {
	return remote.ProtocolHTTP
}

// Pool 返回底层连接池
func (t *Transporter) Pool() *Pool {
	return t.pool
}

// KeepAliveTimeout 实际生效的 keepalive 超时，0 表示关闭
func (t *Transporter) KeepAliveTimeout() time.Duration {
	return t.keepAlive
}

// Tell 发送通知，只要求对端返回 200，响应体被丢弃
func (t *Transporter) Tell(ctx context.Context, url remote.URL, msg remote.Serializable) (err error) {
	ctx, span, requestID := t.startSpan(ctx, url, "tell")
	defer func() { endSpan(span, err) }()

	resp, err := t.post(ctx, url, msg, "tell", requestID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return t.remotingError(url, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Ask 发送请求并同步等待响应
// reply 为 nil 时不解码；*string 接收原始响应体；其它类型按响应的 Content-Type 解码（默认 JSON），空响应体不解码
func (t *Transporter) Ask(ctx context.Context, url remote.URL, msg remote.Serializable, reply any) (err error) {
	ctx, span, requestID := t.startSpan(ctx, url, "ask")
	defer func() { endSpan(span, err) }()

	resp, err := t.post(ctx, url, msg, "ask", requestID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return t.remotingError(url, resp)
	}

	if reply == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, err := decodeBody(resp.Header, resp.Body)
	if err != nil {
		return remote.WrapSerialization(err, "response from %s%s", url.Address, url.Location.ToPath())
	}
	defer body.Close()

	buf, err := bytebuff.ReadAll(body, 0)
	if err != nil {
		return remote.WrapConnection(err, "read response from %s%s", url.Address, url.Location.ToPath())
	}
	defer bytebuff.Put(buf)

	if s, ok := reply.(*string); ok {
		*s = string(buf.B)
		return nil
	}

	// 处理方法没有返回值时响应体为空，reply 保持原样
	if len(bytes.TrimSpace(buf.B)) == 0 {
		return nil
	}

	codec, ok := serializer.ForContentType(resp.Header.Get("Content-Type"))
	if !ok || codec.ContentType() == serializer.ContentTypeBinary {
		codec = serializer.NewJSON()
	}
	if err := codec.Deserialize(buf.B, reply); err != nil {
		return remote.WrapSerialization(err, "decode response from %s%s into %T", url.Address, url.Location.ToPath(), reply)
	}
	return nil
}

// startSpan 客户端 span 覆盖整个调用，包括响应体的读取与解码
func (t *Transporter) startSpan(ctx context.Context, url remote.URL, op string) (context.Context, otel.Span, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID := uuid.NewString()
	path := url.Location.ToPath()
	ctx, span := otel.Tracer("httpremote").Start(ctx, op+" "+path,
		otel.WithSpanKind(otel.SpanKindClient),
		otel.WithAttributes(
			otel.String(otel.RPCSystemKey, otel.RPCSystem),
			otel.String(otel.RPCMethodKey, path),
			otel.String(otel.ServerAddressKey, url.Address.Host),
			otel.Int(otel.ServerPortKey, url.Address.Port),
			otel.String(otel.RequestIDKey, requestID),
		),
	)
	return ctx, span, requestID
}

func endSpan(span otel.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otel.CodeError, err.Error())
	}
	span.End()
}

// post 编码消息并发送，调用方负责关闭响应体
func (t *Transporter) post(ctx context.Context, url remote.URL, msg remote.Serializable, op, requestID string) (*http.Response, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	path := url.Location.ToPath()

	body, err := t.serializer.Serialize(msg)
	if err != nil {
		return nil, remote.WrapSerialization(err, "encode %T for %s%s", msg, url.Address, path)
	}

	conn, err := t.pool.Get(url.Address)
	if err != nil {
		return nil, err
	}

	encoding := ""
	if t.compressor != nil && len(body) >= t.config.Compression.MinSize {
		compressed, err := t.compressor.Compress(body)
		if err != nil {
			return nil, remote.WrapSerialization(err, "compress %T for %s%s", msg, url.Address, path)
		}
		body, encoding = compressed, t.compressor.Name()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url.String(), bytes.NewReader(body))
	if err != nil {
		return nil, remote.WrapConnection(err, "build request for %s%s", url.Address, path)
	}
	req.Header.Set("Content-Type", t.serializer.ContentType())
	req.Header.Set("Accept", t.serializer.ContentType())
	req.Header.Set(headerRequestID, requestID)
	if encoding != "" {
		req.Header.Set(headerContentEncoding, encoding)
	}
	if t.compressor != nil {
		req.Header.Set(headerAcceptEncoding, t.compressor.Name())
	}
	if t.tokens != nil {
		auth, err := t.tokens.Authorization()
		if err != nil {
			return nil, remote.ConfigErrorf("sign node token: %v", err)
		}
		req.Header.Set(headerAuthorization, auth)
	}
	if t.keepAlive > 0 {
		req.Header.Set("Connection", "keep-alive")
	} else {
		req.Close = true
	}
	otel.InjectHTTP(ctx, req.Header)

	start := time.Now()
	resp, err := conn.Client.Do(req)
	t.metrics.clientDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		t.metrics.clientRequests.WithLabelValues(path, "error").Inc()
		t.logger.WarnContext(ctx, "request failed",
			"op", op, "address", url.Address.FullAddress(), "path", path, "request_id", requestID, "error", err)
		return nil, remote.WrapConnection(err, "%s %s%s", op, url.Address, path)
	}

	t.metrics.clientRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()
	otel.SpanFromContext(ctx).SetAttributes(otel.Int(otel.HTTPStatusCodeKey, resp.StatusCode))
	return resp, nil
}

// remotingError 读取（截断后的）响应体构造 RemotingError
func (t *Transporter) remotingError(url remote.URL, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)

	err := &remote.RemotingError{
		Host:       url.Address.Host,
		Port:       url.Address.Port,
		Path:       url.Location.ToPath(),
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	t.logger.Warn("remote returned non-200 status",
		"address", url.Address.FullAddress(), "path", err.Path, "status", resp.StatusCode)
	return err
}

// Close 释放连接池，可重复调用
func (t *Transporter) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		_ = t.pool.Close()
		t.logger.Info("transporter closed")
	})
	return nil
}

// AskAs 同步请求并返回 T 类型结果
func AskAs[T any](ctx context.Context, t remote.Transporter, url remote.URL, msg remote.Serializable) (T, error) {
	var reply T
	if err := t.Ask(ctx, url, msg, &reply); err != nil {
		var zero T
		return zero, err
	}
	return reply, nil
}

// AskAsync 在协程池中执行 AskAs，立即返回 Future
// ctx 取消会中断进行中的请求
func AskAsync[T any](ctx context.Context, t remote.Transporter, url remote.URL, msg remote.Serializable) *conc.Future[T] {
	return conc.Go(func() (T, error) {
		return AskAs[T](ctx, t, url, msg)
	})
}
