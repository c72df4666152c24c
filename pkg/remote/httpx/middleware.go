package httpx

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"net/http/httputil"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lk2023060901/httpremote/pkg/cache/lru"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/otel"
	"github.com/lk2023060901/httpremote/pkg/security"
	"golang.org/x/time/rate"
)

// ServerHeader 在响应头写入带角色的服务名
func ServerHeader(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(headerServer, name)
		c.Next()
	}
}

// RequestID 透传或生成 X-Request-Id，并写入请求 context
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// AccessLog 请求日志
func AccessLog(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"status", status,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", time.Since(start).String(),
			"size", c.Writer.Size(),
		}

		ctx := c.Request.Context()
		switch {
		case len(c.Errors) > 0:
			for _, e := range c.Errors {
				l.ErrorContext(ctx, "http request failed", append(fields, "error", e.Err)...)
			}
		case status >= http.StatusBadRequest:
			l.WarnContext(ctx, "http request", fields...)
		default:
			l.DebugContext(ctx, "http request", fields...)
		}
	}
}

// Recovery 处理方法 panic 时返回 500
func Recovery(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			dump, _ := httputil.DumpRequest(c.Request, false)
			if isBrokenPipe(rec) {
				l.WarnContext(c.Request.Context(), "http broken pipe", "error", rec, "request", string(dump))
				if err, ok := rec.(error); ok {
					_ = c.Error(err)
				}
				c.Abort()
				return
			}

			l.ErrorContext(c.Request.Context(), "http recovery from panic",
				"error", rec,
				"request", string(dump),
			)
			_ = c.Error(errors.Newf("panic: %v", rec))
			c.Abort()
		}()
		c.Next()
	}
}

func isBrokenPipe(rec any) bool {
	ne, ok := rec.(*net.OpError)
	if !ok {
		return false
	}
	se, ok := ne.Err.(*os.SyscallError)
	if !ok {
		return false
	}
	msg := strings.ToLower(se.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}

// ErrorBoundary 把处理链中登记的错误转换成 500 与错误文本
// 已经写出响应（例如 413）时不再改写
func ErrorBoundary() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		c.Data(http.StatusInternalServerError, contentTypeText, []byte(c.Errors.Last().Err.Error()))
	}
}

// Tracing 服务端 span，父 span 从请求头提取
func Tracing(service string) gin.HandlerFunc {
	tracer := otel.Tracer("httpremote")

	return func(c *gin.Context) {
		ctx := otel.ExtractHTTP(c.Request.Context(), c.Request.Header)

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		attrs := []otel.Attribute{
			otel.String(otel.RPCSystemKey, otel.RPCSystem),
			otel.String(otel.RPCMethodKey, c.Request.URL.Path),
			otel.String(otel.HTTPRouteKey, route),
			otel.String("service.name", service),
		}
		if id, ok := logger.RequestIDFromContext(ctx); ok {
			attrs = append(attrs, otel.String(otel.RequestIDKey, id))
		}

		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, route),
			otel.WithSpanKind(otel.SpanKindServer),
			otel.WithAttributes(attrs...),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(otel.Int(otel.HTTPStatusCodeKey, status))
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last().Err)
		}
		if status >= http.StatusBadRequest || len(c.Errors) > 0 {
			span.SetStatus(otel.CodeError, fmt.Sprintf("HTTP status %d", status))
		} else {
			span.SetStatus(otel.CodeOk, "")
		}
	}
}

// ServerMetrics 入站请求计数与耗时，按路由分组
func ServerMetrics(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		c.Next()

		status := c.Writer.Status()
		if len(c.Errors) > 0 && !c.Writer.Written() {
			status = http.StatusInternalServerError
		}
		m.serverRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
		m.serverDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}

// RateLimiter 入站令牌桶限流，可按客户端 IP 分桶
type RateLimiter struct {
	cfg      RateLimitConfig
	global   *rate.Limiter
	limiters *lru.LRU[string, *rate.Limiter]
	logger   logger.Logger
}

// NewRateLimiter 创建限流器，RequestsPerSecond 为 0 时返回 nil
func NewRateLimiter(cfg RateLimitConfig, l logger.Logger) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(math.Max(1, math.Ceil(cfg.RequestsPerSecond)))
	}
	if l == nil {
		l = logger.Default()
	}

	rl := &RateLimiter{
		cfg:    cfg,
		global: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger: l,
	}
	if cfg.PerClient {
		rl.limiters = lru.New[string, *rate.Limiter](
			&lru.Config{
				MaxSize:         cfg.MaxClients,
				DefaultTTL:      cfg.ClientTTL,
				CleanupInterval: cfg.ClientTTL,
				Sliding:         true,
			},
			lru.WithOnEvict(func(key string, _ *rate.Limiter, reason lru.EvictReason) {
				l.Debug("rate limiter evicted", "key", key, "reason", reason.String())
			}),
		)
	}
	return rl
}

// Allow 判断 key 对应的桶是否还有令牌，key 为空使用全局桶
func (rl *RateLimiter) Allow(key string) bool {
	if key == "" || rl.limiters == nil {
		return rl.global.Allow()
	}
	limiter, _, _ := rl.limiters.GetOrCreate(key, func() (*rate.Limiter, error) {
		return rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst), nil
	})
	return limiter.Allow()
}

// Close 停止后台清理
func (rl *RateLimiter) Close() error {
	if rl == nil || rl.limiters == nil {
		return nil
	}
	return rl.limiters.Close()
}

// RateLimit 限流中间件，超限返回 429
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		if rl.cfg.PerClient {
			key = c.ClientIP()
		}
		if !rl.Allow(key) {
			rl.logger.WarnContext(c.Request.Context(), "rate limit exceeded",
				"client", c.ClientIP(), "path", c.Request.URL.Path)
			c.Header("Retry-After", "1")
			c.Data(http.StatusTooManyRequests, contentTypeText, []byte("too many requests"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// IPFilter 按直连地址过滤，拒绝时返回 403
func IPFilter(f *security.IPFilter, l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !f.AllowAddr(c.Request.RemoteAddr) {
			l.WarnContext(c.Request.Context(), "request from denied address",
				"remote_addr", c.Request.RemoteAddr, "path", c.Request.URL.Path)
			c.Data(http.StatusForbidden, contentTypeText, []byte(security.ErrIPDenied.Error()))
			c.Abort()
			return
		}
		c.Next()
	}
}

// Authenticate 校验 Authorization 头中的节点令牌，失败返回 401
// 校验通过的声明写入请求 context，处理方法可以用 security.ClaimsFromContext 读取
func Authenticate(m *security.TokenManager, l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.Validate(c.GetHeader(headerAuthorization))
		if err != nil {
			l.WarnContext(c.Request.Context(), "node authentication failed",
				"remote_addr", c.Request.RemoteAddr, "path", c.Request.URL.Path, "error", err)
			c.Header("WWW-Authenticate", "Bearer")
			c.Data(http.StatusUnauthorized, contentTypeText, []byte(err.Error()))
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(security.ContextWithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// CORS 浏览器调试用的跨域中间件，只放行 POST
func CORS(cfg CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Encoding", "Accept-Encoding",
			headerAuthorization, headerRequestID,
		},
		ExposeHeaders: []string{headerRequestID, headerContentEncoding, headerServer},
		MaxAge:        cfg.MaxAge,
	}
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			cc.AllowAllOrigins = true
			break
		}
	}
	if !cc.AllowAllOrigins {
		cc.AllowOrigins = cfg.AllowOrigins
	}
	return cors.New(cc)
}
