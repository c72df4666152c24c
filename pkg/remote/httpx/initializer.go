package httpx

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/lk2023060901/httpremote/pkg/security"
	"github.com/lk2023060901/httpremote/pkg/util/conc"
	"github.com/prometheus/client_golang/prometheus"
)

// TypeHTTP Initializer 的协议类型
const TypeHTTP = "HTTP"

var _ remote.CSInitializer = (*Initializer)(nil)

// InitializerOption Initializer 选项
type InitializerOption func(*initializerOptions)

type initializerOptions struct {
	logger             logger.Logger
	registerer         prometheus.Registerer
	resolver           remote.PayloadResolver
	middlewares        []gin.HandlerFunc
	transporterOptions []TransporterOption
}

// WithInitializerLogger 设置日志
func WithInitializerLogger(l logger.Logger) InitializerOption {
	return func(o *initializerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInitializerRegisterer 指标注册到指定 Registerer
func WithInitializerRegisterer(r prometheus.Registerer) InitializerOption {
	return func(o *initializerOptions) {
		o.registerer = r
	}
}

// WithPayloadResolver 替换载荷参数识别策略
func WithPayloadResolver(r remote.PayloadResolver) InitializerOption {
	return func(o *initializerOptions) {
		o.resolver = r
	}
}

// WithMiddleware 追加 gin 中间件，位于内置中间件之后
func WithMiddleware(mw ...gin.HandlerFunc) InitializerOption {
	return func(o *initializerOptions) {
		o.middlewares = append(o.middlewares, mw...)
	}
}

// WithTransporterOptions BuildTransporter 时附加的选项
func WithTransporterOptions(opts ...TransporterOption) InitializerOption {
	return func(o *initializerOptions) {
		o.transporterOptions = append(o.transporterOptions, opts...)
	}
}

// Initializer HTTP 服务端与客户端的生命周期
// 先 Init 开始监听，再 BindHandlers 安装路由；安装前所有请求返回 404
type Initializer struct {
	config     *Config
	opts       *initializerOptions
	name       string
	logger     logger.Logger
	metrics    *Metrics
	dispatcher *Dispatcher
	limiter    *RateLimiter
	ipFilter   *security.IPFilter
	tokens     *security.TokenManager

	engine atomic.Pointer[gin.Engine]

	mu           sync.Mutex
	listener     net.Listener
	server       *http.Server
	serving      *conc.Future[struct{}]
	table        *RouteTable
	transporters []*Transporter
	closed       bool
}

// NewInitializer 创建 Initializer，配置非法时返回 ErrConfig
func NewInitializer(cfg *Config, opts ...InitializerOption) (*Initializer, error) {
	merged, err := mergeConfig(cfg)
	if err != nil {
		return nil, err
	}

	o := &initializerOptions{
		logger:   logger.Default(),
		resolver: remote.DefaultPayloadResolver,
	}
	for _, opt := range opts {
		opt(o)
	}

	var ipFilter *security.IPFilter
	if merged.IPFilter.Enabled() {
		if ipFilter, err = security.NewIPFilter(&merged.IPFilter); err != nil {
			return nil, remote.ConfigErrorf("ip filter: %v", err)
		}
	}
	var tokens *security.TokenManager
	if merged.Auth.Enabled() {
		if tokens, err = security.NewTokenManager(&merged.Auth); err != nil {
			return nil, remote.ConfigErrorf("auth: %v", err)
		}
	}

	gin.SetMode(merged.Mode)

	i := &Initializer{
		config:     merged,
		opts:       o,
		name:       serverName(merged.ServerType),
		logger:     o.logger.Named("remote.http.server"),
		metrics:    NewMetrics(o.registerer),
		dispatcher: NewDispatcher(merged, o.logger),
		limiter:    NewRateLimiter(merged.RateLimit, o.logger.Named("remote.http.ratelimit")),
		ipFilter:   ipFilter,
		tokens:     tokens,
	}
	i.engine.Store(i.newEngine())
	return i, nil
}

// Type 返回 HTTP
func (i *Initializer) Type() string {
	return TypeHTTP
}

// ServerName 带角色的服务名，写在每个响应的 Server 头中
func (i *Initializer) ServerName() string {
	return i.name
}

// Config 合并默认值后的配置
func (i *Initializer) Config() *Config {
	return i.config
}

// Metrics 服务端与其创建的 Transporter 共用的指标
func (i *Initializer) Metrics() *Metrics {
	return i.metrics
}

// Addr 实际监听地址，未启动时返回 nil
func (i *Initializer) Addr() net.Addr {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.listener == nil {
		return nil
	}
	return i.listener.Addr()
}

// RouteTable 已安装的路由表，未安装时返回 nil
func (i *Initializer) RouteTable() *RouteTable {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.table
}

// ServeHTTP 转发到当前生效的 gin 引擎
func (i *Initializer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	i.engine.Load().ServeHTTP(w, r)
}

// Init 开始监听 BindHost:BindPort，BindHost 为空时监听所有网卡
func (i *Initializer) Init(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}
	if i.server != nil {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	addr := net.JoinHostPort(i.config.BindHost, strconv.Itoa(i.config.BindPort))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return remote.WrapConnection(err, "listen on %s", addr)
	}

	srv := &http.Server{
		Handler:        i,
		ReadTimeout:    i.config.ReadTimeout,
		WriteTimeout:   i.config.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	i.listener = ln
	i.server = srv
	i.serving = conc.Go(func() (struct{}, error) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.logger.Error("http server stopped unexpectedly", "addr", ln.Addr().String(), "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	})

	i.logger.Info("http server listening",
		"addr", ln.Addr().String(),
		"server_type", i.config.ServerType,
		"server_name", i.name,
	)
	return nil
}

// BindHandlers 构建路由表并一次性安装
// 任一处理方法不合法时不安装任何路由，返回 ErrConfig
func (i *Initializer) BindHandlers(actors []remote.ActorInfo) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}
	if i.table != nil {
		return ErrRoutesInstalled
	}

	table, err := BuildRouteTable(actors, i.opts.resolver)
	if err != nil {
		i.logger.Error("route binding failed", "error", err)
		return err
	}

	engine := i.newEngine()
	for _, path := range table.Paths() {
		binding, _ := table.Lookup(path)
		engine.POST(path, i.dispatcher.Handle(binding))
		i.logger.Debug("route bound", "path", path, "actor", binding.ActorType.String(), "method", binding.Method)
	}

	i.table = table
	i.engine.Store(engine)
	i.logger.Info("routes installed", "count", table.Len())
	return nil
}

// BuildTransporter 创建与服务端共用指标的 Transporter，Close 时一并关闭
func (i *Initializer) BuildTransporter() (remote.Transporter, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil, ErrClosed
	}

	opts := append([]TransporterOption{
		WithLogger(i.opts.logger),
		WithMetrics(i.metrics),
	}, i.opts.transporterOptions...)

	t, err := NewTransporter(i.config, opts...)
	if err != nil {
		return nil, err
	}
	i.transporters = append(i.transporters, t)
	return t, nil
}

// Close 优雅停止服务并关闭所有 Transporter，可重复调用，未启动时也可调用
func (i *Initializer) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	srv, serving := i.server, i.serving
	transporters := i.transporters
	i.transporters = nil
	i.mu.Unlock()

	var errs []error
	if srv != nil {
		ctx := context.Background()
		if i.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, i.config.ShutdownTimeout)
			defer cancel()
		}
		if err := srv.Shutdown(ctx); err != nil {
			i.logger.Warn("graceful shutdown timed out, closing connections", "error", err)
			errs = append(errs, srv.Close())
		}
		if _, err := serving.Await(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, t := range transporters {
		errs = append(errs, t.Close())
	}
	errs = append(errs, i.limiter.Close())

	i.logger.Info("http remote closed")
	return errors.Join(errs...)
}

// Start 实现 app.Server，使用后台 context 调用 Init
func (i *Initializer) Start() error {
	return i.Init(context.Background())
}

// Stop 实现 app.Server
func (i *Initializer) Stop() error {
	return i.Close()
}

// newEngine 创建挂好内置中间件、但没有路由的 gin 引擎
func (i *Initializer) newEngine() *gin.Engine {
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.HandleMethodNotAllowed = true

	engine.Use(
		ServerHeader(i.name),
		RequestID(),
		AccessLog(i.logger),
		ServerMetrics(i.metrics),
		Tracing(i.name),
		ErrorBoundary(),
		Recovery(i.logger),
	)
	if len(i.config.CORS.AllowOrigins) > 0 {
		engine.Use(CORS(i.config.CORS))
	}
	if i.ipFilter != nil {
		engine.Use(IPFilter(i.ipFilter, i.logger))
	}
	if i.limiter != nil {
		engine.Use(RateLimit(i.limiter))
	}
	if i.tokens != nil {
		engine.Use(Authenticate(i.tokens, i.logger))
	}
	if len(i.opts.middlewares) > 0 {
		engine.Use(i.opts.middlewares...)
	}
	return engine
}
