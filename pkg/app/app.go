package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/util/conc"
)

var (
	ErrAppAlreadyRunning = errors.New("application is already running")
)

// Application 定义了进程级应用的接口
type Application interface {
	Run() error
	RunContext(ctx context.Context) error
	Shutdown() error
	Logger(name string) logger.Logger
	AppLogger() logger.Logger
	SetAppLogger(l logger.Logger)
}

// Server 定义了服务接口（如 HTTP 监听、指标导出）
type Server interface {
	Start() error
	Stop() error
}

// GracefulServer 定义了支持优雅停止的服务器
type GracefulServer interface {
	Server
	GracefulStop() error
}

// Closer 定义了资源清理接口（如 Transporter、TracerProvider）
type Closer interface {
	Close() error
}

// BaseApp 提供了 Application 接口的基础实现
type BaseApp struct {
	opts     Options
	logger   logger.Logger
	registry *loggerRegistry
	servers  []Server
	closers  []Closer

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex

	// 状态管理
	started atomic.Bool
	closed  atomic.Bool
	// 已成功启动的服务器数量，停止时只停这些
	running int
}

// NewBaseApp 创建一个新的 BaseApp 实例
func NewBaseApp(opts ...Option) *BaseApp {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &BaseApp{
		opts:     o,
		logger:   o.Logger.Named(o.Name),
		registry: newLoggerRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}
	return a
}

// SetAppLogger 替换应用主日志对象
func (a *BaseApp) SetAppLogger(l logger.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger = l
}

// AppLogger 获取应用主日志对象
func (a *BaseApp) AppLogger() logger.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.logger
}

// Logger 获取具名 Logger，未注册时返回 nil
func (a *BaseApp) Logger(name string) logger.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry.get(name)
}

// LoggerNames 已创建的具名 Logger
func (a *BaseApp) LoggerNames() []string {
	return a.registry.names()
}

// RegisterLogger 注册具名 Logger
func (a *BaseApp) RegisterLogger(name string, l logger.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registry.set(name, l)
}

// Run 启动应用程序并阻塞到收到 SIGINT/SIGTERM
func (a *BaseApp) Run() error {
	return a.RunContext(context.Background())
}

// RunContext 启动应用程序并阻塞到信号、ctx 结束或 Shutdown
// 任一服务启动失败时，已启动的服务按逆序停止
func (a *BaseApp) RunContext(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAppAlreadyRunning
	}

	// 初始化具名日志对象
	if len(a.opts.NamedLoggers) > 0 {
		if err := a.registry.build(a.opts.NamedLoggers); err != nil {
			a.logger.Error("failed to initialize named loggers from config", "error", err)
			return err
		}
	}

	info := GetInfo()
	info.AppName = a.opts.Name
	if a.opts.PrintBanner {
		fmt.Println(info.String())
	}

	a.logger.Info("application starting", append(info.LogFields(), "id", a.opts.ID)...)

	a.mu.RLock()
	servers := append([]Server(nil), a.servers...)
	a.mu.RUnlock()

	for i, srv := range servers {
		if err := srv.Start(); err != nil {
			a.logger.Error("failed to start server", "index", i, "error", err)
			a.mu.Lock()
			a.running = i
			a.mu.Unlock()
			_ = a.Shutdown()
			return err
		}
	}
	a.mu.Lock()
	a.running = len(servers)
	a.mu.Unlock()

	// 监听系统信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down")
	case <-a.ctx.Done():
		a.logger.Info("shutdown requested")
	}

	return a.Shutdown()
}

// Shutdown 停止应用程序并清理资源，可重复调用
func (a *BaseApp) Shutdown() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.cancel()
	a.logger.Info("application shutting down")

	// 逆序停止服务器：先停入站监听，再停依赖它的组件
	running := a.servers[:a.running]
	stopped := conc.Go(func() (struct{}, error) {
		for i := len(running) - 1; i >= 0; i-- {
			s := running[i]
			var err error
			if gs, ok := s.(GracefulServer); ok {
				err = gs.GracefulStop()
			} else {
				err = s.Stop()
			}
			if err != nil {
				a.logger.Error("failed to stop server", "error", err)
			}
		}
		return struct{}{}, nil
	})

	select {
	case <-stopped.Inner():
		a.logger.Info("all servers stopped")
	case <-time.After(a.opts.StopTimeout):
		a.logger.Warn("shutdown timeout, forcing exit")
	}

	// 逆序关闭所有 Closer 组件（LIFO）
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Error("failed to close component", "error", err)
		}
	}

	// 控制台输出的 Sync 在部分平台上返回 EINVAL，只记录不返回
	if err := a.registry.syncAll(); err != nil {
		a.logger.Debug("failed to sync named loggers", "error", err)
	}
	_ = a.logger.Sync()

	a.logger.Info("application exited")
	return nil
}

// AppendServer 添加服务器，按添加顺序启动、逆序停止
func (a *BaseApp) AppendServer(srv ...Server) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.servers = append(a.servers, srv...)
}

// AppendCloser 添加资源清理组件
func (a *BaseApp) AppendCloser(closer ...Closer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, closer...)
}
