// Package prometheus 进程级指标注册表与 /metrics 导出服务
package prometheus

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/util/conc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Client Prometheus 客户端
type Client struct {
	config   *Config
	registry *prometheus.Registry
	logger   logger.Logger

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	serving    *conc.Future[struct{}]

	closed atomic.Bool
}

// New 创建 Prometheus 客户端，HTTP 服务在 Start 时才监听
func New(cfg *Config, l logger.Logger) (*Client, error) {
	merged, err := mergeConfig(cfg)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.Default()
	}

	c := &Client{
		config:   merged,
		registry: prometheus.NewRegistry(),
		logger:   l.Named("prometheus"),
	}

	if merged.EnableGoCollector {
		c.registry.MustRegister(collectors.NewGoCollector())
	}
	if merged.EnableProcessCollector {
		c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return c, nil
}

// Registry 获取底层 Registry
func (c *Client) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 HTTP Handler（用于集成到现有 HTTP 服务器）
func (c *Client) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Config 获取配置
func (c *Client) Config() *Config {
	return c.config
}

// Addr 指标服务的实际监听地址，未启动时返回 nil
func (c *Client) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Start 启动独立的指标 HTTP 服务，未启用时直接返回
func (c *Client) Start() error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.config.HTTPServer.Enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpServer != nil {
		return nil
	}

	ln, err := net.Listen("tcp", c.config.HTTPServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "prometheus: listen on %s", c.config.HTTPServer.Addr)
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.HTTPServer.Path, c.Handler())
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  c.config.HTTPServer.Timeout,
		WriteTimeout: c.config.HTTPServer.Timeout,
	}
	c.listener = ln
	c.httpServer = srv
	c.serving = conc.Go(func() (struct{}, error) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server stopped", "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	})

	c.logger.Info("metrics server listening", "addr", ln.Addr().String(), "path", c.config.HTTPServer.Path)
	return nil
}

// Stop 实现 app.Server
func (c *Client) Stop() error {
	err := c.Close()
	if errors.Is(err, ErrClientClosed) {
		return nil
	}
	return err
}

// Close 关闭客户端，重复关闭返回 ErrClientClosed
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	srv, serving := c.httpServer, c.serving
	c.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.HTTPServer.Timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	_, err := serving.Await()
	return err
}

// IsClosed 检查客户端是否已关闭
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
