package main

import (
	"context"
	"net"
	"os"
	"strconv"

	"github.com/lk2023060901/httpremote/app/remoted/internal/actor"
	"github.com/lk2023060901/httpremote/app/remoted/internal/heartbeat"
	"github.com/lk2023060901/httpremote/pkg/app"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/metrics/system"
	"github.com/lk2023060901/httpremote/pkg/otel"
	"github.com/lk2023060901/httpremote/pkg/prometheus"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/lk2023060901/httpremote/pkg/remote/httpx"
)

func provideAppOptions(cfg *Config, l logger.Logger) []app.Option {
	return []app.Option{
		app.WithName(app.AppName),
		// 主日志由 main 创建（可能挂载了 Sentry 钩子），这里不再传 LogConfig
		app.WithLogger(l),
		app.WithNamedLoggers(cfg.Loggers),
	}
}

// provideTracerProvider 安装全局 TracerProvider 与传播器
func provideTracerProvider(cfg *Config) (*otel.TracerProvider, error) {
	return otel.New(&cfg.Otel)
}

func providePrometheusClient(cfg *Config, l logger.Logger) (*prometheus.Client, error) {
	return prometheus.New(&cfg.Prometheus, l)
}

// provideInitializer 服务端指标注册到进程的 Prometheus Registry
// tp 保证在创建 Initializer 之前已经安装全局 TracerProvider
func provideInitializer(cfg *Config, l logger.Logger, promClient *prometheus.Client, tp *otel.TracerProvider) (*httpx.Initializer, func(), error) {
	initializer, err := httpx.NewInitializer(&cfg.Remote,
		httpx.WithInitializerLogger(l),
		httpx.WithInitializerRegisterer(promClient.Registry()),
	)
	if err != nil {
		return nil, nil, err
	}
	return initializer, func() { _ = initializer.Close() }, nil
}

func provideTransporter(initializer *httpx.Initializer) (remote.Transporter, error) {
	return initializer.BuildTransporter()
}

// provideServerActor 调度端通过同一个出站传输向 worker 下发任务
func provideServerActor(cfg *Config, l logger.Logger, tr remote.Transporter) *actor.ServerActor {
	return actor.NewServerActor(&cfg.Server, l, actor.WithServerTransporter(tr))
}

func provideWorkerActor(cfg *Config, l logger.Logger) *actor.WorkerActor {
	return actor.NewWorkerActor(&cfg.Worker, l)
}

// provideActors 按进程角色选择要暴露的 actor
func provideActors(cfg *Config, s *actor.ServerActor, w *actor.WorkerActor) []remote.ActorInfo {
	if cfg.Remote.ServerType == remote.ServerTypeServer {
		return []remote.ActorInfo{s.Actor()}
	}
	return []remote.ActorInfo{w.Actor()}
}

// provideSystemCollector 只有上报心跳的 worker 需要周期采集
func provideSystemCollector(cfg *Config, l logger.Logger) (*system.Collector, func()) {
	c := system.New(system.WithLogger(l))
	if heartbeatEnabled(cfg) {
		c.Start(cfg.Heartbeat.Interval)
	}
	return c, c.Stop
}

func heartbeatEnabled(cfg *Config) bool {
	return cfg.Heartbeat.Enabled && cfg.Remote.ServerType != remote.ServerTypeServer
}

// provideReporter 只有 worker 角色上报心跳，心跳附带系统指标
func provideReporter(
	cfg *Config,
	tr remote.Transporter,
	initializer *httpx.Initializer,
	w *actor.WorkerActor,
	collector *system.Collector,
	l logger.Logger,
) *heartbeat.Reporter {
	hbCfg := cfg.Heartbeat
	hbCfg.Enabled = heartbeatEnabled(cfg)
	return heartbeat.NewReporter(&hbCfg, tr, l,
		heartbeat.WithAddressFunc(func() string { return advertiseAddress(cfg, initializer) }),
		heartbeat.WithRunningFunc(w.Running),
		heartbeat.WithSystemMetrics(collector.Snapshot),
	)
}

// advertiseAddress 配置优先，否则使用监听端口加绑定地址（未绑定具体地址时取主机名）
func advertiseAddress(cfg *Config, initializer *httpx.Initializer) string {
	if cfg.Heartbeat.WorkerAddress != "" {
		return cfg.Heartbeat.WorkerAddress
	}
	tcp, ok := initializer.Addr().(*net.TCPAddr)
	if !ok {
		return ""
	}
	host := cfg.Remote.BindHost
	if host == "" || host == "0.0.0.0" || host == "::" {
		h, err := os.Hostname()
		if err != nil {
			return ""
		}
		host = h
	}
	return net.JoinHostPort(host, strconv.Itoa(tcp.Port))
}

func provideAppComponents(
	rs *remoteServer,
	reporter *heartbeat.Reporter,
	promClient *prometheus.Client,
	tp *otel.TracerProvider,
	s *actor.ServerActor,
	w *actor.WorkerActor,
) app.AppComponents {
	return app.AppComponents{
		// 先监听再上报心跳；停止时逆序
		Servers: []app.Server{
			rs,
			reporter,
			promClient,
		},
		Closers: []app.Closer{
			tp,
			s,
			w,
		},
	}
}

// remoteServer 将 Initializer 包装为 app.Server：启动监听后安装路由
type remoteServer struct {
	initializer *httpx.Initializer
	actors      []remote.ActorInfo
	logger      logger.Logger
}

func newRemoteServer(initializer *httpx.Initializer, actors []remote.ActorInfo, l logger.Logger) *remoteServer {
	return &remoteServer{initializer: initializer, actors: actors, logger: l.Named("remoted")}
}

func (s *remoteServer) Start() error {
	if err := s.initializer.Init(context.Background()); err != nil {
		return err
	}
	if err := s.initializer.BindHandlers(s.actors); err != nil {
		return err
	}
	s.logger.Info("remote server ready",
		"addr", s.initializer.Addr().String(),
		"role", s.initializer.Config().ServerType.String(),
		"routes", s.initializer.RouteTable().Len(),
	)
	return nil
}

func (s *remoteServer) Stop() error {
	return s.initializer.Close()
}
