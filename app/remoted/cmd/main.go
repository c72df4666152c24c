package main

import (
	"github.com/lk2023060901/httpremote/app/remoted/internal/actor"
	"github.com/lk2023060901/httpremote/app/remoted/internal/heartbeat"
	"github.com/lk2023060901/httpremote/pkg/app"
	"github.com/lk2023060901/httpremote/pkg/config"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/otel"
	"github.com/lk2023060901/httpremote/pkg/prometheus"
	"github.com/lk2023060901/httpremote/pkg/remote/httpx"
	"github.com/lk2023060901/httpremote/pkg/sentry"
)

// Config 定义 remoted 进程的完整配置结构
type Config struct {
	Log     logger.Config             `mapstructure:"log"`
	Loggers map[string]*logger.Config `mapstructure:"loggers"`

	// HTTP 远程调用配置，server_type 决定进程角色
	Remote httpx.Config `mapstructure:"remote"`

	// 调度端（server 角色）
	Server actor.ServerConfig `mapstructure:"server"`

	// 执行端（worker 角色）
	Worker    actor.WorkerConfig `mapstructure:"worker"`
	Heartbeat heartbeat.Config   `mapstructure:"heartbeat"`

	Otel       otel.Config       `mapstructure:"otel"`
	Prometheus prometheus.Config `mapstructure:"prometheus"`
	// Sentry dsn 为空时不上报
	Sentry sentry.Config `mapstructure:"sentry"`
}

// defaults 声明所有配置项，保证环境变量可以覆盖
func defaults() map[string]any {
	log := logger.DefaultConfig()
	remote := httpx.DefaultConfig()
	server := actor.DefaultServerConfig()
	worker := actor.DefaultWorkerConfig()
	hb := heartbeat.DefaultConfig()
	tracing := otel.DefaultConfig()
	prom := prometheus.DefaultConfig()
	report := sentry.DefaultConfig()

	return map[string]any{
		"log.level":          string(log.Level),
		"log.format":         string(log.Format),
		"log.enable_console": log.EnableConsole,
		"log.enable_file":    log.EnableFile,
		"log.time_format":    log.TimeFormat,

		"remote.bind_host":                      "",
		"remote.bind_port":                      27777,
		"remote.server_type":                    string(remote.ServerType),
		"remote.keepalive_timeout":              remote.KeepAliveTimeout,
		"remote.read_timeout":                   remote.ReadTimeout,
		"remote.write_timeout":                  remote.WriteTimeout,
		"remote.shutdown_timeout":               remote.ShutdownTimeout,
		"remote.max_body_size":                  remote.MaxBodySize,
		"remote.mode":                           remote.Mode,
		"remote.pool.max_size":                  0,
		"remote.pool.idle_timeout":              remote.Pool.IdleTimeout,
		"remote.pool.cleanup_interval":          remote.Pool.CleanupInterval,
		"remote.pool.connect_timeout":           remote.Pool.ConnectTimeout,
		"remote.rate_limit.requests_per_second": 0,
		"remote.rate_limit.burst":               0,
		"remote.rate_limit.per_client":          false,
		"remote.rate_limit.max_clients":         remote.RateLimit.MaxClients,
		"remote.rate_limit.client_ttl":          remote.RateLimit.ClientTTL,
		"remote.compression.type":               "",
		"remote.compression.min_size":           remote.Compression.MinSize,
		"remote.auth.secret":                    "",
		"remote.auth.issuer":                    remote.Auth.Issuer,
		"remote.auth.ttl":                       remote.Auth.TTL,
		"remote.auth.leeway":                    remote.Auth.Leeway,
		"remote.ip_filter.allow":                []string{},
		"remote.ip_filter.deny":                 []string{},
		"remote.cors.allow_origins":             []string{},
		"remote.cors.max_age":                   remote.CORS.MaxAge,

		"server.max_workers":       server.MaxWorkers,
		"server.worker_ttl":        server.WorkerTTL,
		"server.cleanup_interval":  server.CleanupInterval,
		"server.machine_id":        server.MachineID,
		"server.strategy":          server.Strategy,
		"server.dispatch_timeout":  server.DispatchTimeout,
		"server.dispatch_attempts": server.DispatchAttempts,

		"worker.max_concurrency": worker.MaxConcurrency,
		"worker.max_retained":    worker.MaxRetained,
		"worker.retention":       worker.Retention,

		"heartbeat.enabled":        false,
		"heartbeat.server_address": "",
		"heartbeat.worker_address": "",
		"heartbeat.app_name":       hb.AppName,
		"heartbeat.interval":       hb.Interval,
		"heartbeat.timeout":        hb.Timeout,

		"otel.enabled":       tracing.Enabled,
		"otel.service_name":  tracing.ServiceName,
		"otel.endpoint":      tracing.Endpoint,
		"otel.exporter_type": string(tracing.ExporterType),
		"otel.sampler.type":  string(tracing.Sampler.Type),
		"otel.sampler.ratio": tracing.Sampler.Ratio,
		"otel.insecure":      tracing.Insecure,

		"prometheus.http_server.enabled":      prom.HTTPServer.Enabled,
		"prometheus.http_server.addr":         prom.HTTPServer.Addr,
		"prometheus.http_server.path":         prom.HTTPServer.Path,
		"prometheus.http_server.timeout":      prom.HTTPServer.Timeout,
		"prometheus.enable_go_collector":      prom.EnableGoCollector,
		"prometheus.enable_process_collector": prom.EnableProcessCollector,

		"sentry.dsn":              "",
		"sentry.environment":      report.Environment,
		"sentry.release":          "",
		"sentry.server_name":      "",
		"sentry.sample_rate":      report.SampleRate,
		"sentry.min_level":        report.MinLevel,
		"sentry.shutdown_timeout": report.ShutdownTimeout,
	}
}

func main() {
	var cfg Config

	// 1. 加载配置
	if err := app.LoadConfig(&cfg, config.WithDefaults(defaults())); err != nil {
		panic(err)
	}

	// 2. 初始化主日志，配置了 Sentry 时错误日志同时上报
	logOpts := []logger.Option{logger.WithHooks(logger.RedactHook("authorization", "token", "secret"))}
	if cfg.Sentry.Enabled() {
		reporter, err := sentry.New(&cfg.Sentry)
		if err != nil {
			panic(err)
		}
		defer reporter.Close()
		logOpts = append(logOpts, logger.WithHooks(reporter.LogHook()))
	}
	l, err := logger.New(&cfg.Log, logOpts...)
	if err != nil {
		panic(err)
	}

	// 3. 通过 Wire 初始化应用
	application, cleanup, err := InitApp(&cfg, l)
	if err != nil {
		l.Error("failed to initialize application", "error", err)
		return
	}
	defer cleanup()

	// 4. 运行服务
	if err := application.Run(); err != nil {
		l.Error("application exited with error", "error", err)
	}
}
