package main

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/lk2023060901/httpremote/app/remoted/internal/actor"
	"github.com/lk2023060901/httpremote/pkg/app"
	"github.com/lk2023060901/httpremote/pkg/config"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/lk2023060901/httpremote/pkg/remote/httpx"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func loadTestConfig(t *testing.T, env map[string]string) *Config {
	t.Helper()
	t.Setenv("HTTPREMOTE_CONFIG", "")
	for k, v := range env {
		t.Setenv(k, v)
	}
	var cfg Config
	fs := pflag.NewFlagSet("remoted", pflag.ContinueOnError)
	require.NoError(t, app.LoadConfigFrom(fs, nil, &cfg, config.WithDefaults(defaults())))
	return &cfg
}

func runApp(t *testing.T, cfg *Config) {
	t.Helper()
	application, cleanup, err := InitApp(cfg, logger.NewNoop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.RunContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("application did not stop")
		}
		cleanup()
	})
}

func TestDefaults_LoadWithoutFile(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"HTTPREMOTE_REMOTE_SERVER_TYPE":     "server",
		"HTTPREMOTE_HEARTBEAT_INTERVAL":     "5s",
		"HTTPREMOTE_OTEL_ENABLED":           "false",
		"HTTPREMOTE_WORKER_MAX_CONCURRENCY": "4",
	})

	assert.Equal(t, remote.ServerTypeServer, cfg.Remote.ServerType)
	assert.Equal(t, 27777, cfg.Remote.BindPort)
	assert.Equal(t, 5*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 4, cfg.Worker.MaxConcurrency)
	assert.False(t, cfg.Otel.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Server.WorkerTTL)
	assert.Equal(t, httpx.DefaultConfig().MaxBodySize, cfg.Remote.MaxBodySize)
	assert.Equal(t, 1024, cfg.Remote.Compression.MinSize)
	assert.Equal(t, 5*time.Minute, cfg.Remote.Auth.TTL)
	assert.False(t, cfg.Sentry.Enabled())
	assert.Equal(t, "error", cfg.Sentry.MinLevel)
	assert.Equal(t, "weighted", cfg.Server.Strategy)
	assert.Equal(t, 3, cfg.Server.DispatchAttempts)
}

func TestInitApp_WorkerHeartbeatsToServer(t *testing.T) {
	serverPort := freePort(t)
	serverCfg := loadTestConfig(t, map[string]string{
		"HTTPREMOTE_REMOTE_SERVER_TYPE": "server",
		"HTTPREMOTE_REMOTE_BIND_HOST":   "127.0.0.1",
		"HTTPREMOTE_REMOTE_BIND_PORT":   strconv.Itoa(serverPort),
		"HTTPREMOTE_OTEL_ENABLED":       "false",
	})
	runApp(t, serverCfg)

	serverAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(serverPort))
	workerCfg := loadTestConfig(t, map[string]string{
		"HTTPREMOTE_REMOTE_SERVER_TYPE":       "Worker",
		"HTTPREMOTE_REMOTE_COMPRESSION_TYPE":  "gzip",
		"HTTPREMOTE_REMOTE_BIND_HOST":         "127.0.0.1",
		"HTTPREMOTE_REMOTE_BIND_PORT":         "0",
		"HTTPREMOTE_HEARTBEAT_ENABLED":        "true",
		"HTTPREMOTE_HEARTBEAT_SERVER_ADDRESS": serverAddr,
		"HTTPREMOTE_HEARTBEAT_APP_NAME":       "billing",
		"HTTPREMOTE_HEARTBEAT_INTERVAL":       "50ms",
		"HTTPREMOTE_OTEL_ENABLED":             "false",
	})
	runApp(t, workerCfg)

	tr, err := httpx.NewTransporter(&httpx.Config{}, httpx.WithLogger(logger.NewNoop()))
	require.NoError(t, err)
	defer tr.Close()

	addr, err := remote.ParseAddress(serverAddr)
	require.NoError(t, err)
	url := remote.NewURL(addr, actor.PathServerListWorkers)

	var workers actor.WorkerList
	require.Eventually(t, func() bool {
		list, err := httpx.AskAs[actor.WorkerList](context.Background(), tr, url, &actor.ListWorkersReq{AppName: "billing"})
		if err != nil || len(list.Workers) == 0 {
			return false
		}
		workers = list
		return true
	}, 5*time.Second, 20*time.Millisecond)

	// 心跳附带系统指标
	assert.NotNil(t, workers.Workers[0].SystemMetrics)

	// 心跳中的地址就是 worker 实际监听的地址
	workerAddr, err := remote.ParseAddress(workers.Workers[0].Address)
	require.NoError(t, err)
	pong, err := httpx.AskAs[string](context.Background(), tr, remote.NewURL(workerAddr, actor.PathWorkerPing), &actor.PingReq{From: "test"})
	require.NoError(t, err)
	assert.Equal(t, "pong", pong)

	// 调度端经同一套传输把任务下发给 worker
	res, err := httpx.AskAs[actor.DispatchResult](context.Background(), tr, remote.NewURL(addr, actor.PathServerDispatchJob),
		&actor.DispatchJobReq{AppName: "billing", JobID: 1, Processor: "echo", Params: "hello"})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, workers.Workers[0].Address, res.WorkerAddress)
	assert.NotZero(t, res.InstanceID)
}

func TestProvideActors_ByRole(t *testing.T) {
	s := actor.NewServerActor(nil, logger.NewNoop())
	defer s.Close()
	w := actor.NewWorkerActor(nil, logger.NewNoop())
	defer w.Close()

	cfg := &Config{Remote: httpx.Config{ServerType: remote.ServerTypeServer}}
	actors := provideActors(cfg, s, w)
	require.Len(t, actors, 1)
	assert.Same(t, s, actors[0].Actor)

	cfg.Remote.ServerType = remote.ServerTypeWorker
	actors = provideActors(cfg, s, w)
	require.Len(t, actors, 1)
	assert.Same(t, w, actors[0].Actor)
}
