package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/app/remoted/internal/actor"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/metrics/system"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/lk2023060901/httpremote/pkg/util/conc"
)

// Config 心跳上报配置
type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// ServerAddress 调度端地址 host:port
	ServerAddress string `mapstructure:"server_address"`
	// WorkerAddress 上报给调度端的本机地址，为空时使用实际监听地址
	WorkerAddress string        `mapstructure:"worker_address"`
	AppName       string        `mapstructure:"app_name"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Tags          []string      `mapstructure:"tags"`
}

func DefaultConfig() *Config {
	return &Config{
		AppName:  "default",
		Interval: 15 * time.Second,
		Timeout:  3 * time.Second,
	}
}

// Option Reporter 选项
type Option func(*Reporter)

// WithAddressFunc 延迟获取本机地址，服务端启动后才能确定端口
func WithAddressFunc(fn func() string) Option {
	return func(r *Reporter) {
		r.addressFn = fn
	}
}

// WithRunningFunc 上报运行中的任务数
func WithRunningFunc(fn func() int) Option {
	return func(r *Reporter) {
		r.runningFn = fn
	}
}

// WithSystemMetrics 心跳附带系统指标
func WithSystemMetrics(fn func() system.Snapshot) Option {
	return func(r *Reporter) {
		r.metricsFn = fn
	}
}

// Reporter 周期性地向调度端 Tell 心跳
type Reporter struct {
	config      *Config
	transporter remote.Transporter
	logger      logger.Logger
	addressFn   func() string
	runningFn   func() int
	metricsFn   func() system.Snapshot
	now         func() time.Time

	mu      sync.Mutex
	server  remote.URL
	stopCh  chan struct{}
	running *conc.Future[struct{}]
}

func NewReporter(cfg *Config, tr remote.Transporter, l logger.Logger, opts ...Option) *Reporter {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.AppName == "" {
		c.AppName = def.AppName
	}

	r := &Reporter{
		config:      &c,
		transporter: tr,
		logger:      l.Named("remoted.heartbeat"),
		addressFn:   func() string { return c.WorkerAddress },
		runningFn:   func() int { return 0 },
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 立即上报一次，之后按 Interval 周期上报
// 未启用时什么都不做
func (r *Reporter) Start() error {
	if !r.config.Enabled {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running != nil {
		return errors.New("heartbeat reporter already started")
	}

	addr, err := remote.ParseAddress(r.config.ServerAddress)
	if err != nil {
		return errors.Wrap(err, "invalid heartbeat server address")
	}
	r.server = remote.NewURL(addr, actor.PathServerHeartbeat)
	r.stopCh = make(chan struct{})

	stopCh := r.stopCh
	r.running = conc.Go(func() (struct{}, error) {
		r.loop(stopCh)
		return struct{}{}, nil
	})
	r.logger.Info("heartbeat reporter started", "server", addr.String(), "interval", r.config.Interval)
	return nil
}

func (r *Reporter) loop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
		if err := r.Report(ctx); err != nil {
			r.logger.Warn("heartbeat failed", "server", r.server.String(), "error", err)
		}
		cancel()

		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}
	}
}

// Report 发送一次心跳
func (r *Reporter) Report(ctx context.Context) error {
	r.mu.Lock()
	url := r.server
	r.mu.Unlock()

	self := r.addressFn()
	if self == "" {
		return errors.New("local address is not known yet")
	}
	hb := &actor.WorkerHeartbeat{
		WorkerAddress: self,
		AppName:       r.config.AppName,
		HeartbeatTime: r.now().UnixMilli(),
		Running:       r.runningFn(),
		Tags:          r.config.Tags,
	}
	if r.metricsFn != nil {
		m := r.metricsFn()
		hb.SystemMetrics = &m
	}
	return r.transporter.Tell(ctx, url, hb)
}

// Stop 停止上报并等待循环退出，可重复调用
func (r *Reporter) Stop() error {
	r.mu.Lock()
	running, stopCh := r.running, r.stopCh
	r.running, r.stopCh = nil, nil
	r.mu.Unlock()

	if running == nil {
		return nil
	}
	close(stopCh)
	_, err := running.Await()
	r.logger.Info("heartbeat reporter stopped")
	return err
}
