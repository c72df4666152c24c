package system

import (
	"context"
	"math"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/util/conc"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const gib = 1 << 30

// Snapshot 一次采集的主机与进程指标
type Snapshot struct {
	CPUCores   int     `json:"cpuCores"`
	CPUPercent float64 `json:"cpuPercent"`
	// Load1 一分钟平均负载，不支持的平台为 0
	Load1 float64 `json:"load1"`

	MemoryTotal   uint64  `json:"memoryTotal"`
	MemoryUsed    uint64  `json:"memoryUsed"`
	MemoryPercent float64 `json:"memoryPercent"`

	DiskTotal   uint64  `json:"diskTotal"`
	DiskFree    uint64  `json:"diskFree"`
	DiskPercent float64 `json:"diskPercent"`

	// ProcessRSS 当前进程常驻内存
	ProcessRSS uint64 `json:"processRss"`
	Goroutines int    `json:"goroutines"`

	CollectedAt time.Time `json:"collectedAt"`
}

// MemoryFree 可用内存字节数
func (s Snapshot) MemoryFree() uint64 {
	if s.MemoryUsed >= s.MemoryTotal {
		return 0
	}
	return s.MemoryTotal - s.MemoryUsed
}

// Score 可用资源评分，可用内存（GiB）权重 2，空闲核数权重 1
func (s Snapshot) Score() float64 {
	idleCores := math.Max(0, float64(s.CPUCores)-s.Load1)
	return float64(s.MemoryFree())/gib*2 + idleCores
}

// Sampler 采集一次指标
type Sampler func(ctx context.Context) (Snapshot, error)

// Option Collector 选项
type Option func(*Collector)

// WithDiskPath 统计磁盘使用的路径，默认为工作目录
func WithDiskPath(path string) Option {
	return func(c *Collector) {
		if path != "" {
			c.diskPath = path
		}
	}
}

// WithSampler 替换采集实现
func WithSampler(s Sampler) Option {
	return func(c *Collector) {
		if s != nil {
			c.sampler = s
		}
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// Collector 周期性采集系统指标，读取的是最近一次结果
type Collector struct {
	diskPath string
	sampler  Sampler
	proc     *process.Process
	logger   logger.Logger

	mu      sync.RWMutex
	stats   Snapshot
	stopCh  chan struct{}
	running *conc.Future[struct{}]
}

// New 创建系统指标收集器
func New(opts ...Option) *Collector {
	c := &Collector{
		diskPath: ".",
		logger:   logger.Default(),
	}
	if wd, err := os.Getwd(); err == nil {
		c.diskPath = wd
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("metrics.system")
	if c.sampler == nil {
		// 进程句柄获取失败时不统计 RSS
		c.proc, _ = process.NewProcess(int32(os.Getpid()))
		c.sampler = c.sample
	}
	return c
}

// Start 立即采集一次，之后按 interval 周期采集，重复调用无效
func (c *Collector) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	c.mu.Lock()
	if c.running != nil {
		c.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	c.stopCh = stopCh
	c.running = conc.Go(func() (struct{}, error) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Collect(context.Background())
			case <-stopCh:
				return struct{}{}, nil
			}
		}
	})
	c.mu.Unlock()

	c.Collect(context.Background())
}

// Stop 停止采集并等待后台协程退出
func (c *Collector) Stop() {
	c.mu.Lock()
	running, stopCh := c.running, c.stopCh
	c.running, c.stopCh = nil, nil
	c.mu.Unlock()

	if running == nil {
		return
	}
	close(stopCh)
	_, _ = running.Await()
}

// Collect 执行一次采集并更新缓存
func (c *Collector) Collect(ctx context.Context) Snapshot {
	stats, err := c.sampler(ctx)
	if err != nil {
		c.logger.Warn("collect system metrics failed", "error", err)
	}
	if stats.CollectedAt.IsZero() {
		stats.CollectedAt = time.Now()
	}

	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
	return stats
}

// Snapshot 最近一次采集结果，从未采集时实时采集一次
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	stats := c.stats
	c.mu.RUnlock()

	if stats.CollectedAt.IsZero() {
		return c.Collect(context.Background())
	}
	return stats
}

// sample 单项失败不影响其它指标，返回最后一个错误
func (c *Collector) sample(ctx context.Context) (Snapshot, error) {
	var (
		s       Snapshot
		lastErr error
	)

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		s.CPUCores = n
	} else {
		s.CPUCores = runtime.NumCPU()
		lastErr = err
	}
	if p, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(p) > 0 {
		s.CPUPercent = p[0]
	} else if err != nil {
		lastErr = err
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.Load1 = avg.Load1
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemoryTotal = vm.Total
		s.MemoryUsed = vm.Used
		s.MemoryPercent = vm.UsedPercent
	} else {
		lastErr = err
	}

	if du, err := disk.UsageWithContext(ctx, c.diskPath); err == nil {
		s.DiskTotal = du.Total
		s.DiskFree = du.Free
		s.DiskPercent = du.UsedPercent
	} else {
		lastErr = err
	}

	if c.proc != nil {
		if info, err := c.proc.MemoryInfoWithContext(ctx); err == nil {
			s.ProcessRSS = info.RSS
		}
	}

	s.Goroutines = runtime.NumGoroutine()
	s.CollectedAt = time.Now()
	return s, lastErr
}
