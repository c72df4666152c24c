package actor

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/balancer"
	"github.com/lk2023060901/httpremote/pkg/cache/lru"
	"github.com/lk2023060901/httpremote/pkg/idgen"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/remote"
)

// ServerConfig 调度端配置
type ServerConfig struct {
	// MaxWorkers 最多记录的 worker 数量
	MaxWorkers int `mapstructure:"max_workers" validate:"gte=0"`
	// WorkerTTL 超过该时间没有心跳的 worker 视为离线
	WorkerTTL time.Duration `mapstructure:"worker_ttl"`
	// CleanupInterval 离线 worker 清理间隔
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	// MachineID 实例 ID 中的机器号，多个调度端必须不同
	MachineID uint16 `mapstructure:"machine_id"`
	// Strategy 默认的 worker 选择策略
	Strategy string `mapstructure:"strategy" validate:"omitempty,oneof=random round_robin weighted consistent_hash least_loaded"`
	// DispatchTimeout 单次下发任务的超时
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	// DispatchAttempts worker 拒绝或不可达时最多尝试的 worker 数
	DispatchAttempts int `mapstructure:"dispatch_attempts" validate:"gte=0"`
}

var (
	// ErrNoWorker 没有满足条件的存活 worker
	ErrNoWorker = errors.New("no available worker")
	// ErrNoTransporter 调度端未配置出站传输，无法下发任务
	ErrNoTransporter = errors.New("server actor has no transporter")
)

func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxWorkers:       4096,
		WorkerTTL:        45 * time.Second,
		CleanupInterval:  time.Minute,
		Strategy:         balancer.WeightedName,
		DispatchTimeout:  3 * time.Second,
		DispatchAttempts: 3,
	}
}

// ServerActor 接收 worker 心跳并维护存活列表，按策略选择 worker 下发任务
type ServerActor struct {
	config      ServerConfig
	workers     *lru.LRU[string, WorkerInfo]
	balancers   map[string]balancer.Balancer
	ids         idgen.Generator
	transporter remote.Transporter
	logger      logger.Logger
}

// ServerOption ServerActor 选项
type ServerOption func(*serverOptions)

type serverOptions struct {
	now         func() time.Time
	ids         idgen.Generator
	transporter remote.Transporter
}

// WithServerClock 替换时间源
func WithServerClock(now func() time.Time) ServerOption {
	return func(o *serverOptions) {
		o.now = now
	}
}

// WithServerTransporter 下发任务使用的出站传输
func WithServerTransporter(tr remote.Transporter) ServerOption {
	return func(o *serverOptions) {
		o.transporter = tr
	}
}

// WithIDGenerator 替换实例 ID 生成器
func WithIDGenerator(g idgen.Generator) ServerOption {
	return func(o *serverOptions) {
		o.ids = g
	}
}

func NewServerActor(cfg *ServerConfig, l logger.Logger, opts ...ServerOption) *ServerActor {
	def := DefaultServerConfig()
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.WorkerTTL <= 0 {
		c.WorkerTTL = def.WorkerTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = def.DispatchTimeout
	}
	if c.DispatchAttempts <= 0 {
		c.DispatchAttempts = def.DispatchAttempts
	}

	o := serverOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	s := &ServerActor{
		config:      c,
		balancers:   make(map[string]balancer.Balancer),
		ids:         o.ids,
		transporter: o.transporter,
		logger:      l.Named("remoted.server"),
	}
	for _, name := range balancer.Names() {
		b, _ := balancer.New(name)
		s.balancers[name] = b
	}
	if s.ids == nil {
		g, err := idgen.NewSonyflake(c.MachineID)
		if err != nil {
			s.logger.Error("instance id generator unavailable", "error", err)
		}
		s.ids = g
	}
	s.workers = lru.New[string, WorkerInfo](&lru.Config{
		MaxSize:         c.MaxWorkers,
		DefaultTTL:      c.WorkerTTL,
		CleanupInterval: c.CleanupInterval,
	},
		lru.WithClock[string, WorkerInfo](o.now),
		lru.WithOnEvict(func(addr string, w WorkerInfo, reason lru.EvictReason) {
			s.logger.Info("worker removed", "address", addr, "app", w.AppName, "reason", reason.String())
		}),
	)
	return s
}

// Actor 返回注册信息
func (s *ServerActor) Actor() remote.ActorInfo {
	return remote.NewActorInfo(s,
		remote.Handle(PathServerHeartbeat, "Heartbeat"),
		remote.Handle(PathServerListWorkers, "ListWorkers"),
		remote.Handle(PathServerPickWorker, "PickWorker"),
		remote.Handle(PathServerDispatchJob, "DispatchJob"),
	)
}

func (s *ServerActor) Heartbeat(ctx context.Context, hb *WorkerHeartbeat) error {
	if _, err := remote.ParseAddress(hb.WorkerAddress); err != nil {
		return err
	}

	info := WorkerInfo{
		Address:       hb.WorkerAddress,
		AppName:       hb.AppName,
		LastActive:    hb.HeartbeatTime,
		Running:       hb.Running,
		Tags:          hb.Tags,
		SystemMetrics: hb.SystemMetrics,
	}
	if hb.SystemMetrics != nil {
		info.Score = hb.SystemMetrics.Score()
	}

	_, known := s.workers.Peek(hb.WorkerAddress)
	s.workers.Set(hb.WorkerAddress, info)
	if !known {
		s.logger.Info("worker online", "address", hb.WorkerAddress, "app", hb.AppName)
	} else {
		s.logger.Debug("worker heartbeat", "address", hb.WorkerAddress, "running", hb.Running)
	}
	return nil
}

func (s *ServerActor) ListWorkers(req *ListWorkersReq) *WorkerList {
	list := &WorkerList{Workers: []WorkerInfo{}}
	for _, addr := range s.workers.Keys() {
		w, ok := s.workers.Peek(addr)
		if !ok {
			continue
		}
		if req.AppName != "" && w.AppName != req.AppName {
			continue
		}
		if !req.accept(w.SystemMetrics) {
			continue
		}
		list.Workers = append(list.Workers, w)
	}
	sort.Slice(list.Workers, func(i, j int) bool {
		a, b := list.Workers[i], list.Workers[j]
		if req.OrderByScore && a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Address < b.Address
	})
	return list
}

// PickWorker 在满足条件的存活 worker 中按策略选一个
// weighted 以资源评分作为权重，least_loaded 以运行中的任务数作为负载
func (s *ServerActor) PickWorker(req *PickWorkerReq) (*WorkerInfo, error) {
	return s.pick(req, nil)
}

func (s *ServerActor) pick(req *PickWorkerReq, exclude map[string]struct{}) (*WorkerInfo, error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = s.config.Strategy
	}
	b, ok := s.balancers[strategy]
	if !ok {
		return nil, errors.Wrapf(balancer.ErrUnknown, "%q", strategy)
	}

	candidates := s.ListWorkers(req.filter()).Workers
	nodes := make([]*balancer.Node, 0, len(candidates))
	for i := range candidates {
		w := &candidates[i]
		if _, skip := exclude[w.Address]; skip {
			continue
		}
		nodes = append(nodes, &balancer.Node{
			Address: w.Address,
			Weight:  int(math.Max(1, math.Round(w.Score))),
			Load:    w.Running,
			Value:   w,
		})
	}

	picked := b.Pick(nodes, balancer.PickInfo{Key: req.Key})
	if picked == nil {
		return nil, errors.Wrapf(ErrNoWorker, "app %q", req.AppName)
	}
	return picked.Value.(*WorkerInfo), nil
}

// DispatchJob 分配实例 ID 并把任务下发给选中的 worker
// worker 拒绝或不可达时换一个 worker 重试，最多 DispatchAttempts 次
func (s *ServerActor) DispatchJob(ctx context.Context, req *DispatchJobReq) (*DispatchResult, error) {
	if s.transporter == nil {
		return nil, ErrNoTransporter
	}
	if s.ids == nil {
		return nil, errors.New("instance id generator unavailable")
	}
	instanceID, err := s.ids.NextID()
	if err != nil {
		return nil, err
	}

	result := &DispatchResult{InstanceID: instanceID}
	pickReq := req.pick()
	tried := make(map[string]struct{})
	for result.Attempts < s.config.DispatchAttempts {
		w, err := s.pick(pickReq, tried)
		if err != nil {
			if result.Attempts > 0 && errors.Is(err, ErrNoWorker) {
				break
			}
			return nil, err
		}
		tried[w.Address] = struct{}{}
		result.Attempts++
		result.WorkerAddress = w.Address

		ack, err := s.runOn(ctx, w.Address, instanceID, req)
		if err != nil {
			result.Reason = err.Error()
			s.logger.Warn("dispatch failed", "instance", instanceID, "worker", w.Address, "error", err)
			continue
		}
		if !ack.Accepted {
			result.Reason = ack.Reason
			s.logger.Info("dispatch rejected", "instance", instanceID, "worker", w.Address, "reason", ack.Reason)
			continue
		}

		result.Accepted = true
		result.Reason = ""
		s.logger.Info("job dispatched", "instance", instanceID, "job", req.JobID, "worker", w.Address)
		return result, nil
	}
	return result, nil
}

func (s *ServerActor) runOn(ctx context.Context, address string, instanceID int64, req *DispatchJobReq) (*RunJobAck, error) {
	addr, err := remote.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
	defer cancel()

	ack := &RunJobAck{}
	err = s.transporter.Ask(ctx, remote.NewURL(addr, PathWorkerRunJob), &RunJobReq{
		InstanceID: instanceID,
		JobID:      req.JobID,
		Processor:  req.Processor,
		Params:     req.Params,
		TimeoutMs:  req.TimeoutMs,
	}, ack)
	if err != nil {
		return nil, err
	}
	return ack, nil
}

// Close 释放后台清理协程
func (s *ServerActor) Close() error {
	return s.workers.Close()
}
