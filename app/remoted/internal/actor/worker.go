package actor

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/cache/lru"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/lk2023060901/httpremote/pkg/util/conc"
	"github.com/panjf2000/ants/v2"
)

// Processor 任务处理器，返回值作为任务结果
type Processor func(ctx context.Context, params string) (string, error)

// WorkerConfig 执行端配置
type WorkerConfig struct {
	// MaxConcurrency 同时运行的任务上限
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"gte=0"`
	// MaxRetained 保留的已结束任务数量
	MaxRetained int `mapstructure:"max_retained" validate:"gte=0"`
	// Retention 已结束任务的保留时间
	Retention time.Duration `mapstructure:"retention"`
}

func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		MaxConcurrency: 16,
		MaxRetained:    1024,
		Retention:      10 * time.Minute,
	}
}

type job struct {
	status  JobStatus
	cancel  context.CancelFunc
	stopped bool
}

// WorkerActor 接收调度请求并在协程池中执行任务
type WorkerActor struct {
	mu         sync.Mutex
	processors map[string]Processor
	running    map[int64]*job
	finished   *lru.LRU[int64, JobStatus]
	pool       *conc.Pool[struct{}]
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
	logger logger.Logger
}

func NewWorkerActor(cfg *WorkerConfig, l logger.Logger) *WorkerActor {
	if cfg == nil {
		cfg = DefaultWorkerConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &WorkerActor{
		processors: map[string]Processor{
			"echo":  echoProcessor,
			"sleep": sleepProcessor,
		},
		running: make(map[int64]*job),
		finished: lru.New[int64, JobStatus](&lru.Config{
			MaxSize:    cfg.MaxRetained,
			DefaultTTL: cfg.Retention,
		}),
		pool:   conc.NewPool[struct{}](cfg.MaxConcurrency, ants.WithNonblocking(true)),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
		logger: l.Named("remoted.worker"),
	}
	return w
}

// Actor 返回注册信息
func (w *WorkerActor) Actor() remote.ActorInfo {
	return remote.NewActorInfo(w,
		remote.Handle(PathWorkerPing, "Ping"),
		remote.Handle(PathWorkerRunJob, "RunJob"),
		remote.Handle(PathWorkerStopJob, "StopJob"),
		remote.Handle(PathWorkerQueryJob, "QueryJob"),
	)
}

// RegisterProcessor 注册或替换处理器
func (w *WorkerActor) RegisterProcessor(name string, p Processor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processors[name] = p
}

// Running 正在运行的任务数
func (w *WorkerActor) Running() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.running)
}

func (w *WorkerActor) Ping(req *PingReq) string {
	w.logger.Debug("ping", "from", req.From)
	return "pong"
}

func (w *WorkerActor) RunJob(ctx context.Context, req *RunJobReq) (*RunJobAck, error) {
	if w.ctx.Err() != nil {
		return nil, errors.New("worker is shutting down")
	}

	w.mu.Lock()
	proc, ok := w.processors[req.Processor]
	if !ok {
		w.mu.Unlock()
		return reject(req, "unknown processor "+req.Processor), nil
	}
	if _, dup := w.running[req.InstanceID]; dup {
		w.mu.Unlock()
		return reject(req, "instance already running"), nil
	}

	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if req.TimeoutMs > 0 {
		jobCtx, cancel = context.WithTimeout(w.ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
	} else {
		jobCtx, cancel = context.WithCancel(w.ctx)
	}
	j := &job{
		status: JobStatus{
			InstanceID: req.InstanceID,
			JobID:      req.JobID,
			State:      JobRunning,
			StartedAt:  w.now().UnixMilli(),
		},
		cancel: cancel,
	}
	w.running[req.InstanceID] = j
	w.finished.Delete(req.InstanceID)
	w.wg.Add(1)
	w.mu.Unlock()

	future := w.pool.Submit(func() (struct{}, error) {
		defer w.wg.Done()
		result, err := runProcessor(jobCtx, proc, req.Params)
		w.complete(jobCtx, j, result, err)
		return struct{}{}, nil
	})
	if future.Done() && errors.Is(future.Err(), ants.ErrPoolOverload) {
		w.wg.Done()
		cancel()
		w.mu.Lock()
		delete(w.running, req.InstanceID)
		w.mu.Unlock()
		return reject(req, "too many running jobs"), nil
	}

	w.logger.Info("job started", "instance", req.InstanceID, "job", req.JobID, "processor", req.Processor)
	return &RunJobAck{InstanceID: req.InstanceID, Accepted: true}, nil
}

func (w *WorkerActor) complete(ctx context.Context, j *job, result string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	j.cancel()
	st := j.status
	st.FinishedAt = w.now().UnixMilli()
	switch {
	case j.stopped:
		st.State = JobStopped
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		st.State = JobFailed
		st.Result = "timeout"
	case err != nil:
		st.State = JobFailed
		st.Result = err.Error()
	default:
		st.State = JobSucceeded
		st.Result = result
	}

	delete(w.running, st.InstanceID)
	w.finished.Set(st.InstanceID, st)
	w.logger.Info("job finished", "instance", st.InstanceID, "state", string(st.State))
}

// StopJob 停止运行中的任务，已结束的任务直接返回
func (w *WorkerActor) StopJob(req *StopJobReq) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if j, ok := w.running[req.InstanceID]; ok {
		j.stopped = true
		j.cancel()
		return nil
	}
	if _, ok := w.finished.Peek(req.InstanceID); ok {
		return nil
	}
	return errors.Newf("instance %d not found", req.InstanceID)
}

func (w *WorkerActor) QueryJob(req *QueryJobReq) *JobStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	if j, ok := w.running[req.InstanceID]; ok {
		st := j.status
		return &st
	}
	if st, ok := w.finished.Peek(req.InstanceID); ok {
		return &st
	}
	return &JobStatus{InstanceID: req.InstanceID, State: JobUnknown}
}

// Close 取消所有运行中的任务并等待退出，可重复调用
func (w *WorkerActor) Close() error {
	w.cancel()
	w.wg.Wait()
	w.pool.Release()
	return w.finished.Close()
}

func reject(req *RunJobReq, reason string) *RunJobAck {
	return &RunJobAck{InstanceID: req.InstanceID, Accepted: false, Reason: reason}
}

func runProcessor(ctx context.Context, proc Processor, params string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("processor panic: %v", r)
		}
	}()
	return proc(ctx, params)
}

func echoProcessor(_ context.Context, params string) (string, error) {
	return params, nil
}

// sleepProcessor params 为 time.ParseDuration 格式
func sleepProcessor(ctx context.Context, params string) (string, error) {
	d, err := time.ParseDuration(params)
	if err != nil {
		return "", errors.Wrapf(err, "invalid sleep duration %q", params)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return "slept " + d.String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
