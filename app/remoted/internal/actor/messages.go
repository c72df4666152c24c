package actor

import (
	"strconv"

	"github.com/lk2023060901/httpremote/pkg/metrics/system"
	"github.com/lk2023060901/httpremote/pkg/remote"
)

// 路由
const (
	PathServerHeartbeat   = "/server/heartbeat"
	PathServerListWorkers = "/server/listWorkers"
	PathServerPickWorker  = "/server/pickWorker"
	PathServerDispatchJob = "/server/dispatchJob"

	PathWorkerPing     = "/worker/ping"
	PathWorkerRunJob   = "/worker/runJob"
	PathWorkerStopJob  = "/worker/stopJob"
	PathWorkerQueryJob = "/worker/queryJob"
)

// WorkerHeartbeat worker 定期上报给 server
type WorkerHeartbeat struct {
	remote.Message
	WorkerAddress string   `json:"workerAddress"`
	AppName       string   `json:"appName"`
	HeartbeatTime int64    `json:"heartbeatTime"`
	Running       int      `json:"running"`
	Tags          []string `json:"tags,omitempty"`

	SystemMetrics *system.Snapshot `json:"systemMetrics,omitempty"`
}

// ListWorkersReq AppName 为空时返回全部存活 worker
// 设置了任一资源下限时，没有上报系统指标的 worker 被过滤掉
type ListWorkersReq struct {
	remote.Message
	AppName     string  `json:"appName"`
	MinCPUCores int     `json:"minCpuCores,omitempty"`
	MinMemoryGB float64 `json:"minMemoryGb,omitempty"`
	MinDiskGB   float64 `json:"minDiskGb,omitempty"`
	// OrderByScore 按可用资源评分从高到低排序，默认按地址排序
	OrderByScore bool `json:"orderByScore,omitempty"`
}

func (r *ListWorkersReq) hasResourceFilter() bool {
	return r.MinCPUCores > 0 || r.MinMemoryGB > 0 || r.MinDiskGB > 0
}

// accept 判断 worker 是否满足资源下限
func (r *ListWorkersReq) accept(m *system.Snapshot) bool {
	if !r.hasResourceFilter() {
		return true
	}
	if m == nil {
		return false
	}
	const gb = 1 << 30
	return m.CPUCores >= r.MinCPUCores &&
		float64(m.MemoryFree())/gb >= r.MinMemoryGB &&
		float64(m.DiskFree)/gb >= r.MinDiskGB
}

// PickWorkerReq Strategy 为空时使用调度端默认策略
// Key 供 consistent_hash 使用
type PickWorkerReq struct {
	remote.Message
	AppName     string  `json:"appName"`
	Strategy    string  `json:"strategy,omitempty"`
	Key         string  `json:"key,omitempty"`
	MinCPUCores int     `json:"minCpuCores,omitempty"`
	MinMemoryGB float64 `json:"minMemoryGb,omitempty"`
	MinDiskGB   float64 `json:"minDiskGb,omitempty"`
}

func (r *PickWorkerReq) filter() *ListWorkersReq {
	return &ListWorkersReq{
		AppName:     r.AppName,
		MinCPUCores: r.MinCPUCores,
		MinMemoryGB: r.MinMemoryGB,
		MinDiskGB:   r.MinDiskGB,
	}
}

// DispatchJobReq 调度端分配实例 ID 并选择 worker 执行
type DispatchJobReq struct {
	remote.Message
	AppName   string `json:"appName"`
	JobID     int64  `json:"jobId"`
	Processor string `json:"processor"`
	Params    string `json:"params"`
	TimeoutMs int64  `json:"timeoutMs"`
	// Strategy 为空时使用调度端默认策略，consistent_hash 以 JobID 为 key
	Strategy    string  `json:"strategy,omitempty"`
	MinCPUCores int     `json:"minCpuCores,omitempty"`
	MinMemoryGB float64 `json:"minMemoryGb,omitempty"`
	MinDiskGB   float64 `json:"minDiskGb,omitempty"`
}

func (r *DispatchJobReq) pick() *PickWorkerReq {
	return &PickWorkerReq{
		AppName:     r.AppName,
		Strategy:    r.Strategy,
		Key:         strconv.FormatInt(r.JobID, 10),
		MinCPUCores: r.MinCPUCores,
		MinMemoryGB: r.MinMemoryGB,
		MinDiskGB:   r.MinDiskGB,
	}
}

// DispatchResult Accepted 为 false 时 Reason 是最后一个 worker 的拒绝原因
type DispatchResult struct {
	InstanceID    int64  `json:"instanceId"`
	WorkerAddress string `json:"workerAddress,omitempty"`
	Accepted      bool   `json:"accepted"`
	Reason        string `json:"reason,omitempty"`
	Attempts      int    `json:"attempts"`
}

type WorkerInfo struct {
	Address    string   `json:"address"`
	AppName    string   `json:"appName"`
	LastActive int64    `json:"lastActive"`
	Running    int      `json:"running"`
	Tags       []string `json:"tags,omitempty"`

	SystemMetrics *system.Snapshot `json:"systemMetrics,omitempty"`
	// Score 可用资源评分，未上报系统指标时为 0
	Score float64 `json:"score"`
}

type WorkerList struct {
	Workers []WorkerInfo `json:"workers"`
}

type PingReq struct {
	remote.Message
	From string `json:"from"`
}

type RunJobReq struct {
	remote.Message
	InstanceID int64  `json:"instanceId"`
	JobID      int64  `json:"jobId"`
	Processor  string `json:"processor"`
	Params     string `json:"params"`
	// TimeoutMs 0 不限制
	TimeoutMs int64 `json:"timeoutMs"`
}

type RunJobAck struct {
	InstanceID int64  `json:"instanceId"`
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
}

type StopJobReq struct {
	remote.Message
	InstanceID int64 `json:"instanceId"`
}

type QueryJobReq struct {
	remote.Message
	InstanceID int64 `json:"instanceId"`
}

// JobState 任务实例状态
type JobState string

const (
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobStopped   JobState = "STOPPED"
	JobUnknown   JobState = "UNKNOWN"
)

type JobStatus struct {
	InstanceID int64    `json:"instanceId"`
	JobID      int64    `json:"jobId"`
	State      JobState `json:"state"`
	StartedAt  int64    `json:"startedAt,omitempty"`
	FinishedAt int64    `json:"finishedAt,omitempty"`
	Result     string   `json:"result,omitempty"`
}
