package httpx

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/stretchr/testify/require"
)

type pingReq struct {
	remote.Message
	Name string `json:"name"`
}

type jobInfo struct {
	Tags  []string `json:"tags"`
	Score float64  `json:"score"`
}

type runJobReq struct {
	remote.Message
	JobID  int64             `json:"job_id"`
	Params map[string]string `json:"params"`
	Info   jobInfo           `json:"info"`
}

type runJobResp struct {
	JobID    int64   `json:"job_id"`
	Accepted bool    `json:"accepted"`
	Info     jobInfo `json:"info"`
}

// workerActor 覆盖所有支持的方法形态
type workerActor struct {
	notified atomic.Int32
	lastName atomic.Value
}

func (a *workerActor) RunJob(req *runJobReq) (*runJobResp, error) {
	return &runJobResp{JobID: req.JobID, Accepted: req.Params["mode"] == "fast", Info: req.Info}, nil
}

func (a *workerActor) Hello(ctx context.Context, req pingReq) string {
	return "hello " + req.Name
}

func (a *workerActor) Notify(req *pingReq) {
	a.notified.Add(1)
	a.lastName.Store(req.Name)
}

func (a *workerActor) Fail(req *pingReq) error {
	return errors.Newf("job %s rejected", req.Name)
}

func (a *workerActor) Explode(req *pingReq) error {
	panic("handler exploded")
}

func (a *workerActor) WhoAmI(ctx context.Context, req *pingReq) string {
	id, _ := logger.RequestIDFromContext(ctx)
	return id
}

func (a *workerActor) Nothing(req *pingReq) (*runJobResp, error) {
	return nil, nil
}

func (a *workerActor) Plain(req *pingReq) string {
	return "<<not json>>"
}

func workerActors(a *workerActor) []remote.ActorInfo {
	return []remote.ActorInfo{
		remote.NewActorInfo(a,
			remote.Handle("/worker/runJob", "RunJob"),
			remote.Handle("/worker/hello", "Hello"),
			remote.Handle("/worker/notify", "Notify"),
			remote.Handle("/worker/fail", "Fail"),
			remote.Handle("/worker/explode", "Explode"),
			remote.Handle("/worker/whoami", "WhoAmI"),
			remote.Handle("/worker/nothing", "Nothing"),
			remote.Handle("/worker/plain", "Plain"),
		),
	}
}

// startInitializer 在 127.0.0.1 的随机端口上启动服务端
func startInitializer(t *testing.T, cfg *Config, opts ...InitializerOption) (*Initializer, remote.Address) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.BindHost = "127.0.0.1"

	srv, err := NewInitializer(cfg, append([]InitializerOption{WithInitializerLogger(logger.NewNoop())}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, srv.Init(context.Background()))
	t.Cleanup(func() { _ = srv.Close() })

	tcp, ok := srv.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return srv, remote.NewAddress("127.0.0.1", tcp.Port)
}

func newTestTransporter(t *testing.T, opts ...TransporterOption) *Transporter {
	t.Helper()
	tr, err := NewTransporter(&Config{}, append([]TransporterOption{WithLogger(logger.NewNoop())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}
