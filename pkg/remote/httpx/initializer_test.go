package httpx

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/lk2023060901/httpremote/pkg/serializer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawPost(t *testing.T, addr remote.Address, path, contentType, body string) *http.Response {
	t.Helper()
	resp, err := http.Post("http://"+addr.FullAddress()+path, contentType, strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestRoundTrip_NestedStruct(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	tr := newTestTransporter(t)
	req := &runJobReq{
		JobID:  42,
		Params: map[string]string{"mode": "fast"},
		Info:   jobInfo{Tags: []string{"a", "b"}, Score: 0.5},
	}

	var reply runJobResp
	require.NoError(t, tr.Ask(context.Background(), remote.NewURL(addr, "/worker/runJob"), req, &reply))
	assert.Equal(t, runJobResp{JobID: 42, Accepted: true, Info: jobInfo{Tags: []string{"a", "b"}, Score: 0.5}}, reply)

	typed, err := AskAs[*runJobResp](context.Background(), tr, remote.NewURL(addr, "worker/runJob"), req)
	require.NoError(t, err)
	assert.Equal(t, int64(42), typed.JobID)
}

func TestRoundTrip_String(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	tr := newTestTransporter(t)
	got, err := AskAs[string](context.Background(), tr, remote.NewURL(addr, "/worker/hello"), &pingReq{Name: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "hello bob", got)

	resp := rawPost(t, addr, "/worker/hello", "application/json", `{"name":"eve"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "hello eve", readBody(t, resp))
}

func TestRoundTrip_Msgpack(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	tr := newTestTransporter(t, WithSerializer(serializer.NewMsgpack()))
	reply, err := AskAs[runJobResp](context.Background(), tr, remote.NewURL(addr, "/worker/runJob"),
		&runJobReq{JobID: 7, Params: map[string]string{"mode": "fast"}})
	require.NoError(t, err)
	assert.Equal(t, int64(7), reply.JobID)
	assert.True(t, reply.Accepted)
}

func TestAskAsync(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	tr := newTestTransporter(t)
	futures := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		f := AskAsync[string](context.Background(), tr, remote.NewURL(addr, "/worker/hello"), &pingReq{Name: fmt.Sprint(i)})
		v, err := f.Await()
		require.NoError(t, err)
		futures = append(futures, v)
	}
	assert.Equal(t, "hello 0", futures[0])
	assert.Equal(t, "hello 7", futures[7])
	assert.Equal(t, 1, tr.Pool().Len())
}

func TestTell(t *testing.T) {
	actor := &workerActor{}
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(actor)))

	tr := newTestTransporter(t)
	require.NoError(t, tr.Tell(context.Background(), remote.NewURL(addr, "/worker/notify"), &pingReq{Name: "n1"}))
	assert.Equal(t, int32(1), actor.notified.Load())
	assert.Equal(t, "n1", actor.lastName.Load())

	// 响应体不是 JSON 也不影响通知
	require.NoError(t, tr.Tell(context.Background(), remote.NewURL(addr, "/worker/plain"), &pingReq{}))
}

func TestAsk_EmptyResponseLeavesReply(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	tr := newTestTransporter(t)
	reply := runJobResp{JobID: -1}
	require.NoError(t, tr.Ask(context.Background(), remote.NewURL(addr, "/worker/nothing"), &pingReq{}, &reply))
	assert.Equal(t, int64(-1), reply.JobID)

	require.NoError(t, tr.Ask(context.Background(), remote.NewURL(addr, "/worker/runJob"), &runJobReq{JobID: 1}, nil))
}

func TestAsk_NonJSONReplyIsSerializationError(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	tr := newTestTransporter(t)
	var reply runJobResp
	err := tr.Ask(context.Background(), remote.NewURL(addr, "/worker/plain"), &pingReq{}, &reply)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrSerialization))
}

func TestNon200_PropagatesStatusAndBody(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	tr := newTestTransporter(t)
	err := tr.Ask(context.Background(), remote.NewURL(addr, "/worker/fail"), &pingReq{Name: "x"}, nil)
	require.Error(t, err)

	re, ok := remote.IsRemotingError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, re.StatusCode)
	assert.Equal(t, "/worker/fail", re.Path)
	assert.Contains(t, re.Body, "job x rejected")
	assert.True(t, strings.HasPrefix(err.Error(),
		fmt.Sprintf("request [host:127.0.0.1,port:%d,url:/worker/fail] failed, status: 500, msg: ", addr.Port)))

	// Tell 同样返回错误
	err = tr.Tell(context.Background(), remote.NewURL(addr, "/worker/fail"), &pingReq{Name: "y"})
	_, ok = remote.IsRemotingError(err)
	assert.True(t, ok)
}

func TestUnknownPath_NotFound(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	tr := newTestTransporter(t)
	for _, path := range []string{"/worker/missing", "/worker/hello/", "/WORKER/hello"} {
		err := tr.Tell(context.Background(), remote.NewURL(addr, path), &pingReq{})
		re, ok := remote.IsRemotingError(err)
		require.True(t, ok, path)
		assert.Equal(t, http.StatusNotFound, re.StatusCode, path)
	}

	resp, err := http.Get("http://" + addr.FullAddress() + "/worker/hello")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandlerPanic_Returns500(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	resp := rawPost(t, addr, "/worker/explode", "application/json", `{}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "handler exploded")

	// 服务仍然可用
	resp = rawPost(t, addr, "/worker/hello", "application/json", `{"name":"after"}`)
	assert.Equal(t, "hello after", readBody(t, resp))
}

func TestDispatch_BodyHandling(t *testing.T) {
	srv, addr := startInitializer(t, &Config{MaxBodySize: 64})
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	t.Run("empty body decodes to zero payload", func(t *testing.T) {
		resp := rawPost(t, addr, "/worker/hello", "application/json", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "hello ", readBody(t, resp))
	})

	t.Run("missing content type defaults to json", func(t *testing.T) {
		resp := rawPost(t, addr, "/worker/hello", "", `{"name":"raw"}`)
		assert.Equal(t, "hello raw", readBody(t, resp))
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := rawPost(t, addr, "/worker/hello", "application/json", `{"name":`)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "decode")
	})

	t.Run("body too large", func(t *testing.T) {
		resp := rawPost(t, addr, "/worker/hello", "application/json", `{"name":"`+strings.Repeat("x", 128)+`"}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

func TestResponseHeaders(t *testing.T) {
	srv, addr := startInitializer(t, &Config{ServerType: remote.ServerTypeServer})
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))
	assert.Equal(t, "httpremote-server", srv.ServerName())

	resp := rawPost(t, addr, "/worker/hello", "application/json", `{}`)
	assert.Equal(t, "httpremote-server", resp.Header.Get("Server"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	req, err := http.NewRequest(http.MethodPost, "http://"+addr.FullAddress()+"/worker/whoami", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "req-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "req-123", readBody(t, resp))
}

func TestTransporter_SendsRequestID(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	tr := newTestTransporter(t)
	id, err := AskAs[string](context.Background(), tr, remote.NewURL(addr, "/worker/whoami"), &pingReq{})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
}

func TestRateLimit(t *testing.T) {
	srv, addr := startInitializer(t, &Config{RateLimit: RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}})
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	resp := rawPost(t, addr, "/worker/hello", "application/json", `{}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = rawPost(t, addr, "/worker/hello", "application/json", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestInitializer_NotFoundBeforeBind(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	assert.Nil(t, srv.RouteTable())

	resp := rawPost(t, addr, "/worker/hello", "application/json", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "httpremote-worker", resp.Header.Get("Server"))

	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))
	resp = rawPost(t, addr, "/worker/hello", "application/json", `{}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInitializer_Lifecycle(t *testing.T) {
	srv, _ := startInitializer(t, nil)
	assert.Equal(t, "HTTP", srv.Type())

	err := srv.Init(context.Background())
	assert.True(t, errors.Is(err, ErrAlreadyStarted))

	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))
	err = srv.BindHandlers(workerActors(&workerActor{}))
	assert.True(t, errors.Is(err, ErrRoutesInstalled))

	tr, err := srv.BuildTransporter()
	require.NoError(t, err)
	assert.Equal(t, remote.ProtocolHTTP, tr.Protocol())

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())

	assert.True(t, errors.Is(srv.Init(context.Background()), ErrClosed))
	_, err = srv.BuildTransporter()
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Equal(t, 0, tr.(*Transporter).Pool().Len())
}

func TestInitializer_CloseWithoutInit(t *testing.T) {
	srv, err := NewInitializer(&Config{})
	require.NoError(t, err)
	assert.Nil(t, srv.Addr())
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
}

func TestInitializer_InvalidBindingInstallsNothing(t *testing.T) {
	srv, addr := startInitializer(t, nil)

	actors := append(workerActors(&workerActor{}),
		remote.NewActorInfo(badActor{}, remote.Handle("/bad", "TwoPayloads")))
	err := srv.BindHandlers(actors)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrConfig))
	assert.Nil(t, srv.RouteTable())

	resp := rawPost(t, addr, "/worker/hello", "application/json", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInitializer_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv, err := NewInitializer(&Config{BindHost: "127.0.0.1", BindPort: ln.Addr().(*net.TCPAddr).Port})
	require.NoError(t, err)
	defer srv.Close()

	err = srv.Init(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrConnection))
}

func TestTransporter_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tr := newTestTransporter(t)
	err = tr.Tell(context.Background(), remote.NewURL(remote.NewAddress("127.0.0.1", port), "/x"), &pingReq{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrConnection))
}

func TestTransporter_CallsAfterClose(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	tr := newTestTransporter(t)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	err := tr.Tell(context.Background(), remote.NewURL(addr, "/worker/notify"), &pingReq{})
	assert.ErrorIs(t, err, ErrClosed)

	var reply runJobResp
	err = tr.Ask(context.Background(), remote.NewURL(addr, "/worker/runJob"), &runJobReq{}, &reply)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, tr.Pool().Len())
}

func TestTransporter_ContextCancelled(t *testing.T) {
	srv, addr := startInitializer(t, nil)
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := newTestTransporter(t)
	err := tr.Tell(ctx, remote.NewURL(addr, "/worker/notify"), &pingReq{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrConnection))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMetrics_SharedBetweenServerAndTransporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, addr := startInitializer(t, nil, WithInitializerRegisterer(reg))
	require.NoError(t, srv.BindHandlers(workerActors(&workerActor{})))

	tr, err := srv.BuildTransporter()
	require.NoError(t, err)

	url := remote.NewURL(addr, "/worker/hello")
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Tell(context.Background(), url, &pingReq{}))
	}

	m := srv.Metrics()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.poolCreations))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.poolMisses))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.poolHits))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.clientRequests.WithLabelValues("/worker/hello", "200")))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.serverRequests.WithLabelValues("/worker/hello", "200")) == 3
	}, time.Second, 10*time.Millisecond)
}
