package remote

import (
	"context"
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingReq struct {
	Message
	Name string `json:"name"`
}

type plain struct {
	Name string
}

func TestAddress(t *testing.T) {
	addr := NewAddress("127.0.0.1", 7700)
	assert.Equal(t, "127.0.0.1:7700", addr.FullAddress())
	assert.NoError(t, addr.Validate())

	v6 := NewAddress("::1", 7700)
	assert.Equal(t, "[::1]:7700", v6.String())

	parsed, err := ParseAddress("[::1]:7700")
	require.NoError(t, err)
	assert.Equal(t, v6, parsed)

	for _, bad := range []string{"no-port", "host:abc", "host:0", ":80", "host:70000"} {
		_, err := ParseAddress(bad)
		assert.True(t, errors.Is(err, ErrConfig), bad)
	}
}

func TestURL(t *testing.T) {
	a := NewURL(NewAddress("10.0.0.1", 80), "actor/ping")
	b := NewURL(NewAddress("10.0.0.1", 80), "actor/ping")
	c := NewURL(NewAddress("10.0.0.1", 81), "actor/ping")

	assert.Equal(t, "/actor/ping", a.Location.ToPath())
	assert.Equal(t, "http://10.0.0.1:80/actor/ping", a.String())
	assert.True(t, a == b)
	assert.False(t, a == c)
	assert.Equal(t, "/already", NewLocation("/already").ToPath())
}

func TestParseServerType(t *testing.T) {
	st, err := ParseServerType(" Server ")
	require.NoError(t, err)
	assert.Equal(t, ServerTypeServer, st)

	st, err = ParseServerType("worker")
	require.NoError(t, err)
	assert.Equal(t, ServerTypeWorker, st)

	_, err = ParseServerType("proxy")
	assert.True(t, errors.Is(err, ErrConfig))

	var decoded ServerType
	require.NoError(t, decoded.UnmarshalText([]byte("WORKER")))
	assert.Equal(t, ServerTypeWorker, decoded)
	require.NoError(t, decoded.UnmarshalText(nil))
	assert.Equal(t, ServerType(""), decoded)
	assert.True(t, errors.Is(decoded.UnmarshalText([]byte("proxy")), ErrConfig))
}

func TestRemotingError(t *testing.T) {
	var err error = &RemotingError{Host: "10.0.0.1", Port: 7700, Path: "/ping", StatusCode: 500, Body: "boom"}
	assert.Equal(t, "request [host:10.0.0.1,port:7700,url:/ping] failed, status: 500, msg: boom", err.Error())

	wrapped := errors.Wrap(err, "ask")
	re, ok := IsRemotingError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 500, re.StatusCode)

	_, ok = IsRemotingError(errors.New("other"))
	assert.False(t, ok)
}

func TestErrorWrappers(t *testing.T) {
	cause := errors.New("dial refused")

	assert.True(t, errors.Is(WrapConnection(cause, "dial %s", "x"), ErrConnection))
	assert.True(t, errors.Is(WrapConnection(cause, "dial"), cause))
	assert.True(t, errors.Is(WrapSerialization(cause, "decode"), ErrSerialization))
	assert.True(t, errors.Is(WrapInvocation(cause, "invoke"), ErrInvocation))
	assert.True(t, errors.Is(ConfigErrorf("bad %d", 1), ErrConfig))
	assert.NoError(t, WrapConnection(nil, "noop"))
}

func TestDefaultPayloadResolver(t *testing.T) {
	ctxType := reflect.TypeOf((*context.Context)(nil)).Elem()
	reqType := reflect.TypeOf(pingReq{})

	tests := []struct {
		name    string
		params  []reflect.Type
		want    int
		wantErr bool
	}{
		{name: "value payload", params: []reflect.Type{reqType}, want: 0},
		{name: "pointer payload", params: []reflect.Type{reflect.PointerTo(reqType)}, want: 0},
		{name: "context first", params: []reflect.Type{ctxType, reqType}, want: 1},
		{name: "no payload", params: []reflect.Type{reflect.TypeOf(plain{})}, wantErr: true},
		{name: "empty", params: nil, wantErr: true},
		{name: "two payloads", params: []reflect.Type{reqType, reqType}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := DefaultPayloadResolver.ResolvePayload(tt.params)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, idx)
		})
	}
}
