package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func newCaptureLogger(t *testing.T, cfg *Config, opts ...Option) (*BaseLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Format = JSONFormat
	l, err := New(cfg, append(opts, WithOutput(&buf))...)
	require.NoError(t, err)
	return l, &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestLogger_KeyValues(t *testing.T) {
	l, buf := newCaptureLogger(t, nil)

	l.Info("pool entry created", "address", "127.0.0.1:7700", "size", 3, "err", errors.New("boom"))
	entry := lastLine(t, buf)

	assert.Equal(t, "pool entry created", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "127.0.0.1:7700", entry["address"])
	assert.EqualValues(t, 3, entry["size"])
	assert.Equal(t, "boom", entry["err"])
}

func TestLogger_OddKeyValues(t *testing.T) {
	l, buf := newCaptureLogger(t, nil)

	l.Warn("odd", "dangling")
	assert.Equal(t, "(MISSING)", lastLine(t, buf)["dangling"])
}

func TestLogger_Level(t *testing.T) {
	l, buf := newCaptureLogger(t, &Config{Level: WarnLevel})

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Error("shown")
	assert.Equal(t, "shown", lastLine(t, buf)["msg"])
}

func TestLogger_NamedAndFields(t *testing.T) {
	l, buf := newCaptureLogger(t, nil, WithGlobalFields("service", "httpremote"))

	child := l.Named("remote.http.pool").WithFields("role", "server")
	child.Debug("dropped")
	child.Info("ready")

	entry := lastLine(t, buf)
	assert.Equal(t, "remote.http.pool", entry["logger"])
	assert.Equal(t, "server", entry["role"])
	assert.Equal(t, "httpremote", entry["service"])
	assert.NotContains(t, buf.String(), "dropped")
}

func TestLogger_ContextExtractor(t *testing.T) {
	l, buf := newCaptureLogger(t, nil)

	ctx := WithRequestID(context.Background(), "req-1")
	l.InfoContext(ctx, "dispatch", "path", "/ping")

	entry := lastLine(t, buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "/ping", entry["path"])

	id, ok := RequestIDFromContext(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestLogger_RedactHook(t *testing.T) {
	l, buf := newCaptureLogger(t, nil, WithHooks(RedactHook("token", "Authorization")))

	l.Info("auth", "token", "secret-value", "authorization", []string{"Bearer x"}, "user", "alice")
	line := lastLine(t, buf)
	assert.Equal(t, Redacted, line["token"])
	assert.Equal(t, Redacted, line["authorization"])
	assert.Equal(t, "alice", line["user"])
}

func TestLogger_HookCanDrop(t *testing.T) {
	drop := HookFunc(func(e zapcore.Entry, _ []zapcore.Field) bool { return e.Message != "noise" })
	l, buf := newCaptureLogger(t, nil, WithHooks(drop))

	l.Info("noise")
	assert.Zero(t, buf.Len())
	l.Info("signal")
	assert.Equal(t, "signal", lastLine(t, buf)["msg"])
}

func TestLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.log")
	l, err := New(&Config{EnableFile: true, OutputPath: path})
	require.NoError(t, err)
	l.Info("to file")
	assert.FileExists(t, path)
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Config{EnableFile: true}).Validate(), ErrInvalidOutputPath)
	assert.ErrorIs(t, (&Config{}).Validate(), ErrNoOutputEnabled)
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, (&Config{Level: "verbose", EnableConsole: true}).Validate(), ErrInvalidLevel)
	assert.ErrorIs(t, (&Config{Format: "xml", EnableConsole: true}).Validate(), ErrInvalidFormat)
}

func TestDefault(t *testing.T) {
	l := Default()
	require.NotNil(t, l)

	noop := NewNoop()
	SetDefault(noop)
	assert.Same(t, noop, Default())
	Info("nothing happens")
	assert.NoError(t, Sync())

	SetDefault(l)
}

func TestLogger_TimeRotationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.log")
	l, err := New(&Config{
		EnableFile: true,
		OutputPath: path,
		Rotation:   RotationConfig{Type: RotationByTime, Interval: time.Hour, Pattern: ".%Y%m%d%H"},
	})
	require.NoError(t, err)
	l.Info("rotated")
	require.NoError(t, l.Sync())

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestNewRotationWriter_UnknownType(t *testing.T) {
	_, err := NewRotationWriter(&RotationConfig{Type: "weekly"}, "x.log")
	assert.ErrorIs(t, err, ErrInvalidRotation)
}

type failingSyncer struct {
	bytes.Buffer
	err error
}

func (s *failingSyncer) Sync() error { return s.err }

func TestConsoleSyncer_IgnoresUnsyncableStdout(t *testing.T) {
	pipeErr := &os.PathError{Op: "sync", Path: "/dev/stdout", Err: syscall.EINVAL}
	assert.NoError(t, consoleSyncer{&failingSyncer{err: pipeErr}}.Sync())

	ttyErr := &os.PathError{Op: "sync", Path: "/dev/stdout", Err: syscall.ENOTTY}
	assert.NoError(t, consoleSyncer{&failingSyncer{err: ttyErr}}.Sync())

	diskErr := &os.PathError{Op: "sync", Path: "/dev/stdout", Err: syscall.EIO}
	assert.ErrorIs(t, consoleSyncer{&failingSyncer{err: diskErr}}.Sync(), syscall.EIO)
}
