package httpx

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeConfig_Defaults(t *testing.T) {
	cfg, err := mergeConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, remote.ServerTypeWorker, cfg.ServerType)
	assert.Equal(t, 100, cfg.Pool.MaxSize)
	assert.Equal(t, 10*time.Minute, cfg.Pool.IdleTimeout)
	assert.Equal(t, 3*time.Second, cfg.Pool.ConnectTimeout)
	assert.Equal(t, 75, cfg.KeepAliveTimeout)
	assert.Empty(t, cfg.Compression.Type)
	assert.Equal(t, 1024, cfg.Compression.MinSize)

	cfg, err = mergeConfig(&Config{ServerType: remote.ServerTypeServer})
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Pool.MaxSize)

	cfg, err = mergeConfig(&Config{ServerType: remote.ServerTypeServer, Pool: PoolConfig{MaxSize: 5}})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Pool.MaxSize)
}

func TestMergeConfig_DoesNotMutateInput(t *testing.T) {
	in := &Config{BindPort: 7700}
	_, err := mergeConfig(in)
	require.NoError(t, err)
	assert.Equal(t, 0, in.Pool.MaxSize)
	assert.Empty(t, in.ServerType)
}

func TestMergeConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"unknown server type", &Config{ServerType: "boss"}},
		{"port out of range", &Config{BindPort: 70000}},
		{"negative body size", &Config{MaxBodySize: -1}},
		{"unknown mode", &Config{Mode: "verbose"}},
		{"unknown compression", &Config{Compression: CompressionConfig{Type: "br"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mergeConfig(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, remote.ErrConfig))
		})
	}
}

func TestResolveKeepAlive(t *testing.T) {
	t.Run("config value", func(t *testing.T) {
		d, err := resolveKeepAlive(&Config{KeepAliveTimeout: 30})
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, d)
	})

	t.Run("negative disables", func(t *testing.T) {
		d, err := resolveKeepAlive(&Config{KeepAliveTimeout: -1})
		require.NoError(t, err)
		assert.Zero(t, d)
	})

	t.Run("env overrides config", func(t *testing.T) {
		t.Setenv(KeepAliveEnv, "12")
		d, err := resolveKeepAlive(&Config{KeepAliveTimeout: 30})
		require.NoError(t, err)
		assert.Equal(t, 12*time.Second, d)
	})

	t.Run("env zero disables", func(t *testing.T) {
		t.Setenv(KeepAliveEnv, "0")
		d, err := resolveKeepAlive(&Config{KeepAliveTimeout: 30})
		require.NoError(t, err)
		assert.Zero(t, d)
	})

	t.Run("env not a number", func(t *testing.T) {
		t.Setenv(KeepAliveEnv, "forever")
		_, err := resolveKeepAlive(&Config{KeepAliveTimeout: 30})
		require.Error(t, err)
		assert.True(t, errors.Is(err, remote.ErrConfig))
	})
}

func TestNewTransporter_KeepAliveFromEnv(t *testing.T) {
	t.Setenv(KeepAliveEnv, "0")
	tr, err := NewTransporter(nil, WithLogger(logger.NewNoop()))
	require.NoError(t, err)
	defer tr.Close()
	assert.Zero(t, tr.KeepAliveTimeout())

	t.Setenv(KeepAliveEnv, "bad")
	_, err = NewTransporter(nil, WithLogger(logger.NewNoop()))
	assert.True(t, errors.Is(err, remote.ErrConfig))
}

func TestNewTransporter_KeepAliveZeroAndNegative(t *testing.T) {
	t.Setenv(KeepAliveEnv, "")

	// 配置中的 0 视为未设置，使用默认 75s
	tr, err := NewTransporter(&Config{KeepAliveTimeout: 0}, WithLogger(logger.NewNoop()))
	require.NoError(t, err)
	assert.Equal(t, 75*time.Second, tr.KeepAliveTimeout())
	require.NoError(t, tr.Close())

	tr, err = NewTransporter(&Config{KeepAliveTimeout: -1}, WithLogger(logger.NewNoop()))
	require.NoError(t, err)
	assert.Zero(t, tr.KeepAliveTimeout())
	require.NoError(t, tr.Close())

	t.Setenv(KeepAliveEnv, "-5")
	tr, err = NewTransporter(nil, WithLogger(logger.NewNoop()))
	require.NoError(t, err)
	assert.Zero(t, tr.KeepAliveTimeout())
	require.NoError(t, tr.Close())
}

func TestServerName(t *testing.T) {
	assert.Equal(t, "httpremote-server", serverName(remote.ServerTypeServer))
	assert.Equal(t, "httpremote-worker", serverName(remote.ServerTypeWorker))
}
