package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.HTTPServer.Enabled)
	assert.Equal(t, ":9090", cfg.HTTPServer.Addr)
	assert.Equal(t, "/metrics", cfg.HTTPServer.Path)
	assert.Equal(t, 10*time.Second, cfg.HTTPServer.Timeout)
	assert.True(t, cfg.EnableGoCollector)
	assert.True(t, cfg.EnableProcessCollector)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"disabled server", &Config{}, false},
		{"enabled without addr", &Config{HTTPServer: HTTPServerConfig{Enabled: true, Path: "/metrics"}}, true},
		{"relative path", &Config{HTTPServer: HTTPServerConfig{Enabled: true, Addr: ":0", Path: "metrics"}}, true},
		{"valid", &Config{HTTPServer: HTTPServerConfig{Enabled: true, Addr: ":0", Path: "/metrics"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClient_Handler(t *testing.T) {
	c, err := New(nil, logger.NewNoop())
	require.NoError(t, err)
	defer c.Close()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_events_total", Help: "test"})
	c.Registry().MustRegister(counter)
	counter.Add(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_events_total 3")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestClient_StartServesMetrics(t *testing.T) {
	c, err := New(&Config{HTTPServer: HTTPServerConfig{Enabled: true, Addr: "127.0.0.1:0"}}, logger.NewNoop())
	require.NoError(t, err)
	require.NoError(t, c.Start())
	require.NotNil(t, c.Addr())

	resp, err := http.Get("http://" + c.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "process_")

	require.NoError(t, c.Stop())
	assert.True(t, c.IsClosed())
	assert.True(t, errors.Is(c.Close(), ErrClientClosed))
	assert.True(t, errors.Is(c.Start(), ErrClientClosed))
}

func TestClient_StartDisabled(t *testing.T) {
	c, err := New(nil, logger.NewNoop())
	require.NoError(t, err)
	require.NoError(t, c.Start())
	assert.Nil(t, c.Addr())
	require.NoError(t, c.Close())
}
