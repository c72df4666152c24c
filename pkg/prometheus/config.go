package prometheus

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/config"
)

var (
	ErrInvalidConfig = errors.New("prometheus: invalid config")
	ErrClientClosed  = errors.New("prometheus: client closed")
)

// Config 指标导出配置
type Config struct {
	// HTTP 服务器配置
	HTTPServer HTTPServerConfig `mapstructure:"http_server"`

	// 是否注册默认 Go 采集器
	EnableGoCollector bool `mapstructure:"enable_go_collector"`

	// 是否注册默认进程采集器
	EnableProcessCollector bool `mapstructure:"enable_process_collector"`
}

// HTTPServerConfig 独立的指标 HTTP 服务
type HTTPServerConfig struct {
	// 是否启用独立的 HTTP 服务器暴露指标
	Enabled bool `mapstructure:"enabled"`

	// 监听地址
	Addr string `mapstructure:"addr"`

	// 指标路径
	Path string `mapstructure:"path"`

	// 读写超时
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		HTTPServer: HTTPServerConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
			Timeout: 10 * time.Second,
		},
		EnableGoCollector:      true,
		EnableProcessCollector: true,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.HTTPServer.Enabled {
		return nil
	}
	if c.HTTPServer.Addr == "" {
		return errors.Wrap(ErrInvalidConfig, "http_server.addr is required")
	}
	if c.HTTPServer.Path == "" || c.HTTPServer.Path[0] != '/' {
		return errors.Wrapf(ErrInvalidConfig, "http_server.path %q must start with '/'", c.HTTPServer.Path)
	}
	return nil
}

// mergeConfig 用户配置覆盖默认值
func mergeConfig(cfg *Config) (*Config, error) {
	var src *Config
	if cfg != nil {
		copied := *cfg
		src = &copied
	}
	merged, err := config.MergeConfig(DefaultConfig(), src)
	if err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}
