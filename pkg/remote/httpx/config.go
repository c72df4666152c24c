package httpx

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/httpremote/pkg/config"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/lk2023060901/httpremote/pkg/security"
)

// KeepAliveEnv 覆盖出站 keepalive 超时（秒），在创建 Transporter 时读取
const KeepAliveEnv = "HTTPREMOTE_TRANSPORTER_KEEPALIVE_TIMEOUT"

const (
	defaultServerPoolSize = 1000
	defaultWorkerPoolSize = 100
)

// Config HTTP 传输配置
type Config struct {
	// BindHost 为空时监听所有网卡
	BindHost string `mapstructure:"bind_host"`
	// BindPort 监听端口，0 由系统分配
	BindPort int `mapstructure:"bind_port" validate:"gte=0,lte=65535"`
	// ServerType 进程角色，决定连接池默认容量与服务名
	ServerType remote.ServerType `mapstructure:"server_type" validate:"required,oneof=server worker"`
	// KeepAliveTimeout 出站 keepalive 超时（秒），0 视为未设置取默认 75，负数关闭 keepalive
	KeepAliveTimeout int `mapstructure:"keepalive_timeout"`

	Pool PoolConfig `mapstructure:"pool"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxBodySize 请求体上限（字节），0 不限制
	MaxBodySize int64 `mapstructure:"max_body_size" validate:"gte=0"`

	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Compression CompressionConfig `mapstructure:"compression"`

	// Auth 节点令牌，配置 secret 后出站请求携带令牌，入站请求必须通过校验
	Auth     security.TokenConfig    `mapstructure:"auth"`
	IPFilter security.IPFilterConfig `mapstructure:"ip_filter"`
	CORS     CORSConfig              `mapstructure:"cors"`

	// Mode gin 运行模式
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=debug release test"`
}

// PoolConfig 出站连接池配置
type PoolConfig struct {
	// MaxSize 最大地址数，0 按角色取默认值
	MaxSize int `mapstructure:"max_size" validate:"gte=0"`
	// IdleTimeout 地址空闲多久后释放连接
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// CleanupInterval 后台清理间隔，0 只在访问时检查
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	// ConnectTimeout 建立连接超时
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// KeepAliveTimeout 由 Config.KeepAliveTimeout 推导，<= 0 关闭 keepalive
	KeepAliveTimeout time.Duration `mapstructure:"-"`
}

// RateLimitConfig 入站令牌桶限流，RequestsPerSecond 为 0 时关闭
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=0"`
	// PerClient 按客户端 IP 各自限流
	PerClient bool `mapstructure:"per_client"`
	// MaxClients 最多保留的客户端限流器数量
	MaxClients int `mapstructure:"max_clients" validate:"gte=0"`
	// ClientTTL 客户端限流器空闲过期时间
	ClientTTL time.Duration `mapstructure:"client_ttl"`
}

// CompressionConfig 消息体压缩，Type 为空时不压缩
// 入站请求无论是否配置都会按 Content-Encoding 解压
type CompressionConfig struct {
	Type string `mapstructure:"type" validate:"omitempty,oneof=gzip zstd snappy lz4"`
	// MinSize 小于该字节数的消息体不压缩
	MinSize int `mapstructure:"min_size" validate:"gte=0"`
}

// CORSConfig 跨域配置，AllowOrigins 为空时关闭，"*" 允许所有来源
type CORSConfig struct {
	AllowOrigins []string      `mapstructure:"allow_origins"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ServerType:       remote.ServerTypeWorker,
		KeepAliveTimeout: 75,
		Pool:             *DefaultPoolConfig(),
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		ShutdownTimeout:  5 * time.Second,
		MaxBodySize:      4 << 20,
		RateLimit: RateLimitConfig{
			MaxClients: 10000,
			ClientTTL:  10 * time.Minute,
		},
		Compression: CompressionConfig{
			MinSize: 1024,
		},
		Auth: *security.DefaultTokenConfig(),
		CORS: CORSConfig{
			MaxAge: 12 * time.Hour,
		},
		Mode: gin.ReleaseMode,
	}
}

// DefaultPoolConfig 默认连接池配置，MaxSize 留空由角色决定
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		IdleTimeout:      10 * time.Minute,
		CleanupInterval:  time.Minute,
		ConnectTimeout:   3000 * time.Millisecond,
		KeepAliveTimeout: 75 * time.Second,
	}
}

// DefaultPoolSize 按角色返回连接池默认容量
func DefaultPoolSize(serverType remote.ServerType) int {
	if serverType == remote.ServerTypeServer {
		return defaultServerPoolSize
	}
	return defaultWorkerPoolSize
}

// mergeConfig 用户配置覆盖默认值并校验
func mergeConfig(cfg *Config) (*Config, error) {
	var src *Config
	if cfg != nil {
		copied := *cfg
		src = &copied
	}
	merged, err := config.MergeConfig(DefaultConfig(), src)
	if err != nil {
		return nil, remote.ConfigErrorf("merge config: %v", err)
	}
	if err := config.Validate(merged); err != nil {
		return nil, remote.ConfigErrorf("invalid http remote config: %v", err)
	}
	if merged.Pool.MaxSize == 0 {
		merged.Pool.MaxSize = DefaultPoolSize(merged.ServerType)
	}
	return merged, nil
}

// resolveKeepAlive 环境变量优先，其次配置值
func resolveKeepAlive(cfg *Config) (time.Duration, error) {
	seconds := cfg.KeepAliveTimeout
	if raw, ok := os.LookupEnv(KeepAliveEnv); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, remote.ConfigErrorf("%s=%q is not an integer number of seconds", KeepAliveEnv, raw)
		}
		seconds = v
	}
	if seconds <= 0 {
		return 0, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

// serverName 带角色的服务名
func serverName(serverType remote.ServerType) string {
	return "httpremote-" + strings.ToLower(serverType.String())
}
