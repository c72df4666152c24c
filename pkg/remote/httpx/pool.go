package httpx

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/cache/lru"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"golang.org/x/sync/singleflight"
)

// PooledConnection 绑定到单个地址的 HTTP 客户端
// 由连接池独占，同一地址的并发调用共享
type PooledConnection struct {
	Address remote.Address
	Client  *http.Client

	transport *http.Transport
	createdAt time.Time
}

// CreatedAt 创建时间
func (c *PooledConnection) CreatedAt() time.Time {
	return c.createdAt
}

// KeepAlive 是否复用底层 TCP 连接
func (c *PooledConnection) KeepAlive() bool {
	return c.transport == nil || !c.transport.DisableKeepAlives
}

// release 关闭空闲的底层连接，进行中的请求不受影响
func (c *PooledConnection) release() {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
}

// ConnFactory 为地址构造连接，失败时不会写入连接池
type ConnFactory func(addr remote.Address, cfg *PoolConfig) (*PooledConnection, error)

// DefaultConnFactory 每个地址独立的 http.Transport
func DefaultConnFactory(addr remote.Address, cfg *PoolConfig) (*PooledConnection, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: cfg.KeepAliveTimeout,
	}
	keepAlive := cfg.KeepAliveTimeout > 0
	if !keepAlive {
		dialer.KeepAlive = -1
	}

	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     !keepAlive,
		IdleConnTimeout:       cfg.KeepAliveTimeout,
		MaxIdleConnsPerHost:   64,
		ForceAttemptHTTP2:     false,
		DisableCompression:    true,
		ExpectContinueTimeout: time.Second,
	}

	return &PooledConnection{
		Address:   addr,
		Client:    &http.Client{Transport: transport},
		transport: transport,
		createdAt: time.Now(),
	}, nil
}

// PoolOption 连接池选项
type PoolOption func(*Pool)

// WithConnFactory 替换连接构造函数
func WithConnFactory(f ConnFactory) PoolOption {
	return func(p *Pool) {
		if f != nil {
			p.factory = f
		}
	}
}

// WithPoolClock 替换时间源（测试用）
func WithPoolClock(now func() time.Time) PoolOption {
	return func(p *Pool) {
		p.now = now
	}
}

// WithPoolLogger 设置日志
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPoolMetrics 设置指标
func WithPoolMetrics(m *Metrics) PoolOption {
	return func(p *Pool) {
		if m != nil {
			p.metrics = m
		}
	}
}

// Pool 按地址缓存连接
// 访问即续期，空闲超过 IdleTimeout 或超出容量（LRU）时释放
type Pool struct {
	config  *PoolConfig
	cache   *lru.LRU[string, *PooledConnection]
	group   singleflight.Group
	factory ConnFactory
	now     func() time.Time
	logger  logger.Logger
	metrics *Metrics

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewPool 创建连接池，cfg 的零值字段使用默认值
func NewPool(cfg *PoolConfig, opts ...PoolOption) (*Pool, error) {
	merged := DefaultPoolConfig()
	if cfg != nil {
		copied := *cfg
		merged = &copied
		defaults := DefaultPoolConfig()
		if merged.IdleTimeout <= 0 {
			merged.IdleTimeout = defaults.IdleTimeout
		}
		if merged.ConnectTimeout <= 0 {
			merged.ConnectTimeout = defaults.ConnectTimeout
		}
	}
	if merged.MaxSize <= 0 {
		merged.MaxSize = defaultWorkerPoolSize
	}

	p := &Pool{
		config:  merged,
		factory: DefaultConnFactory,
		now:     time.Now,
		logger:  logger.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	p.logger = p.logger.Named("remote.http.pool")

	p.cache = lru.New[string, *PooledConnection](
		&lru.Config{
			MaxSize:         merged.MaxSize,
			DefaultTTL:      merged.IdleTimeout,
			CleanupInterval: merged.CleanupInterval,
			Sliding:         true,
		},
		lru.WithClock[string, *PooledConnection](p.now),
		lru.WithOnEvict(p.onEvict),
	)

	return p, nil
}

// Get 返回地址对应的连接，不存在时创建
// 同一地址的并发首次访问只会构造一次连接，所有调用方拿到同一个对象；
// 构造在缓存锁外进行，慢速建连不会阻塞其它地址的查询。Close 之后返回 ErrClosed
func (p *Pool) Get(addr remote.Address) (*PooledConnection, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	key := addr.FullAddress()

	if conn, ok := p.cache.Get(key); ok {
		p.metrics.poolHits.Inc()
		return conn, nil
	}
	p.metrics.poolMisses.Inc()

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		if conn, ok := p.cache.Get(key); ok {
			return conn, nil
		}
		conn, err := p.factory(addr, p.config)
		if err != nil {
			return nil, remote.WrapConnection(err, "create connection to %s", key)
		}
		actual, added := p.cache.AddIfAbsent(key, conn)
		if !added {
			conn.release()
			return actual, nil
		}
		p.metrics.poolCreations.Inc()
		p.metrics.poolSize.Set(float64(p.cache.Len()))
		p.logger.Debug("connection created", "address", key, "pool_size", p.cache.Len())

		// 与 Close 并发时，Close 的清空可能发生在写入之前
		if p.closed.Load() {
			p.cache.Delete(key)
			return nil, ErrClosed
		}
		return conn, nil
	})
	if err != nil {
		if !errors.Is(err, ErrClosed) {
			p.logger.Warn("connection create failed", "address", key, "error", err)
		}
		return nil, err
	}
	return v.(*PooledConnection), nil
}

// Peek 查看地址是否已有连接，不续期
func (p *Pool) Peek(addr remote.Address) (*PooledConnection, bool) {
	return p.cache.Peek(addr.FullAddress())
}

// Evict 主动释放某个地址的连接
func (p *Pool) Evict(addr remote.Address) {
	p.cache.Delete(addr.FullAddress())
}

// Addresses 按最近使用顺序返回已缓存的地址
func (p *Pool) Addresses() []string {
	return p.cache.Keys()
}

// RemoveIdle 立即清理空闲超时的连接
func (p *Pool) RemoveIdle() int {
	return p.cache.RemoveExpired()
}

// Len 当前缓存的地址数
func (p *Pool) Len() int {
	return p.cache.Len()
}

// Close 释放所有连接，可重复调用
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.cache.Clear()
		_ = p.cache.Close()
	})
	return nil
}

// onEvict 在缓存锁内执行，不能回调 cache
func (p *Pool) onEvict(key string, conn *PooledConnection, reason lru.EvictReason) {
	conn.release()
	p.metrics.poolEvictions.WithLabelValues(reason.String()).Inc()
	p.metrics.poolSize.Dec()
	p.logger.Debug("connection released", "address", key, "reason", reason.String())
}
