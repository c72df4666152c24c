package sentry

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/getsentry/sentry-go"
	"github.com/lk2023060901/httpremote/pkg/config"
)

// Option Client 选项
type Option func(*sentry.ClientOptions)

// WithBeforeSend 事件发送前回调，返回 nil 丢弃事件
func WithBeforeSend(fn func(*sentry.Event, *sentry.EventHint) *sentry.Event) Option {
	return func(o *sentry.ClientOptions) {
		o.BeforeSend = fn
	}
}

// Client Sentry 客户端，使用独立的 Hub
type Client struct {
	hub      *sentry.Hub
	config   *Config
	minLevel sentry.Level
	closed   atomic.Bool

	stats struct {
		total    atomic.Uint64
		captured atomic.Uint64
		dropped  atomic.Uint64
	}
}

// Stats 上报统计
type Stats struct {
	EventsTotal    uint64
	EventsCaptured uint64
	EventsDropped  uint64
}

// New 创建 Sentry 客户端
func New(cfg *Config, opts ...Option) (*Client, error) {
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
	minLevel, _ := parseLevel(merged.MinLevel)

	clientOpts := merged.toClientOptions()
	for _, opt := range opts {
		opt(&clientOpts)
	}
	client, err := sentry.NewClient(clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sentry client")
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for key, value := range merged.Tags {
			scope.SetTag(key, value)
		}
	})

	return &Client{
		hub:      hub,
		config:   merged,
		minLevel: minLevel,
	}, nil
}

// CaptureException 上报错误
func (c *Client) CaptureException(err error) *sentry.EventID {
	if c.closed.Load() {
		return nil
	}
	return c.count(c.hub.CaptureException(err))
}

// CaptureEvent 上报构造好的事件
func (c *Client) CaptureEvent(event *sentry.Event) *sentry.EventID {
	if c.closed.Load() {
		return nil
	}
	return c.count(c.hub.CaptureEvent(event))
}

// RecoverWithContext 上报 panic，不重新抛出
func (c *Client) RecoverWithContext(recovered any) *sentry.EventID {
	if c.closed.Load() {
		return nil
	}
	return c.count(c.hub.RecoverWithContext(nil, recovered))
}

func (c *Client) count(id *sentry.EventID) *sentry.EventID {
	c.stats.total.Add(1)
	if id != nil && *id != "" {
		c.stats.captured.Add(1)
	} else {
		c.stats.dropped.Add(1)
	}
	return id
}

// Flush 等待事件发送完成
func (c *Client) Flush(timeout time.Duration) bool {
	return c.hub.Flush(timeout)
}

// Close 发送剩余事件后关闭，重复关闭返回 ErrClientClosed
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return ErrClientClosed
	}
	c.hub.Flush(c.config.ShutdownTimeout)
	return nil
}

// Stats 获取统计信息
func (c *Client) Stats() Stats {
	return Stats{
		EventsTotal:    c.stats.total.Load(),
		EventsCaptured: c.stats.captured.Load(),
		EventsDropped:  c.stats.dropped.Load(),
	}
}
