package lru

import (
	"container/list"
	"sync"
	"time"

	"github.com/lk2023060901/httpremote/pkg/util/conc"
)

// Cache 通用缓存接口
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Peek(key K) (V, bool)
	Set(key K, value V)
	SetWithTTL(key K, value V, ttl time.Duration)
	GetOrCreate(key K, create func() (V, error)) (V, bool, error)
	AddIfAbsent(key K, value V) (V, bool)
	Delete(key K)
	Len() int
	Clear()
	Close() error
}

// Config LRU 配置
type Config struct {
	// MaxSize 最大容量
	MaxSize int `mapstructure:"max_size"`
	// DefaultTTL 默认过期时间，<= 0 表示永不过期
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	// CleanupInterval 清理间隔，<= 0 表示不启动后台清理
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	// Sliding 访问即续期（expire-after-access），否则按写入时间过期
	Sliding bool `mapstructure:"sliding"`
}

// EvictReason 淘汰原因
type EvictReason int

const (
	// EvictExpired 过期淘汰
	EvictExpired EvictReason = iota
	// EvictCapacity 超出容量淘汰
	EvictCapacity
	// EvictRemoved 主动删除 / 清空
	EvictRemoved
)

func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	case EvictCapacity:
		return "capacity"
	default:
		return "removed"
	}
}

// LRU 基于内存的 LRU 缓存实现
type LRU[K comparable, V any] struct {
	config *Config
	cache  *list.List
	items  map[K]*list.Element
	mu     sync.RWMutex
	pool   *conc.Pool[struct{}]
	stopCh chan struct{}
	once   sync.Once

	now     func() time.Time
	onEvict func(key K, value V, reason EvictReason)
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	ttl       time.Duration
	expiresAt time.Time
}

// Option LRU 配置选项
type Option[K comparable, V any] func(*LRU[K, V])

// WithOnEvict 设置淘汰回调
// 回调在持有缓存锁时执行，不能再访问同一个缓存
func WithOnEvict[K comparable, V any](fn func(key K, value V, reason EvictReason)) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.onEvict = fn
	}
}

// WithClock 替换时间源（测试用）
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.now = now
	}
}

// New 创建 LRU 缓存
func New[K comparable, V any](cfg *Config, opts ...Option[K, V]) *LRU[K, V] {
	c := &LRU[K, V]{
		config: cfg,
		cache:  list.New(),
		items:  make(map[K]*list.Element),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if cfg.CleanupInterval > 0 {
		c.pool = conc.NewPool[struct{}](1)
		c.startCleanup()
	}
	return c
}

// startCleanup 启动后台清理协程
func (c *LRU[K, V]) startCleanup() {
	c.pool.Submit(func() (struct{}, error) {
		ticker := time.NewTicker(c.config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.RemoveExpired()
			case <-c.stopCh:
				return struct{}{}, nil
			}
		}
	})
}

// RemoveExpired 移除所有过期条目，返回移除数量
func (c *LRU[K, V]) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for e := c.cache.Back(); e != nil; {
		prev := e.Prev()
		if c.expired(e.Value.(*entry[K, V]), now) {
			c.removeElement(e, EvictExpired)
			removed++
		}
		e = prev
	}
	return removed
}

// Get 获取值，命中时刷新 LRU 顺序（Sliding 模式下同时续期）
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[K, V])
		now := c.now()
		if c.expired(ent, now) {
			c.removeElement(elem, EvictExpired)
			var zero V
			return zero, false
		}
		c.touch(elem, ent, now)
		return ent.value, true
	}

	var zero V
	return zero, false
}

// Peek 获取值但不影响 LRU 顺序与过期时间
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[K, V])
		if !c.expired(ent, c.now()) {
			return ent.value, true
		}
	}

	var zero V
	return zero, false
}

// Set 设置值（使用默认 TTL）
func (c *LRU[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.config.DefaultTTL)
}

// SetWithTTL 设置值（自定义 TTL）
func (c *LRU[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[key]; ok {
		c.cache.MoveToFront(elem)
		ent := elem.Value.(*entry[K, V])
		ent.value = value
		ent.ttl = ttl
		ent.expiresAt = deadline(now, ttl)
		return
	}

	c.insert(key, value, ttl, now)
}

// GetOrCreate 原子获取或创建
// 第二个返回值表示本次调用是否执行了创建；create 返回错误时不写入缓存
// create 在缓存锁内执行，只适合廉价的构造；耗时的构造先在锁外完成再用 AddIfAbsent 写入
func (c *LRU[K, V]) GetOrCreate(key K, create func() (V, error)) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[K, V])
		if !c.expired(ent, now) {
			c.touch(elem, ent, now)
			return ent.value, false, nil
		}
		c.removeElement(elem, EvictExpired)
	}

	value, err := create()
	if err != nil {
		var zero V
		return zero, false, err
	}

	c.insert(key, value, c.config.DefaultTTL, now)
	return value, true, nil
}

// AddIfAbsent 键不存在（或已过期）时写入 value
// 已存在时返回现有值与 false，value 不会进入缓存，由调用方处理
func (c *LRU[K, V]) AddIfAbsent(key K, value V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[K, V])
		if !c.expired(ent, now) {
			c.touch(elem, ent, now)
			return ent.value, false
		}
		c.removeElement(elem, EvictExpired)
	}

	c.insert(key, value, c.config.DefaultTTL, now)
	return value, true
}

// Delete 删除
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem, EvictRemoved)
	}
}

// Keys 按最近使用顺序返回所有键（最新的在前）
func (c *LRU[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]K, 0, c.cache.Len())
	for e := c.cache.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*entry[K, V]).key)
	}
	return keys
}

// Len 返回当前缓存大小
func (c *LRU[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Len()
}

// Clear 清空缓存，每个条目都会触发淘汰回调
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for e := c.cache.Back(); e != nil; {
		prev := e.Prev()
		c.removeElement(e, EvictRemoved)
		e = prev
	}
	c.cache.Init()
	c.items = make(map[K]*list.Element)
}

// Close 关闭缓存，可重复调用
func (c *LRU[K, V]) Close() error {
	c.once.Do(func() {
		close(c.stopCh)
		if c.pool != nil {
			c.pool.Release()
		}
	})
	return nil
}

func (c *LRU[K, V]) insert(key K, value V, ttl time.Duration, now time.Time) {
	ent := &entry[K, V]{
		key:       key,
		value:     value,
		ttl:       ttl,
		expiresAt: deadline(now, ttl),
	}
	elem := c.cache.PushFront(ent)
	c.items[key] = elem

	for c.config.MaxSize > 0 && c.cache.Len() > c.config.MaxSize {
		c.removeOldest()
	}
}

func (c *LRU[K, V]) touch(elem *list.Element, ent *entry[K, V], now time.Time) {
	c.cache.MoveToFront(elem)
	if c.config.Sliding {
		ent.expiresAt = deadline(now, ent.ttl)
	}
}

func (c *LRU[K, V]) expired(ent *entry[K, V], now time.Time) bool {
	return !ent.expiresAt.IsZero() && now.After(ent.expiresAt)
}

// removeOldest 移除最老的条目
func (c *LRU[K, V]) removeOldest() {
	elem := c.cache.Back()
	if elem != nil {
		c.removeElement(elem, EvictCapacity)
	}
}

// removeElement 移除元素
func (c *LRU[K, V]) removeElement(elem *list.Element, reason EvictReason) {
	c.cache.Remove(elem)
	ent := elem.Value.(*entry[K, V])
	delete(c.items, ent.key)
	if c.onEvict != nil {
		c.onEvict(ent.key, ent.value, reason)
	}
}

func deadline(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
