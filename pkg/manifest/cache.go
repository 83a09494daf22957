package manifest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/easyops/storyctx/pkg/core/errors"
	"github.com/easyops/storyctx/pkg/otel"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL 清单缓存的默认有效期
const DefaultTTL = 60 * time.Second

// Snapshot 一次成功拉取的结果，摘要在拉取时渲染一次
type Snapshot struct {
	Manifest  *Manifest
	Digest    string
	FetchedAt time.Time
}

// Cache 带 TTL 的清单缓存
//
// 过期后的首次读取触发拉取，并发读取合并为一次拉取；拉取失败时若有旧值则继续返回旧值。
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	metrics otel.Metrics
	logger  otel.Logger

	mu      sync.RWMutex
	current *Snapshot
	sf      singleflight.Group
}

// CacheOption 配置 Cache
type CacheOption func(*Cache)

// WithTTL 设置有效期
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock 设置时钟，用于测试
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m otel.Metrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithLogger 设置日志器
func WithLogger(l otel.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

// NewCache 创建清单缓存
func NewCache(fetcher Fetcher, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		metrics: otel.NewNoopMetrics(),
		logger:  otel.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get 返回当前清单快照
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	cur := c.current
	c.mu.RUnlock()

	if cur != nil && c.now().Sub(cur.FetchedAt) < c.ttl {
		c.metrics.Counter(otel.MetricManifestHits).Add(ctx, 1)
		return cur, nil
	}
	c.metrics.Counter(otel.MetricManifestMisses).Add(ctx, 1)

	v, err, _ := c.sf.Do("manifest", func() (interface{}, error) {
		return c.load(ctx)
	})
	if err == nil {
		return v.(*Snapshot), nil
	}

	c.metrics.Counter(otel.MetricManifestErrors).Add(ctx, 1)
	if cur != nil {
		c.logger.Warn("manifest refresh failed, serving stale copy",
			"fetched_at", cur.FetchedAt, "error", err)
		return cur, nil
	}
	return nil, fmt.Errorf("%w: %w", errors.ErrManifestUnavailable, err)
}

// load 拉取并解析清单，成功后替换当前快照
func (c *Cache) load(ctx context.Context) (*Snapshot, error) {
	data, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Manifest:  m,
		Digest:    Digest(m),
		FetchedAt: c.now(),
	}
	c.mu.Lock()
	c.current = snap
	c.mu.Unlock()

	c.logger.Debug("manifest loaded", "name", m.Name, "version", m.Version)
	return snap, nil
}

// Invalidate 丢弃缓存，下一次 Get 重新拉取
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}
