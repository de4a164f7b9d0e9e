package knowledge

import (
	"context"
	"sync"
	"time"
)

const (
	defaultEmbedCacheSize = 100
	defaultEmbedCacheTTL  = time.Hour
)

type cachedVector struct {
	vector   []float32
	storedAt time.Time
}

// CachedEmbedder 在Embedder前挂一层进程内缓存，
// 重复问题在TTL内不再请求嵌入服务。
// 条目写入后不可变，并发读写只需单锁保护map和淘汰队列。
type CachedEmbedder struct {
	inner Embedder
	ttl   time.Duration
	max   int
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cachedVector
	order   []string // 插入顺序，超限时从头部淘汰
}

// NewCachedEmbedder 创建带缓存的嵌入生成器
func NewCachedEmbedder(inner Embedder, max int, ttl time.Duration) *CachedEmbedder {
	if max <= 0 {
		max = defaultEmbedCacheSize
	}
	if ttl <= 0 {
		ttl = defaultEmbedCacheTTL
	}
	return &CachedEmbedder{
		inner:   inner,
		ttl:     ttl,
		max:     max,
		now:     time.Now,
		entries: make(map[string]cachedVector),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.get(text); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(text, vec)
	return vec, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) Ready() bool {
	return c.inner.Ready()
}

// Len 当前缓存条目数
func (c *CachedEmbedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CachedEmbedder) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.vector, true
}

func (c *CachedEmbedder) put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = cachedVector{vector: vector, storedAt: c.now()}

	for len(c.entries) > c.max && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}
