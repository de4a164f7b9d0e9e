package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) Dimensions() int { return 1 }
func (c *countingEmbedder) Ready() bool     { return true }

func TestCachedEmbedderHitSkipsInner(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCachedEmbedder(inner, 10, time.Hour)

	first, err := cache.Embed(context.Background(), "hola")
	require.NoError(t, err)
	second, err := cache.Embed(context.Background(), "hola")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedderTTLExpiry(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCachedEmbedder(inner, 10, time.Hour)
	current := time.Now()
	cache.now = func() time.Time { return current }

	_, err := cache.Embed(context.Background(), "hola")
	require.NoError(t, err)

	current = current.Add(61 * time.Minute)
	_, err = cache.Embed(context.Background(), "hola")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedderEvictsOldestFirst(t *testing.T) {
	inner := &countingEmbedder{}
	cache := NewCachedEmbedder(inner, 2, time.Hour)

	_, _ = cache.Embed(context.Background(), "a")
	_, _ = cache.Embed(context.Background(), "bb")
	_, _ = cache.Embed(context.Background(), "ccc") // 淘汰 "a"
	assert.Equal(t, 2, cache.Len())

	_, _ = cache.Embed(context.Background(), "bb") // 仍在缓存
	assert.Equal(t, 3, inner.calls)

	_, _ = cache.Embed(context.Background(), "a") // 已被淘汰，重新请求
	assert.Equal(t, 4, inner.calls)
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("quota exceeded")}
	cache := NewCachedEmbedder(inner, 10, time.Hour)

	_, err := cache.Embed(context.Background(), "hola")
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	inner.err = nil
	_, err = cache.Embed(context.Background(), "hola")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
