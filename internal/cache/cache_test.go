package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryCache 测试内存缓存的基本功能
func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryCache(Config{
		Type:            "memory",
		DefaultTTL:      time.Second * 2,
		CleanupInterval: time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "key1", "value1", 0))
	val, found, err := cache.Get(ctx, "key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	val, found, err = cache.Get(ctx, "non-existent")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	// 过期
	require.NoError(t, cache.Set(ctx, "expire-soon", "temp-value", time.Millisecond*200))
	time.Sleep(time.Millisecond * 500)
	_, found, err = cache.Get(ctx, "expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "to-delete", "delete-me", 0))
	require.NoError(t, cache.Delete(ctx, "to-delete"))
	_, found, _ = cache.Get(ctx, "to-delete")
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "key2", "value2", 0))
	require.NoError(t, cache.Clear(ctx))
	_, found, _ = cache.Get(ctx, "key2")
	assert.False(t, found)
}

// TestRedisCache 使用miniredis测试Redis缓存
func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	cache, err := NewRedisCache(Config{
		Type:       "redis",
		RedisAddr:  mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "redis-key1", "redis-value1", 0))
	assert.True(t, mr.Exists("test:redis-key1"))
	assert.Equal(t, time.Hour, mr.TTL("test:redis-key1"))

	val, found, err := cache.Get(ctx, "redis-key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "redis-value1", val)

	_, found, err = cache.Get(ctx, "redis-non-existent")
	assert.NoError(t, err)
	assert.False(t, found)

	// 过期
	require.NoError(t, cache.Set(ctx, "redis-expire-soon", "v", time.Second))
	mr.FastForward(2 * time.Second)
	_, found, err = cache.Get(ctx, "redis-expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "redis-to-delete", "x", 0))
	require.NoError(t, cache.Delete(ctx, "redis-to-delete"))
	_, found, _ = cache.Get(ctx, "redis-to-delete")
	assert.False(t, found)

	// Clear只清理本前缀下的键
	require.NoError(t, mr.Set("other:key", "keep"))
	require.NoError(t, cache.Set(ctx, "a", "1", 0))
	require.NoError(t, cache.Clear(ctx))
	assert.False(t, mr.Exists("test:a"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisCacheUnavailable(t *testing.T) {
	_, err := NewCache(Config{Type: "redis", RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}

// TestCacheFactory 测试缓存工厂函数
func TestCacheFactory(t *testing.T) {
	memCache, err := NewCache(DefaultConfig())
	assert.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, memCache)

	// 未知类型回退到内存缓存
	unknownCache, err := NewCache(Config{Type: "unknown-type"})
	assert.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, unknownCache)
}

// TestGenerateCacheKey 测试缓存键生成
func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "prefix", GenerateCacheKey("prefix"))
	assert.Equal(t, "prefix:part1", GenerateCacheKey("prefix", "part1"))
	assert.Equal(t, "prefix:part1:part2:part3", GenerateCacheKey("prefix", "part1", "part2", "part3"))
	assert.Equal(t, "indexed:policy-pdf:abc", IndexedDocumentKey("policy-pdf", "abc"))
}
