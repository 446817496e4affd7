package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedis 启动一个miniredis实例
func setupRedis(t *testing.T) (*miniredis.Miniredis, Config) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, Config{
		Type:       "redis",
		RedisAddr:  mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: time.Minute,
	}
}

// TestMemoryCache 测试内存缓存的基本功能
func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryCache(Config{
		Type:            "memory",
		DefaultTTL:      time.Second * 2,
		CleanupInterval: time.Second,
	})
	require.NoError(t, err)
	defer cache.Close()

	// 使用默认TTL
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
	require.NoError(t, cache.Set(ctx, "expire-soon", "temp-value", time.Millisecond*50))
	time.Sleep(time.Millisecond * 150)
	_, found, err = cache.Get(ctx, "expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)

	// 删除
	require.NoError(t, cache.Set(ctx, "to-delete", "delete-me", 0))
	require.NoError(t, cache.Delete(ctx, "to-delete"))
	_, found, _ = cache.Get(ctx, "to-delete")
	assert.False(t, found)

	// 清空
	require.NoError(t, cache.Set(ctx, "key2", "value2", 0))
	require.NoError(t, cache.Clear(ctx))
	_, found, _ = cache.Get(ctx, "key2")
	assert.False(t, found)
}

// TestRedisCache 使用miniredis测试Redis缓存
func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr, config := setupRedis(t)

	cache, err := NewRedisCache(config)
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Set(ctx, "redis-key1", "redis-value1", 0))
	val, found, err := cache.Get(ctx, "redis-key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "redis-value1", val)

	// 键带前缀，且使用默认TTL
	assert.True(t, mr.Exists("test:redis-key1"))
	assert.Equal(t, time.Minute, mr.TTL("test:redis-key1"))

	_, found, err = cache.Get(ctx, "redis-non-existent")
	assert.NoError(t, err)
	assert.False(t, found)

	// 过期
	require.NoError(t, cache.Set(ctx, "redis-expire-soon", "v", time.Second))
	mr.FastForward(2 * time.Second)
	_, found, err = cache.Get(ctx, "redis-expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)

	// 删除
	require.NoError(t, cache.Set(ctx, "redis-to-delete", "v", 0))
	require.NoError(t, cache.Delete(ctx, "redis-to-delete"))
	_, found, _ = cache.Get(ctx, "redis-to-delete")
	assert.False(t, found)
}

// TestRedisCacheClearKeepsForeignKeys 清空时只删除本前缀下的键
func TestRedisCacheClearKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	mr, config := setupRedis(t)
	require.NoError(t, mr.Set("other:key", "keep"))

	cache, err := NewRedisCache(config)
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Set(ctx, "a", "1", 0))
	require.NoError(t, cache.Set(ctx, "b", "2", 0))
	require.NoError(t, cache.Clear(ctx))

	assert.False(t, mr.Exists("test:a"))
	assert.False(t, mr.Exists("test:b"))
	assert.True(t, mr.Exists("other:key"))
}

// TestRedisCacheUnavailable 连接失败时返回错误
func TestRedisCacheUnavailable(t *testing.T) {
	mr, config := setupRedis(t)
	mr.Close()

	_, err := NewRedisCache(config)
	assert.Error(t, err)
}

// TestCacheFactory 测试缓存工厂函数
func TestCacheFactory(t *testing.T) {
	memCache, err := NewCache(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, memCache)

	_, redisConfig := setupRedis(t)
	redisCache, err := NewCache(redisConfig)
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, redisCache)
	redisCache.Close()

	// 未知类型回退为内存缓存
	unknownCache, err := NewCache(Config{Type: "unknown-type"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, unknownCache)
}

// TestGenerateCacheKey 测试缓存键生成
func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "prefix", GenerateCacheKey("prefix"))
	assert.Equal(t, "prefix:part1", GenerateCacheKey("prefix", "part1"))
	assert.Equal(t, "prefix:part1:part2:part3", GenerateCacheKey("prefix", "part1", "part2", "part3"))

	long := strings.Repeat("x", 200)
	key := GenerateCacheKey("prefix", long)
	assert.Len(t, key, len("prefix:")+40)
	assert.Equal(t, key, GenerateCacheKey("prefix", long))
}
