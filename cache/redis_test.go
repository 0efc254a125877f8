package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func setupRedisCache(t *testing.T, opts ...RedisOption) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(client, newTestEmitter(), opts...)
	return c, mr
}

func TestRedisCacheGetMiss(t *testing.T) {
	c, _ := setupRedisCache(t)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestRedisCachePutThenGet(t *testing.T) {
	c, _ := setupRedisCache(t)
	c.Put("a", map[string]any{"field": "value"}, time.Minute)

	v, ok := c.Get("a")
	assert.True(t, ok)
	decoded, ok := v.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "value", decoded["field"])
}

func TestRedisCacheExpiresAfterTTL(t *testing.T) {
	c, mr := setupRedisCache(t)
	c.Put("a", "value", 20*time.Millisecond)

	mr.FastForward(50 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestRedisCacheInvalidateRemovesKey(t *testing.T) {
	c, _ := setupRedisCache(t)
	c.Put("a", "value", time.Minute)
	c.Invalidate("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestRedisCacheRespectsCustomPrefix(t *testing.T) {
	c, mr := setupRedisCache(t, WithPrefix("custom:"))
	c.Put("a", "value", time.Minute)

	assert.True(t, mr.Exists("custom:a"))
}
