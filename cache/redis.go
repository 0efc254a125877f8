package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pipelinekit/pipelinekit/events"
)

const defaultRedisPrefix = "pipelinekit:cache:"

// RedisCache is a Redis-backed Cache, adapted from
// statestore.RedisStore: JSON-encoded entries, SETEX-style TTL via
// client.Set's expiration argument, a configurable key prefix. Unlike
// LRU, eviction is left to Redis's own maxmemory policy — the core only
// manages expiration.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	emitter *events.Emitter
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithPrefix overrides the default Redis key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(c *RedisCache) { c.prefix = prefix }
}

// NewRedisCache creates a Redis-backed cache over an existing client.
func NewRedisCache(client *redis.Client, emitter *events.Emitter, opts ...RedisOption) *RedisCache {
	c := &RedisCache{client: client, prefix: defaultRedisPrefix, emitter: emitter}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

type redisEntry struct {
	Value json.RawMessage `json:"value"`
}

// Get fetches and JSON-decodes the entry for key. A missing or expired
// key (redis.Nil) reports a clean miss rather than an error.
func (c *RedisCache) Get(key string) (any, bool) {
	ctx := context.Background()
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.emitter.CacheMiss(key)
			return nil, false
		}
		c.emitter.CacheMiss(key)
		return nil, false
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		c.emitter.CacheMiss(key)
		return nil, false
	}
	c.emitter.CacheHit(key)
	return decoded, true
}

// Put JSON-encodes value and stores it with Redis's native expiration
// (ttl==0 means no expiration, matching client.Set's own convention).
func (c *RedisCache) Put(key string, value any, ttl time.Duration) {
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err == nil {
		c.emitter.CacheStored(key, ttl)
	}
}

// Invalidate deletes key from Redis.
func (c *RedisCache) Invalidate(key string) {
	ctx := context.Background()
	if err := c.client.Del(ctx, c.key(key)).Err(); err == nil {
		c.emitter.CacheEvicted(key, "invalidated")
	}
}
