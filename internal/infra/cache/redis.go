package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	defaultRedisPrefix = "mairble:"
	redisOpTimeout     = 500 * time.Millisecond
)

// Redis stores JSON-encoded values in Redis with a TTL.
// Redis errors degrade to cache misses so callers fall through to the source.
type Redis[T any] struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// RedisOption customizes a Redis cache.
type RedisOption func(*redisOptions)

type redisOptions struct {
	prefix string
	logger *zap.Logger
}

// WithPrefix sets the key namespace. Default is "mairble:".
func WithPrefix(prefix string) RedisOption {
	return func(o *redisOptions) { o.prefix = prefix }
}

// WithLogger logs Redis failures that were turned into misses.
func WithLogger(logger *zap.Logger) RedisOption {
	return func(o *redisOptions) { o.logger = logger }
}

// NewRedis creates a Redis-backed cache on an existing client.
func NewRedis[T any](client *redis.Client, ttl time.Duration, opts ...RedisOption) *Redis[T] {
	o := redisOptions{prefix: defaultRedisPrefix, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Redis[T]{client: client, ttl: ttl, prefix: o.prefix, logger: o.logger}
}

// Connect parses a redis:// URL and verifies the server answers PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Get retrieves a value. Missing keys, Redis errors and corrupt payloads
// all report a miss.
func (c *Redis[T]) Get(key string) (T, bool) {
	var zero T
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return zero, false
	}
	if err != nil {
		c.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		return zero, false
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		c.logger.Warn("corrupt cache entry", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return value, true
}

// Set stores a value with the configured TTL.
func (c *Redis[T]) Set(key string, value T) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache value not encodable", zap.String("key", key), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes a value.
func (c *Redis[T]) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.Warn("redis delete failed", zap.String("key", key), zap.Error(err))
	}
}
