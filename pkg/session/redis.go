package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of redis.Cmdable the store uses.
// *redis.Client, *redis.ClusterClient and *redis.Ring satisfy it.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore is a Redis-backed Store.
// It's suitable for multi-server deployments with shared session state.
// Expiry is delegated to Redis key TTLs.
type RedisStore struct {
	client RedisClient
	prefix string
	closed atomic.Bool
}

// RedisStoreOption configures RedisStore behavior.
type RedisStoreOption func(*redisStoreConfig)

type redisStoreConfig struct {
	prefix string
}

// WithRedisPrefix sets the key prefix for session keys.
// Default: "liveview:session:".
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(c *redisStoreConfig) {
		c.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(client RedisClient, opts ...RedisStoreOption) *RedisStore {
	cfg := &redisStoreConfig{
		prefix: "liveview:session:",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.prefix,
	}
}

// NewRedisClient connects to the Redis server at addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

// Save stores data with a time to live.
func (r *RedisStore) Save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	if ttl <= 0 {
		return r.Delete(ctx, id)
	}
	return r.client.Set(ctx, r.key(id), data, ttl).Err()
}

// Load retrieves data if the key exists.
func (r *RedisStore) Load(ctx context.Context, id string) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrStoreClosed
	}

	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes a key from Redis.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	return r.client.Del(ctx, r.key(id)).Err()
}

// Close marks the store as closed.
// It does not close the Redis client, which may be shared.
func (r *RedisStore) Close() error {
	r.closed.Store(true)
	return nil
}
