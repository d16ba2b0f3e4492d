package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements RedisClient over a map, returning go-redis command
// results built with the library's New*Result helpers.
type fakeRedis struct {
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = append([]byte(nil), value.([]byte)...)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			delete(f.ttls, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStoreSaveLoad(t *testing.T) {
	fake := newFakeRedis()
	store := NewRedisStore(fake)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "abc", []byte("state"), 5*time.Minute))
	assert.Equal(t, 5*time.Minute, fake.ttls["liveview:session:abc"])

	got, err := store.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), got)
}

func TestRedisStoreMissing(t *testing.T) {
	store := NewRedisStore(newFakeRedis(), WithRedisPrefix("app:"))

	got, err := store.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStorePrefixAndDelete(t *testing.T) {
	fake := newFakeRedis()
	store := NewRedisStore(fake, WithRedisPrefix("app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "abc", []byte("x"), time.Minute))
	assert.Contains(t, fake.data, "app:abc")

	require.NoError(t, store.Save(ctx, "abc", []byte("x"), -time.Second))
	assert.NotContains(t, fake.data, "app:abc")
}

func TestRedisStoreBackendError(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	store := NewRedisStore(fake)

	_, err := store.Load(context.Background(), "abc")
	assert.ErrorContains(t, err, "connection refused")
	assert.Error(t, store.Save(context.Background(), "abc", []byte("x"), time.Minute))
}

func TestRedisStoreClosed(t *testing.T) {
	store := NewRedisStore(newFakeRedis())
	require.NoError(t, store.Close())

	_, err := store.Load(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestRedisClientSatisfiesInterface(t *testing.T) {
	client := NewRedisClient("localhost:6379", "", 0)
	defer client.Close()
	var _ RedisClient = client
}
