package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Reserve(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := s.Reserve(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Reserve(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Reserve(ctx, "k2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, err = s.Reserve(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired key can be reserved again")
}

func TestMemoryStore_Release(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Reserve(ctx, "k1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "k1"))

	ok, err := s.Reserve(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, "127.0.0.1:1")
	assert.ErrorContains(t, err, "failed to connect to Redis")
}

func TestRedisStore_ReserveError(t *testing.T) {
	s := &RedisStore{rdb: redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})}
	defer s.Close()

	_, err := s.Reserve(context.Background(), "k1", time.Minute)
	assert.ErrorContains(t, err, "redis SETNX failed")
	assert.ErrorContains(t, s.Release(context.Background(), "k1"), "redis DEL failed")
}
