package data

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisCache(t *testing.T) (*RedisCacheRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheRepo(client), mr
}

func TestRedisCacheRepo_SetGetDelete(t *testing.T) {
	cache, mr := newMiniredisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "status:assessment:1", []byte(`{"status":"COMPLETED"}`), time.Minute))

	got, err := cache.Get(ctx, "status:assessment:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"COMPLETED"}`, string(got))

	mr.FastForward(2 * time.Minute)
	got, err = cache.Get(ctx, "status:assessment:1")
	require.NoError(t, err)
	assert.Nil(t, got, "expired keys read as a miss")

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), 0))
	deleted, err := cache.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = cache.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRedisCacheRepo_EmptyKey(t *testing.T) {
	cache, _ := newMiniredisCache(t)
	ctx := context.Background()

	assert.Error(t, cache.Set(ctx, "", nil, 0))
	_, err := cache.Get(ctx, "")
	assert.Error(t, err)
	_, err = cache.Delete(ctx, "")
	assert.Error(t, err)
}

func TestRedisCacheRepo_Health(t *testing.T) {
	cache, mr := newMiniredisCache(t)
	assert.NoError(t, cache.Health(context.Background()))

	mr.Close()
	assert.Error(t, cache.Health(context.Background()))
}
