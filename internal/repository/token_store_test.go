package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
)

type fakeRedis struct {
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisTokenStoreRoundTrip(t *testing.T) {
	fake := newFakeRedis()
	store := NewRedisTokenStore(fake, 48*time.Hour, prefixSealer{})
	ctx := context.Background()

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.Set(ctx, &models.TokenState{UserID: "user-1", AccessToken: "a", RefreshToken: "r", ExpiresAt: exp}))
	assert.Contains(t, fake.data["tokens:user-1"], "sealed:r")
	assert.Equal(t, 48*time.Hour, fake.ttl["tokens:user-1"])

	state, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "a", state.AccessToken)
	assert.Equal(t, "r", state.RefreshToken)
	assert.True(t, exp.Equal(state.ExpiresAt))

	require.NoError(t, store.Clear(ctx, "user-1"))
	_, err = store.Get(ctx, "user-1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRedisTokenStorePropagatesErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	store := NewRedisTokenStore(fake, time.Hour, nil)

	_, err := store.Get(context.Background(), "user-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryTokenStoreReturnsCopies(t *testing.T) {
	store := NewMemoryTokenStore(0)
	ctx := context.Background()

	original := &models.TokenState{UserID: "user-1", AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Set(ctx, original))
	original.AccessToken = "mutated"

	state, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "a", state.AccessToken)

	state.RefreshToken = "changed"
	again, _ := store.Get(ctx, "user-1")
	assert.Equal(t, "r", again.RefreshToken)

	require.NoError(t, store.Clear(ctx, "user-1"))
	_, err = store.Get(ctx, "user-1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
