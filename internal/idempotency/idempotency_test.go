package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	now := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	resp, err := s.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, err = s.Reserve(ctx, "k1")
	assert.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, s.Complete(ctx, "k1", Response{Status: 201, ContentType: "application/json", Body: []byte(`{"id":"e1"}`)}))
	resp, err = s.Reserve(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)
	assert.JSONEq(t, `{"id":"e1"}`, string(resp.Body))

	t.Run("Release frees the key", func(t *testing.T) {
		_, err := s.Reserve(ctx, "k2")
		require.NoError(t, err)
		require.NoError(t, s.Release(ctx, "k2"))
		resp, err := s.Reserve(ctx, "k2")
		require.NoError(t, err)
		assert.Nil(t, resp)
	})

	t.Run("Expired keys are reusable", func(t *testing.T) {
		now = now.Add(2 * time.Hour)
		resp, err := s.Reserve(ctx, "k1")
		require.NoError(t, err)
		assert.Nil(t, resp)
	})
}

func TestMemoryStore_SweepsExpiredKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	now := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for _, k := range []string{"a", "b", "c"} {
		_, err := s.Reserve(ctx, k)
		require.NoError(t, err)
	}
	require.NoError(t, s.Complete(ctx, "c", Response{Status: 200}))
	assert.Len(t, s.entries, 3)

	now = now.Add(2 * time.Hour)
	_, err := s.Reserve(ctx, "d")
	require.NoError(t, err)
	assert.Len(t, s.entries, 1, "only the fresh key survives")
	assert.Contains(t, s.entries, "d")
}

func TestCacheable(t *testing.T) {
	assert.True(t, Cacheable(201))
	assert.True(t, Cacheable(409))
	assert.False(t, Cacheable(500))
	assert.False(t, Cacheable(503))
}

// fakeRedis is a single-goroutine stand-in for the handful of commands the
// store issues.
type fakeRedis struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failGet != nil {
		return redis.NewStringResult("", f.failGet)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) SetArgs(_ context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd {
	if _, ok := f.data[key]; ok && a.Mode == "NX" {
		return redis.NewStatusResult("", redis.Nil)
	}
	f.data[key] = value.([]byte)
	f.ttls[key] = a.TTL
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = value.([]byte)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	s := newRedisStore(fake, 0)

	resp, err := s.Reserve(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, DefaultTTL, fake.ttls[keyPrefix+"abc"])

	_, err = s.Reserve(ctx, "abc")
	assert.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, s.Complete(ctx, "abc", Response{Status: 201, Body: []byte(`{}`)}))
	resp, err = s.Reserve(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)

	require.NoError(t, s.Release(ctx, "abc"))
	assert.NotContains(t, fake.data, keyPrefix+"abc")
}

func TestRedisStore_DiscardsUnknownState(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	raw, _ := json.Marshal(redisState{Status: "failed"})
	fake.data[keyPrefix+"abc"] = raw
	s := newRedisStore(fake, time.Hour)

	resp, err := s.Reserve(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, resp)

	var state redisState
	require.NoError(t, json.Unmarshal(fake.data[keyPrefix+"abc"], &state))
	assert.Equal(t, stateProcessing, state.Status)
}

func TestRedisStore_GetError(t *testing.T) {
	fake := newFakeRedis()
	fake.failGet = errors.New("connection refused")
	s := newRedisStore(fake, time.Hour)

	_, err := s.Reserve(context.Background(), "abc")
	assert.ErrorContains(t, err, "connection refused")
}
