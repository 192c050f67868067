package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"library-ledger-backend/internal/logger"
)

const keyPrefix = "idempotency:ledger:"

const (
	stateProcessing = "processing"
	stateDone       = "done"
)

type redisState struct {
	Status   string    `json:"status"`
	Response *Response `json:"response,omitempty"`
}

// redisClient is the part of *redis.Client the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetArgs(ctx context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisStore struct {
	client redisClient
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return newRedisStore(client, ttl)
}

func newRedisStore(client redisClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Connect opens a client and checks the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	logger.ExternalServiceCall("Redis", "Ping", "addr", addr)
	err := client.Ping(ctx).Err()
	logger.ExternalServiceResult("Redis", "Ping", err, "addr", addr)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(k string) string {
	return keyPrefix + k
}

func (s *RedisStore) Reserve(ctx context.Context, key string) (*Response, error) {
	k := s.key(key)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := s.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			raw, _ := json.Marshal(redisState{Status: stateProcessing})
			_, err := s.client.SetArgs(ctx, k, raw, redis.SetArgs{Mode: "NX", TTL: s.ttl}).Result()
			if errors.Is(err, redis.Nil) {
				// Lost the race to another request; read what it wrote.
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("redis set: %w", err)
			}
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("redis get: %w", err)
		}

		var state redisState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("redis unmarshal: %w", err)
		}
		switch state.Status {
		case stateDone:
			if state.Response == nil {
				return nil, errors.New("redis: completed key without response")
			}
			return state.Response, nil
		case stateProcessing:
			return nil, ErrInProgress
		default:
			logger.Warn("Discarding unreadable idempotency record", "key", k, "status", state.Status)
			if err := s.client.Del(ctx, k).Err(); err != nil {
				return nil, fmt.Errorf("redis del: %w", err)
			}
		}
	}
}

func (s *RedisStore) Complete(ctx context.Context, key string, resp Response) error {
	raw, err := json.Marshal(redisState{Status: stateDone, Response: &resp})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), raw, s.ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
