package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers the response of a completed checkout per
// client-supplied key.
type IdempotencyStore interface {
	Get(ctx context.Context, userID, key string) ([]byte, bool, error)
	Set(ctx context.Context, userID, key string, payload []byte, ttl time.Duration) error
}

type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func idemKey(userID, key string) string {
	return "idem:cart:" + userID + ":" + key
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, userID, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, idemKey(userID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, userID, key string, payload []byte, ttl time.Duration) error {
	return s.client.Set(ctx, idemKey(userID, key), payload, ttl).Err()
}
