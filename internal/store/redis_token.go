package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenStore caches bearer tokens in Redis so consecutive runs and
// replicas share one token until it expires.
type RedisTokenStore struct {
	rdb *redis.Client
}

func NewRedisTokenStore(rdb *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb}
}

func (s *RedisTokenStore) GetToken(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisTokenStore) PutToken(ctx context.Context, key, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, token, ttl).Err()
}

func (s *RedisTokenStore) DeleteToken(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
