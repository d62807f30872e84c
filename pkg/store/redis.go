package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces all docpull keys in a shared Redis instance.
const keyPrefix = "docpull:state:"

// RedisStore implements Store on a Redis backend. Values are written
// without TTL; collection state lives until explicitly removed.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{client: client}
}

// Get retrieves the value for a key.
// Returns ErrNotFound if the key doesn't exist.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	storeOperationsTotal.WithLabelValues("redis", "get").Inc()

	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		storeErrorsTotal.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set durably stores the value. Redis acknowledges the write before
// this returns; durability beyond that depends on the server's
// persistence configuration.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	storeOperationsTotal.WithLabelValues("redis", "set").Inc()

	if err := s.client.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		storeErrorsTotal.WithLabelValues("redis", "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Remove deletes the key.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	storeOperationsTotal.WithLabelValues("redis", "remove").Inc()

	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		storeErrorsTotal.WithLabelValues("redis", "remove").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
