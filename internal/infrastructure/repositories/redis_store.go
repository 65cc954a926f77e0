package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/you/mimora/domain"
)

// RedisStore implements domain.Store for one client. Keys are namespaced
// by client ID and refreshed to ttl on every write.
type RedisStore struct {
	client   *redis.Client
	clientID string
	ttl      time.Duration
}

// NewRedisStore creates a store scoped to clientID
func NewRedisStore(client *redis.Client, clientID string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:   client,
		clientID: clientID,
		ttl:      ttl,
	}
}

func (s *RedisStore) key(k string) string {
	return fmt.Sprintf("client:%s:%s", s.clientID, k)
}

// Get implements domain.Store
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set implements domain.Store
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

// Delete implements domain.Store. Missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return s.client.Del(ctx, full...).Err()
}

var _ domain.Store = (*RedisStore)(nil)
