package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mediaanalyzer/models"
)

// RedisStore keeps the snapshot under a single Redis key with no expiry
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore creates a store using an existing client
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// DialRedis connects to addr and verifies the connection with PING
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Name implements Store
func (s *RedisStore) Name() string { return "redis" }

// Load implements Store
func (s *RedisStore) Load(ctx context.Context) (models.Collection, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read redis key %s: %w", s.key, err)
	}
	return Decode(data)
}

// Save implements Store
func (s *RedisStore) Save(ctx context.Context, c models.Collection) error {
	data, err := Encode(c)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write redis key %s: %w", s.key, err)
	}
	return nil
}
