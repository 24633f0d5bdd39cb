package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/medrx/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// DefaultDedupKeyPrefix namespaces alert claims in a shared Redis
const DefaultDedupKeyPrefix = "medrx:alert:claim:"

// RedisDedupStore implements shared.DedupStore using Redis.
// Claims are visible to every instance sharing the Redis database.
type RedisDedupStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisDedupStore creates a new Redis-based claim store and checks the connection
func NewRedisDedupStore(ctx context.Context, cfg RedisConfig) (*RedisDedupStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisDedupStoreWithClient(client, ""), nil
}

// NewRedisDedupStoreWithClient creates a store with an existing Redis client
func NewRedisDedupStoreWithClient(client *redis.Client, keyPrefix string) *RedisDedupStore {
	if keyPrefix == "" {
		keyPrefix = DefaultDedupKeyPrefix
	}
	return &RedisDedupStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Claim sets the key with SETNX so that exactly one caller wins per ttl
func (s *RedisDedupStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %q: %w", key, err)
	}
	return ok, nil
}

// Release deletes the claim
func (s *RedisDedupStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release %q: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisDedupStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisDedupStore) Close() error {
	return s.client.Close()
}

// Ensure RedisDedupStore implements DedupStore
var _ shared.DedupStore = (*RedisDedupStore)(nil)
