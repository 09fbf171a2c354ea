package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tabbridge/tabbridge/internal/common/config"
)

// RedisStore implements Store using Redis, so multiple daemon replicas can
// share the token slot. Eviction rides on Redis key expiry instead of local
// timers; a Set overwrites the key and resets its TTL, which preserves the
// supersede-previous-timer contract.
type RedisStore struct {
	logger     *zap.Logger
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis-backed cache store
func NewRedisStore(logger *zap.Logger, cfg *config.CacheConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "tabbridge"
	}

	return &RedisStore{
		logger:     logger.Named("cache.redis"),
		client:     client,
		prefix:     prefix + ":",
		defaultTTL: cfg.TTL,
	}, nil
}

// Get implements Store.Get
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Error("failed to read cache entry",
				zap.String("key", key),
				zap.Error(err))
		}
		return "", false
	}
	if value == "" {
		return "", false
	}
	return value, true
}

// Set implements Store.Set
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

// Close releases the underlying Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
