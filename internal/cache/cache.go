package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabbridge/tabbridge/internal/common/config"
)

// Store is an expiring key/value store. Values are opaque strings; an empty
// value is indistinguishable from an absent key, which is how callers
// force-invalidate a slot before its timer fires.
type Store interface {
	// Get returns the live value for key. ok is false when the key is
	// absent, expired, or holds an empty value.
	Get(ctx context.Context, key string) (value string, ok bool)

	// Set stores value under key and schedules eviction after ttl. A
	// non-positive ttl uses the store default. Setting a key supersedes
	// any eviction scheduled by a previous Set.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Type represents the type of cache store
type Type string

const (
	// TypeMemory represents the in-process cache store
	TypeMemory Type = "memory"
	// TypeRedis represents the Redis-backed cache store
	TypeRedis Type = "redis"
)

// NewStore creates a cache store based on configuration
func NewStore(logger *zap.Logger, cfg *config.CacheConfig) (Store, error) {
	logger.Info("Initializing cache store", zap.String("type", cfg.Type))
	switch Type(cfg.Type) {
	case TypeMemory:
		return NewMemoryStore(logger, cfg.TTL), nil
	case TypeRedis:
		return NewRedisStore(logger, cfg)
	default:
		return nil, fmt.Errorf("unsupported cache store type: %s", cfg.Type)
	}
}
