package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore implements Store using in-process storage with one eviction
// timer per key
type MemoryStore struct {
	logger     *zap.Logger
	defaultTTL time.Duration

	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	value string
	timer *time.Timer
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-process cache store
func NewMemoryStore(logger *zap.Logger, defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		logger:     logger.Named("cache.memory"),
		defaultTTL: defaultTTL,
		entries:    make(map[string]*memoryEntry),
	}
}

// Get implements Store.Get
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.value == "" {
		return "", false
	}
	return e.value, true
}

// Set implements Store.Set
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[key]; ok {
		prev.timer.Stop()
	}

	e := &memoryEntry{value: value}
	e.timer = time.AfterFunc(ttl, func() {
		s.evict(key, e)
	})
	s.entries[key] = e
	return nil
}

// evict removes the entry for key, but only if it is still the one the
// expired timer was armed for. A Set that raced the timer wins.
func (s *MemoryStore) evict(key string, e *memoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[key]; ok && cur == e {
		delete(s.entries, key)
		s.logger.Debug("cache entry expired", zap.String("key", key))
	}
}
