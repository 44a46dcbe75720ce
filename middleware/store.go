package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store remembers claimed keys for Dedupe
type Store interface {
	// Claim marks key as seen. It returns true if this call was the first
	// to claim key within the store's TTL.
	Claim(ctx context.Context, key string) (bool, error)
}

// MemoryStore is a process-local Store with per-key expiry.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
	ttl     time.Duration
	maxSize int
}

// NewMemoryStore creates a store remembering keys for ttl. When maxSize
// keys are live, expired keys are pruned and then the oldest is evicted.
// maxSize 0 means unlimited.
func NewMemoryStore(ttl time.Duration, maxSize int) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Claim implements Store
func (s *MemoryStore) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, ok := s.entries[key]; ok && now.Before(expiry) {
		return false, nil
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evict(now)
	}
	s.entries[key] = now.Add(s.ttl)
	return true, nil
}

// evict drops expired keys, or the oldest key if none expired.
func (s *MemoryStore) evict(now time.Time) {
	var oldest string
	var oldestExpiry time.Time
	pruned := false
	for k, expiry := range s.entries {
		if !now.Before(expiry) {
			delete(s.entries, k)
			pruned = true
			continue
		}
		if oldest == "" || expiry.Before(oldestExpiry) {
			oldest, oldestExpiry = k, expiry
		}
	}
	if !pruned && oldest != "" {
		delete(s.entries, oldest)
	}
}

// Len returns the number of remembered keys, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RedisStore is a Store shared by every process using the same Redis and
// prefix. Claims are atomic (SET NX) and expire with the TTL.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

// DefaultRedisPrefix namespaces dedupe keys
const DefaultRedisPrefix = "eventbus:dedupe:"

// NewRedisStore creates a store remembering keys for ttl. An empty prefix
// selects DefaultRedisPrefix.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, ttl: ttl, prefix: prefix}
}

// Claim implements Store
func (s *RedisStore) Claim(ctx context.Context, key string) (bool, error) {
	set, err := s.client.SetNX(ctx, s.prefix+key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return set, nil
}

// Forget removes key so it can be claimed again
func (s *RedisStore) Forget(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Compile-time interface checks
var _ Store = (*MemoryStore)(nil)
var _ Store = (*RedisStore)(nil)
