// Package cache holds the storage layers of the custom dimension tracker:
// an in-memory L1 (otter) and a Redis hash per identity (L2), plus the Redis
// client factory and health checker.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/bifrost/internal/validation"
)

// DefaultKeyPrefix namespaces dimension hashes in Redis.
// Example: "dimensions:user-42"
const DefaultKeyPrefix = "dimensions:"

// PutResult reports what a Put did to the stored hash.
type PutResult int

const (
	// PutResultUnchanged means the field already held the variant; only the TTL was refreshed.
	PutResultUnchanged PutResult = 0
	// PutResultUpdated means the field was created or changed.
	PutResultUpdated PutResult = 1
)

// DimensionStore defines the persistence operations for dimension tags.
// This interface allows for dependency injection and fakes in tests.
type DimensionStore interface {
	// Put records variant for experiment in the identity's hash and refreshes its TTL.
	Put(ctx context.Context, identity, experiment, variant string) (PutResult, error)

	// Get returns every tag stored for identity. A missing key yields an empty map.
	Get(ctx context.Context, identity string) (map[string]string, error)

	// Delete removes the identity's hash.
	Delete(ctx context.Context, identity string) error
}

// putScript writes one hash field only when it changes and always refreshes the TTL,
// so an unchanged tag costs one round trip and no write amplification.
//
// KEYS[1] = hash key
// ARGV[1] = experiment, ARGV[2] = variant, ARGV[3] = ttl in milliseconds
var putScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], ARGV[1])
local changed = 0
if prev ~= ARGV[2] then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
  changed = 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return changed
`)

// Compile-time check to verify that RedisDimensionStore implements DimensionStore.
var _ DimensionStore = (*RedisDimensionStore)(nil)

// RedisDimensionStore implements DimensionStore with one Redis hash per identity.
type RedisDimensionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDimensionStore wraps an existing client. An empty prefix uses DefaultKeyPrefix.
func NewRedisDimensionStore(client *redis.Client, prefix string, ttl time.Duration) *RedisDimensionStore {
	validation.AssertNotNil(client, "redis client")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisDimensionStore{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key holding the identity's hash.
func (s *RedisDimensionStore) Key(identity string) string {
	return s.prefix + identity
}

// Put executes the conditional write script.
func (s *RedisDimensionStore) Put(ctx context.Context, identity, experiment, variant string) (PutResult, error) {
	ttlMS := strconv.FormatInt(s.ttl.Milliseconds(), 10)

	res, err := putScript.Run(ctx, s.client, []string{s.Key(identity)}, experiment, variant, ttlMS).Int()
	if err != nil {
		return PutResultUnchanged, fmt.Errorf("failed to put dimension %q for %q: %w", experiment, identity, err)
	}
	return PutResult(res), nil
}

// Get reads the whole hash with HGETALL.
func (s *RedisDimensionStore) Get(ctx context.Context, identity string) (map[string]string, error) {
	tags, err := s.client.HGetAll(ctx, s.Key(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dimensions for %q: %w", identity, err)
	}
	return tags, nil
}

// Delete removes the hash.
func (s *RedisDimensionStore) Delete(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, s.Key(identity)).Err(); err != nil {
		return fmt.Errorf("failed to delete dimensions for %q: %w", identity, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisDimensionStore) Close() error {
	return s.client.Close()
}
