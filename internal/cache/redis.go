// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries as JSON values under a key prefix. TTL maps to
// the Redis key expiry; MaxEntries is not enforced here and is left to the
// server's maxmemory policy.
type RedisStore struct {
	client *redis.Client
	prefix string
	policy Policy
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string, policy Policy) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, policy: policy}
}

// Get returns the entry for key; a missing key is a miss, not an error.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decoding cache entry: %w", err)
	}
	return e, true, nil
}

// Put stores e with the policy TTL as expiry.
func (s *RedisStore) Put(ctx context.Context, key string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, s.policy.TTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
