// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/veritas/pkg/types"
)

// Open builds the Store selected by cfg. The returned close function
// releases any connection and is never nil. The "none" backend returns a
// nil Store, which callers treat as caching disabled.
func Open(ctx context.Context, cfg types.CacheConfig) (Store, func() error, error) {
	noop := func() error { return nil }
	policy := Policy{TTL: cfg.TTL, MaxEntries: cfg.MaxEntries}

	switch cfg.Backend {
	case types.CacheNone:
		return nil, noop, nil
	case types.CacheFile, "":
		s, err := NewFileStore(cfg.Path, policy)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case types.CacheSQLite:
		s, err := NewSQLiteStore(cfg.Path, policy)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case types.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client, cfg.RedisPrefix, policy), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
