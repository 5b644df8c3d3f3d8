// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache stores successful upstream search responses keyed by a
// deterministic request signature. Entries are written only after a
// successful fetch; eviction follows a configurable Policy.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Entry is a cached upstream response.
type Entry struct {
	Body        []byte    `json:"body"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Store is a response cache. Get reports a miss with ok=false and a nil
// error. Put for an existing key replaces it (last write wins).
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
}

// Policy controls eviction. The zero Policy never evicts.
type Policy struct {
	// TTL expires entries older than this. Zero disables expiry.
	TTL time.Duration

	// MaxEntries evicts the oldest entries beyond this count. Zero is unbounded.
	MaxEntries int
}

// Expired reports whether e is past the policy TTL at now.
func (p Policy) Expired(e Entry, now time.Time) bool {
	return p.TTL > 0 && now.Sub(e.RetrievedAt) > p.TTL
}

// Signature derives the cache key for a request to endpoint with params.
// Parameter names are lower-cased, values are whitespace-collapsed, and both
// are sorted, so logically identical requests share a key regardless of
// parameter order or spacing.
func Signature(endpoint string, params url.Values) string {
	keys := make([]string, 0, len(params))
	norm := make(map[string][]string, len(params))
	for k, vs := range params {
		lk := strings.ToLower(strings.TrimSpace(k))
		if _, seen := norm[lk]; !seen {
			keys = append(keys, lk)
		}
		for _, v := range vs {
			norm[lk] = append(norm[lk], strings.Join(strings.Fields(v), " "))
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.TrimRight(strings.TrimSpace(endpoint), "/"))
	for _, k := range keys {
		vs := norm[k]
		sort.Strings(vs)
		for _, v := range vs {
			b.WriteByte('\n')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
