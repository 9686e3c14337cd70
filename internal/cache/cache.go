// Package cache provides TTL-bounded response caching for GET endpoints.
// A policy table maps paths (exact or prefix) to a TTL and the dimensions the
// cache key varies by; entries live in a Store, either an in-process bounded
// map or a shared Redis backend with native expiry. The middleware wraps the
// rest of the pipeline with a get-or-populate protocol and tags every
// policy-matched response with X-Cache and Cache-Control headers.
package cache

import (
	"context"
	"net/http"
	"time"
)

// Entry is one cached response. Entries are immutable once stored; a newer
// response for the same key simply replaces the old entry.
type Entry struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// Expired reports whether the entry's lifetime has passed at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Store is a key-value store with TTL expiry. Implementations must be safe
// for concurrent use. Get returns (nil, nil) on a miss; an expired entry is a
// miss and must be removed so memory is reclaimed without a background sweep.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}
