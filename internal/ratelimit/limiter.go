// Package ratelimit provides per-client, per-endpoint rate limiting over a
// sliding time window. Policies are resolved per request path (exact match
// first, then longest prefix, then the default), and the event history lives
// in a WindowStore: in-process for single instances, Redis for shared state
// across replicas. It includes HTTP middleware that sets standard rate limit
// response headers.
package ratelimit

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/TaskifaiDavid/bibbi-site/internal/models"
)

// WindowStore is the counter store behind the limiter. Implementations must
// be safe for concurrent use.
type WindowStore interface {
	// RecordAndCount atomically records an event at now under key and returns
	// the number of events inside the trailing window, including this one.
	// The record-and-count pair must be a single atomic unit with respect to
	// concurrent callers on the same key: the returned count reflects exactly
	// the events durably recorded up to and including this call.
	RecordAndCount(ctx context.Context, key string, window time.Duration, now time.Time) (int, error)

	// Close releases resources and stops background goroutines.
	Close() error
}

// Decision is the outcome of an admission check, carrying everything the
// middleware needs to populate response headers.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Window    time.Duration
}

// Limiter resolves the policy for a request path and consults the window
// store. The policy table is immutable after construction.
type Limiter struct {
	store         WindowStore
	exact         map[string]models.RateLimitPolicy
	prefixes      []models.RateLimitPolicy // sorted longest path first
	defaultPolicy models.RateLimitPolicy
	logger        *slog.Logger
}

// NewLimiter creates a limiter from a validated configuration. Policies are
// indexed for exact lookup and sorted longest-prefix-first; the configuration
// is not consulted again after this call.
func NewLimiter(store WindowStore, cfg models.RateLimitConfig, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}

	exact := make(map[string]models.RateLimitPolicy, len(cfg.Policies))
	prefixes := make([]models.RateLimitPolicy, 0, len(cfg.Policies))
	for _, p := range cfg.Policies {
		exact[p.Path] = p
		prefixes = append(prefixes, p)
	}
	sort.SliceStable(prefixes, func(i, j int) bool {
		return len(prefixes[i].Path) > len(prefixes[j].Path)
	})

	return &Limiter{
		store:    store,
		exact:    exact,
		prefixes: prefixes,
		defaultPolicy: models.RateLimitPolicy{
			Limit:  cfg.DefaultLimit,
			Window: cfg.DefaultWindow,
		},
		logger: logger,
	}
}

// Check decides whether a request from clientID to path is admitted.
//
// A denied request still records its event: abusive clients keep their window
// occupied, and events are never rolled back even if the caller goes away
// mid-check. If the store is unreachable the limiter fails open and admits
// the request with a full remaining quota, logging the degradation.
func (l *Limiter) Check(ctx context.Context, clientID, path string, now time.Time) Decision {
	policy := l.resolvePolicy(path)

	if policy.Limit <= 0 {
		// A zero limit denies unconditionally; nothing to record.
		return Decision{
			Allowed:   false,
			Limit:     0,
			Remaining: 0,
			ResetAt:   now.Add(policy.Window),
			Window:    policy.Window,
		}
	}

	key := clientID + ":" + path
	count, err := l.store.RecordAndCount(ctx, key, policy.Window, now)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			"client_id", clientID,
			"path", path,
			"error", err,
		)
		return Decision{
			Allowed:   true,
			Limit:     policy.Limit,
			Remaining: policy.Limit,
			ResetAt:   now.Add(policy.Window),
			Window:    policy.Window,
		}
	}

	remaining := policy.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= policy.Limit,
		Limit:     policy.Limit,
		Remaining: remaining,
		ResetAt:   now.Add(policy.Window),
		Window:    policy.Window,
	}
}

// resolvePolicy returns the policy for a path: exact match first, then the
// longest matching prefix, then the default.
func (l *Limiter) resolvePolicy(path string) models.RateLimitPolicy {
	if p, ok := l.exact[path]; ok {
		return p
	}
	for _, p := range l.prefixes {
		if strings.HasPrefix(path, p.Path) {
			return p
		}
	}
	return l.defaultPolicy
}
