package cache

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/TaskifaiDavid/bibbi-site/internal/clientid"
	"github.com/TaskifaiDavid/bibbi-site/internal/models"
)

// maxEntryBytes caps the body size the cache will store. Larger responses are
// served live and never cached.
const maxEntryBytes = 1 << 20

// skippedHeaders are never copied into a cache entry: they describe the
// original requester's admission state or the individual exchange, not the
// resource.
var skippedHeaders = []string{
	"X-Ratelimit-Limit",
	"X-Ratelimit-Remaining",
	"X-Ratelimit-Reset",
	"Retry-After",
	"Date",
	"Content-Length",
	"Set-Cookie",
}

// ResponseCache implements the get-or-populate protocol around the wrapped
// handler. The policy and deny-list tables are immutable after construction.
type ResponseCache struct {
	store    Store
	exact    map[string]models.CachePolicy
	prefixes []models.CachePolicy // sorted longest path first
	noStore  []string
	logger   *slog.Logger
}

// NewResponseCache creates a response cache from a validated configuration.
func NewResponseCache(store Store, cfg models.CacheConfig, logger *slog.Logger) *ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}

	exact := make(map[string]models.CachePolicy, len(cfg.Policies))
	prefixes := make([]models.CachePolicy, 0, len(cfg.Policies))
	for _, p := range cfg.Policies {
		exact[p.Path] = p
		prefixes = append(prefixes, p)
	}
	sort.SliceStable(prefixes, func(i, j int) bool {
		return len(prefixes[i].Path) > len(prefixes[j].Path)
	})

	return &ResponseCache{
		store:    store,
		exact:    exact,
		prefixes: prefixes,
		noStore:  append([]string(nil), cfg.NoStore...),
		logger:   logger,
	}
}

// Middleware returns the caching middleware. Only GET requests are ever
// served from or written to the cache; deny-listed paths short-circuit with
// Cache-Control: no-store before any policy lookup.
func (c *ResponseCache) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			path := r.URL.Path

			// The deny-list is checked before any policy lookup: everything
			// under a no-store prefix stays uncached even when a policy
			// names it.
			if c.denied(path) {
				w.Header().Set("Cache-Control", "no-store")
				next.ServeHTTP(w, r)
				return
			}

			policy, ok := c.resolvePolicy(path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			clientID := clientid.Resolve(r)
			key := Key(r, policy, clientID)
			maxAge := int(policy.TTL.Seconds())

			entry, err := c.store.Get(r.Context(), key)
			if err != nil {
				// Backend unavailable: fail open as a miss.
				c.logger.Warn("Cache store unavailable", "path", path, "error", err)
			}

			if entry != nil {
				c.serveHit(w, entry, maxAge)
				return
			}

			c.logger.Debug("Cache miss", "path", path, "cache_key", key)

			// Headers must be in place before the handler writes its own.
			w.Header().Set("X-Cache", "MISS")
			w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))

			rec := newRecorder(w)
			next.ServeHTTP(rec, r)

			// Only successful, bounded responses are stored, and only when
			// the client is still around: a cancelled request may safely
			// skip population.
			if rec.status != http.StatusOK || rec.overflowed || r.Context().Err() != nil {
				return
			}

			if err := c.store.Set(r.Context(), key, rec.entry(), policy.TTL); err != nil {
				c.logger.Warn("Failed to cache response", "path", path, "error", err)
			}
		})
	}
}

// serveHit writes a cached response. Stored headers are replayed first, then
// the cache's own markers.
func (c *ResponseCache) serveHit(w http.ResponseWriter, entry *Entry, maxAge int) {
	for name, values := range entry.Headers {
		w.Header()[name] = values
	}
	w.Header().Set("X-Cache", "HIT")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	w.WriteHeader(entry.StatusCode)
	w.Write(entry.Body)
}

// denied reports whether the path falls under the deny-list. These endpoints
// produce per-call-unique or security-sensitive responses and are never
// cached regardless of policy matches.
func (c *ResponseCache) denied(path string) bool {
	for _, prefix := range c.noStore {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// resolvePolicy returns the cache policy for a path: exact match first, then
// the longest matching prefix. No match means not cacheable.
func (c *ResponseCache) resolvePolicy(path string) (models.CachePolicy, bool) {
	if p, ok := c.exact[path]; ok {
		return p, true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(path, p.Path) {
			return p, true
		}
	}
	return models.CachePolicy{}, false
}

// recorder tees the response through to the client while capturing status,
// headers and body for cache population.
type recorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
	overflowed  bool
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *recorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	if r.body.Len()+len(b) > maxEntryBytes {
		r.overflowed = true
	} else {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

// entry snapshots the recorded response as a cache entry, dropping headers
// that describe the individual exchange rather than the resource.
func (r *recorder) entry() *Entry {
	headers := make(http.Header)
	for name, values := range r.Header() {
		if skipHeader(name) {
			continue
		}
		headers[name] = append([]string(nil), values...)
	}
	// The cache's own markers are recomputed on every response.
	headers.Del("X-Cache")
	headers.Del("Cache-Control")

	return &Entry{
		StatusCode: r.status,
		Headers:    headers,
		Body:       append([]byte(nil), r.body.Bytes()...),
		ExpiresAt:  time.Time{}, // owned by the store
	}
}

func skipHeader(name string) bool {
	for _, skipped := range skippedHeaders {
		if http.CanonicalHeaderKey(name) == skipped {
			return true
		}
	}
	return false
}
