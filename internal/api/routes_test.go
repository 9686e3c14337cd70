package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaskifaiDavid/bibbi-site/internal/cache"
	"github.com/TaskifaiDavid/bibbi-site/internal/models"
	"github.com/TaskifaiDavid/bibbi-site/internal/ratelimit"
)

// newTestGateway wires the full pipeline against a live httptest upstream,
// the way main does it, and returns the router plus the upstream call count.
func newTestGateway(t *testing.T) (*mux.Router, *atomic.Int64) {
	t.Helper()

	var upstreamCalls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"source":"upstream","path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(upstream.Close)

	proxy, err := NewUpstreamProxy(models.UpstreamConfig{URL: upstream.URL, Timeout: 5 * time.Second}, slog.Default())
	require.NoError(t, err)

	windowStore := ratelimit.NewMemoryWindowStore(5 * time.Minute)
	t.Cleanup(func() { windowStore.Close() })
	limiter := ratelimit.NewLimiter(windowStore, models.RateLimitConfig{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		Policies: []models.RateLimitPolicy{
			{Path: "/api/chat", Limit: 3, Window: time.Minute},
			{Path: "/api/dashboards", Limit: 5, Window: time.Minute},
		},
	}, slog.Default())

	cacheStore := cache.NewMemoryStore(100)
	t.Cleanup(func() { cacheStore.Close() })
	responseCache := cache.NewResponseCache(cacheStore, models.CacheConfig{
		Enabled: true,
		MaxSize: 100,
		NoStore: []string{"/api/chat"},
		Policies: []models.CachePolicy{
			{Path: "/api/dashboards", TTL: time.Minute, VaryByUser: true},
		},
	}, slog.Default())

	handlers := NewHandlers(proxy, nil)
	router, err := SetupRoutes(handlers, responseCache, limiter)
	require.NoError(t, err)
	return router, &upstreamCalls
}

func doGet(router http.Handler, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGateway_ProxiesToUpstream(t *testing.T) {
	router, upstreamCalls := newTestGateway(t)

	rr := doGet(router, "/api/other", "10.0.0.1:1000")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"source":"upstream","path":"/api/other"}`, rr.Body.String())
	assert.Equal(t, int64(1), upstreamCalls.Load())

	// The whole pipeline decorates proxied responses.
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "100", rr.Header().Get("X-RateLimit-Limit"))
}

func TestGateway_HealthServedLocally(t *testing.T) {
	router, upstreamCalls := newTestGateway(t)

	rr := doGet(router, "/health", "10.0.0.1:1000")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp models.HealthCheckResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, models.StatusHealthy, resp.Status)
	assert.Equal(t, int64(0), upstreamCalls.Load(), "the health endpoint never reaches the upstream")
}

func TestGateway_CacheHitConsumesNoQuota(t *testing.T) {
	router, upstreamCalls := newTestGateway(t)

	// Policy: /api/dashboards limit 5. A miss populates the cache and uses
	// one unit of quota.
	first := doGet(router, "/api/dashboards", "10.0.0.1:1000")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "4", first.Header().Get("X-RateLimit-Remaining"))

	// Hits are answered before the limiter: remaining stays where it was and
	// the upstream is not called again, no matter how many hits arrive.
	for i := 0; i < 20; i++ {
		rr := doGet(router, "/api/dashboards", "10.0.0.1:1000")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))
		assert.Empty(t, rr.Header().Get("X-RateLimit-Remaining"))
	}
	assert.Equal(t, int64(1), upstreamCalls.Load())
}

func TestGateway_RateLimitedPathDenies(t *testing.T) {
	router, upstreamCalls := newTestGateway(t)

	for i := 0; i < 3; i++ {
		rr := doGet(router, "/api/chat", "10.0.0.1:1000")
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := doGet(router, "/api/chat", "10.0.0.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, int64(3), upstreamCalls.Load(), "denied requests never reach the upstream")

	// Security headers apply to denials too.
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestGateway_DenyListedPathNotCached(t *testing.T) {
	router, upstreamCalls := newTestGateway(t)

	for i := 0; i < 2; i++ {
		rr := doGet(router, "/api/chat", "10.0.0.2:1000")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	}
	assert.Equal(t, int64(2), upstreamCalls.Load(), "no-store paths hit the upstream every time")
}

func TestGateway_UpstreamDown(t *testing.T) {
	proxy, err := NewUpstreamProxy(models.UpstreamConfig{URL: "http://127.0.0.1:1", Timeout: time.Second}, slog.Default())
	require.NoError(t, err)

	router, err := SetupRoutes(NewHandlers(proxy, nil), nil, nil)
	require.NoError(t, err)

	rr := doGet(router, "/api/other", "10.0.0.1:1000")

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, models.ErrorCodeBadGateway, errResp.Code)
	assert.NotEmpty(t, errResp.RequestID)
}
