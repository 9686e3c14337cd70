package api

import (
	"fmt"
	"net/http"

	"github.com/TaskifaiDavid/bibbi-site/internal/cache"
	"github.com/TaskifaiDavid/bibbi-site/internal/ratelimit"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health"
			}),
		))
	}
}

// SetupRoutes configures the admission-control pipeline around the upstream
// proxy. The middleware order is a correctness property, outermost first:
// security headers, compression, response cache, rate limiter, recovery.
// The cache answers hits before the limiter runs, so a cache hit consumes no
// rate-limit quota; recovery sits innermost so no panic from the proxy or
// handlers escapes with headers half-written.
func SetupRoutes(handlers *Handlers, responseCache *cache.ResponseCache, limiter *ratelimit.Limiter, opts ...RouteOption) (*mux.Router, error) {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(securityHeadersMiddleware)

	compression, err := compressionMiddleware()
	if err != nil {
		return nil, fmt.Errorf("failed to build compression middleware: %w", err)
	}
	router.Use(compression)

	if responseCache != nil {
		router.Use(responseCache.Middleware())
	}
	if limiter != nil {
		router.Use(ratelimit.Middleware(limiter))
	}
	router.Use(recoveryMiddleware)

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.PathPrefix("/").Handler(handlers.Proxy())

	return router, nil
}
