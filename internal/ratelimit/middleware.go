package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/TaskifaiDavid/bibbi-site/internal/clientid"
	"github.com/TaskifaiDavid/bibbi-site/internal/models"
)

// Middleware returns HTTP middleware that enforces rate limits. Every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; denied requests additionally get Retry-After and a
// structured 429 body. Denials are logged at warning level for abuse
// monitoring, never as errors.
func Middleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientid.Resolve(r)

			dec := limiter.Check(r.Context(), clientID, r.URL.Path, time.Now())

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", dec.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", dec.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", dec.ResetAt.Unix()))

			if !dec.Allowed {
				retryAfterSecs := int(dec.Window.Seconds())
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				errorResp := models.NewErrorResponse(
					fmt.Sprintf("Too many requests. Limit: %d per %d seconds", dec.Limit, retryAfterSecs),
					models.ErrorCodeRateLimitExceeded,
				)
				errorResp.RetryAfter = retryAfterSecs
				json.NewEncoder(w).Encode(errorResp)

				slog.Warn("Rate limit exceeded",
					"client_id", clientID,
					"path", r.URL.Path,
					"limit", dec.Limit,
					"window", dec.Window,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
