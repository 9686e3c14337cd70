package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/TaskifaiDavid/bibbi-site/internal/models"
	"github.com/TaskifaiDavid/bibbi-site/internal/version"
)

// Handlers holds the gateway's own endpoints and the upstream proxy.
type Handlers struct {
	proxy     http.Handler
	redisPing func(ctx context.Context) error // nil when running on in-process stores
	startTime time.Time
}

// NewHandlers creates the handler set. redisPing probes the shared backend
// for the health endpoint and may be nil.
func NewHandlers(proxy http.Handler, redisPing func(ctx context.Context) error) *Handlers {
	return &Handlers{
		proxy:     proxy,
		redisPing: redisPing,
		startTime: time.Now(),
	}
}

// Proxy returns the upstream proxy handler.
func (h *Handlers) Proxy() http.Handler {
	return h.proxy
}

// HealthCheck reports the gateway's own health. A lost Redis backend degrades
// the report but never fails it: both stores run fail-open without it.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := models.NewHealthCheckResponse(models.StatusHealthy)
	resp.Version = version.GetInfo().Version
	resp.Uptime = time.Since(h.startTime).Round(time.Second).String()

	if h.redisPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.redisPing(ctx); err != nil {
			resp.Status = models.StatusDegraded
			resp.AddComponent("redis", models.StatusUnhealthy, err.Error())
		} else {
			resp.AddComponent("redis", models.StatusHealthy, "")
		}
	} else {
		resp.AddComponent("stores", models.StatusHealthy, "in-process")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
