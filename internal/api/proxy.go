package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/TaskifaiDavid/bibbi-site/internal/models"
)

// NewUpstreamProxy builds the reverse proxy that forwards admitted requests
// to the backend. The gateway never touches request bodies or the backend's
// response semantics; it only decides whether and when the backend is called.
func NewUpstreamProxy(cfg models.UpstreamConfig, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	target, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", cfg.URL, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("Upstream request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		errorResp := models.NewErrorResponse("Upstream service unavailable", models.ErrorCodeBadGateway)
		errorResp.RequestID = r.Header.Get("X-Request-ID")
		json.NewEncoder(w).Encode(errorResp)
	}

	return proxy, nil
}
