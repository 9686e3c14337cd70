// Package models - API response types shared by the gateway's own endpoints
// and its middleware. Error responses carry machine-readable codes so clients
// can distinguish a rate-limit rejection from an upstream failure.
package models

import (
	"time"
)

// ErrorResponse provides structured error information with debugging context.
type ErrorResponse struct {
	Error      string    `json:"error"`                 // Error type (always "error")
	Message    string    `json:"message"`               // Human-readable error description
	Code       string    `json:"code,omitempty"`        // Machine-readable error code
	RetryAfter int       `json:"retry_after,omitempty"` // Seconds until the client may retry (429 only)
	Timestamp  time.Time `json:"timestamp"`             // Error occurrence time
	RequestID  string    `json:"request_id,omitempty"`  // Unique request identifier
}

// HealthCheckResponse reports the gateway's own health, independent of the
// upstream backend.
type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health status constants.
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusDegraded  = "degraded"  // Partial functionality (e.g. Redis unreachable, running fail-open)
	StatusUnhealthy = "unhealthy" // Major system issues
)

// Standard error codes returned by the gateway.
const (
	ErrorCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED" // 429: Admission denied by the limiter
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeBadGateway         = "BAD_GATEWAY"         // 502: Upstream unreachable
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400: Invalid request data
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Service temporarily down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

// AddComponent records the health of one gateway component (window store,
// cache store, upstream).
func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}
