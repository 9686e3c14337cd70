// Package clientid resolves a stable, opaque client identity for each
// request. The identity partitions both rate-limit windows and per-user cache
// entries, so resolution must be deterministic: the same caller always maps
// to the same identity, and two different callers never share one.
//
// Precedence: an identity placed in the request context by the auth
// collaborator wins; otherwise the Authorization credential is digested;
// otherwise the client IP is used.
package clientid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

type contextKey struct{}

// WithClientID returns a context carrying the resolved client identity.
// The auth layer calls this after verifying credentials.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the client identity previously stored with WithClientID.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Resolve returns the client identity for a request.
//
// The gateway never interprets credentials itself. When no verified identity
// is in the context but an Authorization header is present, a digest of the
// opaque credential is used so that authenticated callers are tracked per
// credential rather than per IP. Anonymous callers fall back to the first
// X-Forwarded-For hop, then the connection's remote address.
func Resolve(r *http.Request) string {
	if id, ok := FromContext(r.Context()); ok {
		return "user:" + id
	}

	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		return "token:" + digest(auth)
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return "ip:" + ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return "ip:" + host
	}
	if r.RemoteAddr != "" {
		return "ip:" + r.RemoteAddr
	}

	return "unknown"
}

// digest returns a truncated hex SHA-256 of the credential. The digest keeps
// the raw credential out of store keys and log lines.
func digest(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:8])
}
