package cache

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/TaskifaiDavid/bibbi-site/internal/models"

	"github.com/cespare/xxhash/v2"
)

// Key derives the deterministic cache key for a request under a policy.
//
// The key covers method, path, the sorted query string, the client identity
// when the policy varies by user, and the values of any configured vary
// headers. Requests that are interchangeable under the policy always produce
// the same key; requests differing in any varying dimension never share one,
// up to the 64-bit hash width (for a cache of a million live entries the
// collision probability is about 3e-8, accepted as a reliability rather than
// a correctness risk).
func Key(r *http.Request, policy models.CachePolicy, clientID string) string {
	var b strings.Builder

	b.WriteString(r.Method)
	b.WriteByte('|')
	b.WriteString(r.URL.Path)
	b.WriteByte('|')
	b.WriteString(canonicalQuery(r))

	if policy.VaryByUser {
		b.WriteString("|user:")
		b.WriteString(clientID)
	}

	for _, header := range policy.VaryHeaders {
		b.WriteByte('|')
		b.WriteString(header)
		b.WriteByte(':')
		b.WriteString(r.Header.Get(header))
	}

	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}

// canonicalQuery renders the query parameters in a stable order so that
// parameter ordering in the URL does not fragment the cache.
func canonicalQuery(r *http.Request) string {
	query := r.URL.Query()
	if len(query) == 0 {
		return ""
	}

	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(name)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}
