package ratelimit

import (
	"net/http"
	"strings"
)

// ClientKey derives the client identifier for rate limiting: the first
// value of X-Forwarded-For, then X-Real-IP, then the literal "unknown".
// Clients with neither header share one quota bucket; that coarsening is
// intentional.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return "unknown"
}

// Key joins a scope and a client identifier into a store key. Keys are
// case-sensitive; uniqueness is per (scope, client) pair.
func Key(scope, client string) string {
	return scope + ":" + client
}
