package main

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// bearerAuth rejects requests without one of the configured API tokens.
// With no tokens configured every request passes.
func bearerAuth(tokens []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(tokens) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || !validToken(tokens, strings.TrimSpace(token)) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="cstt"`)
				respondError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validToken(tokens []string, candidate string) bool {
	if candidate == "" {
		return false
	}
	found := 0
	for _, t := range tokens {
		found |= subtle.ConstantTimeCompare([]byte(t), []byte(candidate))
	}
	return found == 1
}
