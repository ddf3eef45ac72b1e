package middleware

import (
	"net/http"
	"strings"

	"simplane/internal/auth"
)

// RequireInternalAuth middleware ensures the request carries the monitor's
// bearer token. With an empty secret every request is refused.
func RequireInternalAuth(systemSecret string) func(http.Handler) http.Handler {
	var expected string
	if strings.TrimSpace(systemSecret) != "" {
		expected = auth.HashToken(systemSecret)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				http.Error(w, "Internal API disabled", http.StatusForbidden)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			if !auth.TokenMatches(parts[1], expected) {
				http.Error(w, "Invalid authorization token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
