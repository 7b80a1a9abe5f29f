// Package middleware provides HTTP middleware for the handoff API.
package middleware

import "net/http"

// CORS returns middleware that admits the configured console origin.
// An empty or wildcard origin admits any caller, which suits local
// development where the console runs on an arbitrary port.
func CORS(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			wildcard := allowedOrigin == "" || allowedOrigin == "*"
			if wildcard || origin == allowedOrigin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				// Credentials only pair with an explicit origin. Echoing an
				// arbitrary origin alongside Allow-Credentials enables CSRF.
				if !wildcard {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
