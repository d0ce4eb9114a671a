package router

import (
	"net/http"
	"strings"
)

const intakeTokenHeader = "X-Intake-Token"
const intakeTokenQuery = "intake_token"

// requireIntakeToken gates public lead intake behind a shared token embedded
// in clinic web forms. When expected is empty, the middleware is a no-op.
func requireIntakeToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(intakeTokenHeader))
			if token == "" {
				token = strings.TrimSpace(r.URL.Query().Get(intakeTokenQuery))
			}
			if token == "" || token != expected {
				http.Error(w, "invalid intake token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
