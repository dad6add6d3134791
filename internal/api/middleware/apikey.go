package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/phrazzld/carouselmaker/internal/api/shared"
)

// Headers checked by RequireKey.
const (
	AdminKeyHeader      = "X-Admin-Key"
	WebhookSecretHeader = "X-Webhook-Secret"
)

// RequireKey rejects requests whose header does not carry key. A missing
// header yields 401 and a wrong value 403. An empty key rejects everything.
func RequireKey(header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" {
				shared.RespondWithError(w, r, http.StatusUnauthorized, header+" header required")
				return
			}
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				shared.RespondWithError(w, r, http.StatusForbidden, "Invalid credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
