// ABOUTME: HTTP middleware guarding the admin API with the bridge credentials
// ABOUTME: Rejects with a JSON 401 and stores the Identity in the request context

package auth

import (
	"net/http"
)

// Middleware rejects requests that fail Authenticate with 401 and attaches the
// caller's Identity to the request context otherwise.
func Middleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="onebot-gateway"`)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
