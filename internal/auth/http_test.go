// ABOUTME: Tests for the admin API authentication middleware
// ABOUTME: Verifies 401 responses and identity propagation into handlers

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware_Rejects(t *testing.T) {
	called := false
	handler := Middleware(NewAuthenticator("s3cret", nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("Bearer wrong", ""))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler ran for unauthorized request")
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
}

func TestMiddleware_AttachesIdentity(t *testing.T) {
	var got *Identity
	handler := Middleware(NewAuthenticator("s3cret", nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("Bearer s3cret", ""))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got == nil || got.Method != MethodAccessToken {
		t.Errorf("identity = %+v, want access_token", got)
	}
}
