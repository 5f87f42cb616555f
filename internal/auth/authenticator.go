// ABOUTME: Credential check for WebSocket upgrades and admin API requests
// ABOUTME: Bearer header first, access_token query second, constant-time compare

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned for missing or mismatched credentials.
var ErrUnauthorized = errors.New("unauthorized")

// AccessTokenParam is the query parameter bridges use when they cannot set headers.
const AccessTokenParam = "access_token"

// Authenticator checks request credentials against a static access token and,
// optionally, HS256 JWTs. With neither configured every request is accepted.
type Authenticator struct {
	token    string
	verifier TokenVerifier
}

// NewAuthenticator creates an Authenticator. Either argument may be empty.
func NewAuthenticator(accessToken string, verifier TokenVerifier) *Authenticator {
	return &Authenticator{token: accessToken, verifier: verifier}
}

// Enabled reports whether requests must carry credentials.
func (a *Authenticator) Enabled() bool {
	return a != nil && (a.token != "" || a.verifier != nil)
}

// Authenticate checks r. When an Authorization header with the Bearer scheme
// is present it alone decides the outcome; otherwise the access_token query
// parameter is used.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	if !a.Enabled() {
		return &Identity{Method: MethodNone}, nil
	}

	credential := credentialFrom(r)
	if credential == "" {
		return nil, fmt.Errorf("%w: missing credentials", ErrUnauthorized)
	}

	if a.token != "" && subtle.ConstantTimeCompare([]byte(credential), []byte(a.token)) == 1 {
		return &Identity{Subject: "access_token", Method: MethodAccessToken}, nil
	}

	if a.verifier != nil {
		sub, err := a.verifier.Verify(credential)
		if err == nil {
			return &Identity{Subject: sub, Method: MethodJWT}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	return nil, fmt.Errorf("%w: token mismatch", ErrUnauthorized)
}

func credentialFrom(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get(AccessTokenParam)
}

// bearerToken extracts the token from a Bearer authorization header. The
// scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
