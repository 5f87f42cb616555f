// Package auth authenticates protocol bridges and admin API callers.
//
// # Credentials
//
// A bridge opening the reverse WebSocket presents either
//
//   - an Authorization: Bearer <token> header, or
//   - an access_token query parameter on the upgrade URL.
//
// When the header is present it decides the outcome and the query parameter
// is ignored. The credential is compared in constant time against the
// configured server.access_token.
//
// # Signed tokens
//
// When auth.jwt_secret is set, HS256 JWTs are accepted as well. The "sub"
// claim becomes the Identity subject, so several bridges or operators can be
// told apart in logs and the audit ledger:
//
//	verifier, err := auth.NewJWTVerifier([]byte(secret))
//	token, err := verifier.Generate("bridge-eu-1", 30*24*time.Hour)
//
// # Admin API
//
// Middleware wraps the admin routes with the same Authenticator, storing the
// caller's Identity in the request context (see FromContext).
package auth
