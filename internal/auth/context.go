// ABOUTME: Request identity carried through handlers via context
// ABOUTME: Set by the authenticator middleware, read by admin handlers and logs

package auth

import "context"

// Method records how a caller authenticated.
type Method string

const (
	MethodNone        Method = "none"
	MethodAccessToken Method = "access_token"
	MethodJWT         Method = "jwt"
)

// Identity is the authenticated caller of an upgrade or admin request.
type Identity struct {
	Subject string
	Method  Method
}

type identityKey struct{}

// WithIdentity returns a new context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
