package auth

import "context"

type identityContextKey struct{}
type sessionTokenContextKey struct{}

// ContextWithIdentity attaches the resolved identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached to ctx, or Anonymous.
func IdentityFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Anonymous()
	}
	v, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok {
		return Anonymous()
	}
	return v
}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	return IdentityFromContext(ctx).UserID()
}

// ContextWithSessionToken stores the raw session cookie value inside the context.
func ContextWithSessionToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionTokenContextKey{}, token)
}

// SessionTokenFromContext returns the session cookie value if it was previously attached.
func SessionTokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(sessionTokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
