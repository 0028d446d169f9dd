package auth

import "context"

type contextKey string

const claimsContextKey contextKey = "admin_claims"

// WithClaims returns a copy of ctx carrying the verified claims.
func WithClaims(ctx context.Context, claims *AdminClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the claims attached by the admin guard.
func ClaimsFromContext(ctx context.Context) (*AdminClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*AdminClaims)
	return claims, ok && claims != nil
}
