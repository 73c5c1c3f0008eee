package auth

import "context"

type claimsKey struct{}

// WithClaims attaches the caller's claims to ctx. Nil claims leave ctx unchanged.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the claims attached by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// Authorize returns the caller's claims when they carry scope. It fails with ErrMissingToken
// when no athlete is attached to ctx and with ErrForbidden when the scope is absent.
func Authorize(ctx context.Context, scope string) (*Claims, error) {
	claims, ok := FromContext(ctx)
	if !ok || claims.AthleteID == "" {
		return nil, ErrMissingToken
	}
	if !claims.HasScope(scope) {
		return nil, ErrForbidden
	}
	return claims, nil
}
