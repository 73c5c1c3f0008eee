package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	writer := &Claims{AthleteID: "athlete-1", Scopes: map[string]struct{}{ScopeSyncWrite: {}}}

	_, err := Authorize(context.Background(), ScopeSyncWrite)
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = Authorize(WithClaims(context.Background(), nil), ScopeSyncWrite)
	require.ErrorIs(t, err, ErrMissingToken)

	anonymous := &Claims{Scopes: writer.Scopes}
	_, err = Authorize(WithClaims(context.Background(), anonymous), ScopeSyncWrite)
	require.ErrorIs(t, err, ErrMissingToken)

	ctx := WithClaims(context.Background(), writer)
	_, err = Authorize(ctx, ScopeSyncRead)
	require.ErrorIs(t, err, ErrForbidden)

	claims, err := Authorize(ctx, ScopeSyncWrite)
	require.NoError(t, err)
	require.Same(t, writer, claims)
}

func TestClaimsKeyDoesNotCollideWithStrings(t *testing.T) {
	ctx := context.WithValue(context.Background(), "activity-sync-auth-claims", &Claims{AthleteID: "spoofed"})
	_, ok := FromContext(ctx)
	require.False(t, ok)
}
