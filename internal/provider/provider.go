// Package provider defines the contracts for third-party fitness providers and a registry
// resolving them by name.
package provider

import (
	"context"
	"time"

	"example.com/activitysync/internal/domain"
)

// FetchParams selects one page of activities started after After.
type FetchParams struct {
	After   time.Time
	Page    int
	PerPage int
}

// Client lists activities from a provider.
type Client interface {
	FetchActivities(ctx context.Context, accessToken string, params FetchParams) ([]domain.NormalizedActivity, error)
}

// SingleActivityFetcher is implemented by clients able to fetch one activity by its provider id.
type SingleActivityFetcher interface {
	FetchActivity(ctx context.Context, accessToken, externalID string) (domain.NormalizedActivity, error)
}

// OAuthClient exchanges and refreshes provider credentials.
type OAuthClient interface {
	ExchangeToken(ctx context.Context, code string) (domain.TokenGrant, error)
	RefreshToken(ctx context.Context, refreshToken string) (domain.TokenGrant, error)
}
