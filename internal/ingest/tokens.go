// Package ingest pulls provider activities into the athlete's activity set: token handling,
// idempotent persistence, paginated sync and asynchronous dispatch.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/provider"
)

// expiryLeeway refreshes tokens that would expire while a sync is still paging.
const expiryLeeway = time.Minute

// OAuthResolver resolves the token client of a provider.
type OAuthResolver interface {
	OAuthProvider(name string) (provider.OAuthClient, error)
}

// TokenManager guarantees a usable access token before any provider call.
type TokenManager struct {
	connections domain.ConnectionStore
	oauth       OAuthResolver
	now         func() time.Time
	logger      *zap.Logger
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(connections domain.ConnectionStore, oauth OAuthResolver, opts ...Option) *TokenManager {
	o := buildOptions(opts)
	return &TokenManager{connections: connections, oauth: oauth, now: o.now, logger: o.logger}
}

// ValidAccessToken returns a non-expired access token, refreshing it when needed.
func (m *TokenManager) ValidAccessToken(ctx context.Context, athleteID, providerName string) (string, error) {
	conn, err := m.connections.Find(ctx, athleteID, providerName)
	if err != nil {
		return "", err
	}
	if conn == nil || !conn.HasAccessToken() {
		return "", fmt.Errorf("%w: athlete %s, provider %s", domain.ErrTokenMissing, athleteID, providerName)
	}

	now := m.now()
	if !conn.TokenExpired(now.Add(expiryLeeway)) {
		return conn.AccessToken, nil
	}
	if conn.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token stored", domain.ErrTokenExpired)
	}

	client, err := m.oauth.OAuthProvider(providerName)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTokenExpired, err)
	}
	grant, err := client.RefreshToken(ctx, conn.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: refresh failed: %w", domain.ErrTokenExpired, err)
	}

	conn.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		conn.RefreshToken = grant.RefreshToken
	}
	expiresAt := grant.ExpiresAt
	conn.TokenExpiresAt = &expiresAt
	conn.UpdatedAt = now
	if err := m.connections.Upsert(ctx, *conn); err != nil {
		return "", fmt.Errorf("store refreshed token: %w", err)
	}

	m.logger.Info("refreshed provider token",
		zap.String("athlete_id", athleteID),
		zap.String("provider", providerName),
		zap.Time("expires_at", expiresAt))
	return conn.AccessToken, nil
}

// StoreGrant saves credentials obtained from an authorization-code exchange.
func (m *TokenManager) StoreGrant(ctx context.Context, athleteID, providerName, code string) (domain.Connection, error) {
	client, err := m.oauth.OAuthProvider(providerName)
	if err != nil {
		return domain.Connection{}, err
	}
	grant, err := client.ExchangeToken(ctx, code)
	if err != nil {
		return domain.Connection{}, err
	}

	conn, err := m.connections.EnsureFromLegacy(ctx, athleteID, providerName)
	if err != nil {
		return domain.Connection{}, err
	}
	expiresAt := grant.ExpiresAt
	conn.AccessToken = grant.AccessToken
	conn.RefreshToken = grant.RefreshToken
	conn.TokenExpiresAt = &expiresAt
	conn.UpdatedAt = m.now()
	if err := m.connections.Upsert(ctx, conn); err != nil {
		return domain.Connection{}, err
	}
	return conn, nil
}
