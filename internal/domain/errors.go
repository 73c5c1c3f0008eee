// Package domain defines the entities, errors and store contracts of the activity sync service.
package domain

import "errors"

var (
	// ErrUnsupportedProvider is returned for provider names that are not allow-listed or registered.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrTokenMissing indicates no connection or an empty access token.
	ErrTokenMissing = errors.New("provider access token missing")
	// ErrTokenExpired indicates the access token expired and could not be refreshed.
	ErrTokenExpired = errors.New("provider access token expired")
	// ErrProviderRequest wraps any failed provider fetch.
	ErrProviderRequest = errors.New("provider request failed")
	// ErrProviderUnauthorized indicates the provider rejected the credential.
	ErrProviderUnauthorized = errors.New("provider rejected credentials")

	ErrConnectionNotFound = errors.New("connection not found")
	ErrSyncRunNotFound    = errors.New("sync run not found")
	ErrSyncRunTerminal    = errors.New("sync run already finished")
	ErrSessionNotFound    = errors.New("planned session not found")
	ErrActivityNotFound   = errors.New("external activity not found")
)

// IsReconnectRequired reports whether err means the athlete must reconnect the provider.
func IsReconnectRequired(err error) bool {
	return errors.Is(err, ErrTokenMissing) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrProviderUnauthorized)
}

// IsRetryable reports whether re-running the same job may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !IsReconnectRequired(err) && !errors.Is(err, ErrUnsupportedProvider)
}
