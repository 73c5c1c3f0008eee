// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"example.com/activitysync/internal/domain"
)

// EncodeCursor serialises the sync-run cursor to an opaque token.
func EncodeCursor(c *domain.SyncRunCursor) string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%s|%s", c.QueuedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token yields a nil cursor.
func DecodeCursor(token string) (*domain.SyncRunCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	queuedAt, id, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}
	ts, err := time.Parse(time.RFC3339Nano, queuedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	return &domain.SyncRunCursor{QueuedAt: ts, ID: id}, nil
}
