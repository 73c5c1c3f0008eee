package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/auth"
	"example.com/activitysync/internal/config"
	"example.com/activitysync/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommandIssuesParseableToken(t *testing.T) {
	out, err := execute(t, "token", "--athlete", "athlete-7", "--scope", auth.ScopeSyncRead)
	require.NoError(t, err)

	cfg := config.FromViper(config.New())
	claims, err := auth.Parse(strings.TrimSpace(out), auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	require.NoError(t, err)
	require.Equal(t, "athlete-7", claims.AthleteID)
	require.True(t, claims.HasScope(auth.ScopeSyncRead))
	require.False(t, claims.HasScope(auth.ScopeSyncWrite))
}

func TestDispatchValidatesInput(t *testing.T) {
	_, err := execute(t, "dispatch", "--storage", "memory")
	require.ErrorContains(t, err, "athlete")

	_, err = execute(t, "dispatch", "--storage", "memory", "--athlete", "a1", "--after", "yesterday")
	require.ErrorContains(t, err, "RFC3339")

	// A fresh memory store has no credentials for the athlete.
	_, err = execute(t, "dispatch", "--storage", "memory", "--athlete", "a1")
	require.ErrorIs(t, err, domain.ErrTokenMissing)
}

func TestUnknownStorageIsRejected(t *testing.T) {
	_, err := execute(t, "autolink", "--storage", "sqlite", "--athlete", "a1")
	require.ErrorContains(t, err, "unknown storage")
}
