package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "test-issuer"}

func TestParseIssuedToken(t *testing.T) {
	token, err := Issue(testConfig, "athlete-1", []string{ScopeSyncRead, ScopeSyncWrite}, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "athlete-1", claims.AthleteID)
	require.True(t, claims.HasScope(ScopeSyncWrite))
	require.True(t, claims.HasScope(ScopeSyncRead))
	require.False(t, claims.HasScope("admin"))
}

func TestParseRejectsBadTokens(t *testing.T) {
	wrongIssuer, err := Issue(Config{Secret: testConfig.Secret, Issuer: "other"}, "athlete-1", nil, time.Hour)
	require.NoError(t, err)
	wrongSecret, err := Issue(Config{Secret: "nope", Issuer: testConfig.Issuer}, "athlete-1", nil, time.Hour)
	require.NoError(t, err)
	expired, err := Issue(testConfig, "athlete-1", nil, -time.Minute)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testConfig.Issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	cases := map[string]string{
		"wrong issuer": wrongIssuer,
		"wrong secret": wrongSecret,
		"expired":      expired,
		"no subject":   noSubject,
		"garbage":      "abc.def.ghi",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddlewareAndScopes(t *testing.T) {
	var seen *Claims
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig, func(r *http.Request) bool { return r.URL.Path == "/healthz" }).
		Wrap(RequireScope(ScopeSyncWrite, inner))

	readOnly, err := Issue(testConfig, "athlete-1", []string{ScopeSyncRead}, time.Hour)
	require.NoError(t, err)
	writer, err := Issue(testConfig, "athlete-1", []string{ScopeSyncWrite}, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"missing scope", "Bearer " + readOnly, http.StatusForbidden},
		{"authorized", "bearer " + writer, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/connections/strava/sync", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
		})
	}
	require.Equal(t, "athlete-1", seen.AthleteID)
}
