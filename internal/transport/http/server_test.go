package httptransport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerRecordsServerErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RequestLogger(zap.New(core), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/ok", "/boom"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	require.Equal(t, "/boom", entries[1].ContextMap()["path"])
}

func TestMetricsServerExposesRegistry(t *testing.T) {
	srv := NewMetricsServer(":0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
