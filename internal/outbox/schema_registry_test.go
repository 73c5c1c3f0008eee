package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaReturnsExistingVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/subjects/sync_requests-value/versions/latest", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":11}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL+"/").EnsureSchema(context.Background(), "sync_requests-value", syncRequestedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
}

func TestEnsureSchemaRegistersMissingSubject(t *testing.T) {
	var registered map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.Equal(t, "/subjects/sync_events-value/versions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
		_, _ = w.Write([]byte(`{"id":12}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "sync_events-value", syncCompletedSchema)
	require.NoError(t, err)
	require.Equal(t, 12, id)
	require.Equal(t, "JSON", registered["schemaType"])
}

func TestEnsureSchemaSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	require.ErrorContains(t, err, "500")
}
