package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaReturnsExistingID(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		require.Equal(t, "application/vnd.schemaregistry.v1+json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "JSON", body["schemaType"])

		_, _ = w.Write([]byte(`{"subject":"activity_events-value","id":17,"version":1}`))
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "activity_events-value", activityLoggedSchema)
	require.NoError(t, err)
	require.Equal(t, 17, id)
	require.Equal(t, []string{"/subjects/activity_events-value"}, paths)
}

func TestEnsureSchemaRegistersWhenMissing(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/subjects/activity_events-value" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error_code":40401,"message":"Subject not found."}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":23}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "activity_events-value", activityLoggedSchema)
	require.NoError(t, err)
	require.Equal(t, 23, id)
	require.Equal(t, []string{"/subjects/activity_events-value", "/subjects/activity_events-value/versions"}, paths)
}

func TestEnsureSchemaSurfacesRegistryErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_code":42201,"message":"Invalid schema"}`))
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "activity_events-value", "{")
	require.ErrorContains(t, err, "schema registry lookup error (status 422)")
}
