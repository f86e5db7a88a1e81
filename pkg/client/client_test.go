package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adobe/aio-tvm/internal/api/middleware"
	"github.com/adobe/aio-tvm/internal/api/presenter"
	"github.com/adobe/aio-tvm/internal/buildinfo"
	"github.com/adobe/aio-tvm/internal/core"
)

func newClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c, err := New(ts.URL, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(middleware.CorrelationIDHeader, "corr-1")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	_, err := New("")
	require.Error(t, err)

	c, err := New("localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/about?a=1", c.url().setPath("/about").addQueryParam("a", 1).build())
}

func TestRequestCredentials(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/credentials/storage", r.URL.Path)
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("uuid:key")), r.Header.Get("Authorization"))
		assert.Equal(t, "Bearer gw", r.Header.Get("x-gw-ims-authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ns1", body["tenant"])
		assert.Equal(t, float64(1800), body["leaseDurationSeconds"])
		assert.Equal(t, "eu-west-1", body["bucketRegion"])

		writeJSON(w, http.StatusOK, map[string]any{"accessKeyId": "AKIA", "expiration": "2030-01-01T00:00:00Z"})
	}, WithAuthToken("admin-session"))

	envelope, correlation, err := c.RequestCredentials(context.Background(), CredentialsRequest{
		Provider:     "storage",
		Tenant:       "ns1",
		Auth:         "uuid:key",
		GatewayToken: "gw",
		LeaseSeconds: 1800,
		Params:       map[string]any{"bucketRegion": "eu-west-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "corr-1", correlation)
	assert.Equal(t, "AKIA", envelope["accessKeyId"])
}

func TestRequestCredentials_Error(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, presenter.ErrorResponse{Error: "namespace ns1 is not approved", CorrelationID: "corr-2"})
	})

	_, _, err := c.RequestCredentials(context.Background(), CredentialsRequest{Provider: "storage", Tenant: "ns1", Auth: "x"})
	var apiErr APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "corr-2", apiErr.CorrelationID)
	assert.Contains(t, apiErr.Message, "not approved")

	_, _, err = c.RequestCredentials(context.Background(), CredentialsRequest{})
	require.ErrorContains(t, err, "provider is required")
}

func TestInfo(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/about", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, buildinfo.GetBuildInfo())
	}, WithAuthToken("admin-session"))

	info, _, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TVM", info.Service)
}

func TestListAudits(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/admin/audits", r.URL.Path)
		assert.Equal(t, "Bearer admin-session", r.Header.Get("Authorization"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "ns1", r.URL.Query().Get("tenant"))
		writeJSON(w, http.StatusOK, []core.AuditEntry{{ID: "a", Tenant: "ns1"}})
	}, WithAuthToken("admin-session"))

	entries, _, err := c.ListAudits(context.Background(), ListAuditsOpts{Limit: 5, Tenant: "ns1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)
}

func TestListAudits_InvalidSession(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, presenter.ErrorResponse{Error: "invalid session token"})
	})

	_, _, err := c.ListAudits(context.Background(), ListAuditsOpts{})
	require.ErrorIs(t, err, ErrInvalidSession)
}
