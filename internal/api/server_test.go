package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adobe/aio-tvm/internal/api/middleware"
	"github.com/adobe/aio-tvm/internal/audit"
	"github.com/adobe/aio-tvm/internal/buildinfo"
	"github.com/adobe/aio-tvm/internal/core"
	"github.com/adobe/aio-tvm/internal/metrics"
	"github.com/adobe/aio-tvm/internal/service"
)

var signingKey = []byte("test-signing-key")

type allowIdentity struct{}

func (allowIdentity) Validate(context.Context, string, string, string) error { return nil }

type echoGenerator struct{}

func (echoGenerator) Type() string { return "echo" }

func (echoGenerator) Fields() []core.Field { return nil }

func (echoGenerator) Generate(_ context.Context, req *core.ValidatedRequest) (core.Envelope, error) {
	return map[string]any{
		"tenant":     req.Tenant,
		"expiration": core.ExpiresAt(time.Now(), req.Lease),
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *audit.InMemoryAuditor) {
	t.Helper()
	auditor := audit.NewInMemoryAuditor(0)
	rec := metrics.NewRecorder()

	p, err := service.New("echo", echoGenerator{}, service.Dependencies{
		Identity: allowIdentity{},
		Metrics:  rec,
		Auditor:  auditor,
	}, service.Settings{
		LeaseMinSeconds: 900,
		LeaseMaxSeconds: 18000,
		Final: map[string]any{
			core.ParamAllowList:       "ns1",
			core.ParamIdentityAPIHost: "https://identity.example.com",
		},
		Defaults: map[string]any{core.ParamLeaseDuration: 3600},
	})
	require.NoError(t, err)

	srv := NewServer(map[string]*service.Pipeline{"echo": p}, auditor, rec.Handler())
	ts := httptest.NewServer(srv.Routes(signingKey))
	t.Cleanup(ts.Close)
	return ts, auditor
}

func do(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func basicAuth() map[string]string {
	return map[string]string{"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte("uuid:key"))}
}

func adminToken(t *testing.T, roles []string, key []byte) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "operator",
		"roles": roles,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestCredentials(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("query params", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/v1/credentials/echo?tenant=ns1", "", basicAuth())
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ns1", body["tenant"])
		assert.NotEmpty(t, resp.Header.Get(middleware.CorrelationIDHeader))
	})

	t.Run("json body", func(t *testing.T) {
		resp, body := do(t, http.MethodPost, ts.URL+"/v1/credentials/echo",
			`{"tenant":"ns1","leaseDurationSeconds":1800}`, basicAuth())
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ns1", body["tenant"])
	})

	t.Run("not approved", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/v1/credentials/echo?tenant=ns2", "", basicAuth())
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Contains(t, body["error"], "not approved")
		assert.Equal(t, resp.Header.Get(middleware.CorrelationIDHeader), body["correlation_id"])
	})

	t.Run("missing authorization", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, ts.URL+"/v1/credentials/echo?tenant=ns1", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid body", func(t *testing.T) {
		resp, _ := do(t, http.MethodPost, ts.URL+"/v1/credentials/echo", `[1,2]`, basicAuth())
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown provider", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, ts.URL+"/v1/credentials/nope?tenant=ns1", "", basicAuth())
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, body["error"], "nope")
	})

	t.Run("correlation id is propagated", func(t *testing.T) {
		headers := basicAuth()
		headers[middleware.CorrelationIDHeader] = "corr-42"
		resp, _ := do(t, http.MethodGet, ts.URL+"/v1/credentials/echo?tenant=ns1", "", headers)
		assert.Equal(t, "corr-42", resp.Header.Get(middleware.CorrelationIDHeader))
	})
}

func TestPublicRoutes(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + HealthCheckRoute)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodGet, ts.URL+AboutRoute, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, buildinfo.GetBuildInfo().Service, body["service"])

	_, _ = do(t, http.MethodGet, ts.URL+"/v1/credentials/echo?tenant=ns1", "", basicAuth())
	_, _ = do(t, http.MethodGet, ts.URL+"/v1/credentials/echo?tenant=junk-tenant-42", "", nil)
	resp, err = http.Get(ts.URL + MetricsRoute)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `tvm_request_count{tenant="ns1"}`)
	assert.Contains(t, string(raw), `tvm_user_error_count{status="401",tenant="unknown"} 1`)
	assert.NotContains(t, string(raw), "junk-tenant-42")
}

func TestAdminAudits(t *testing.T) {
	ts, auditor := newTestServer(t)
	require.NoError(t, auditor.Log(core.AuditEntry{ID: "a", Tenant: "ns1", Provider: "echo"}))
	require.NoError(t, auditor.Log(core.AuditEntry{ID: "b", Tenant: "ns2", Provider: "echo"}))

	url := ts.URL + ListAuditsRoute

	t.Run("no token", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, url, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong key", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, url, "", map[string]string{
			"Authorization": "Bearer " + adminToken(t, []string{"admin"}, []byte("other")),
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing role", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, url, "", map[string]string{
			"Authorization": "Bearer " + adminToken(t, []string{"reader"}, signingKey),
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	auth := map[string]string{"Authorization": "Bearer " + adminToken(t, []string{"admin"}, signingKey)}

	t.Run("recent", func(t *testing.T) {
		entries := listAudits(t, url+"?limit=1", auth)
		require.Len(t, entries, 1)
		assert.Equal(t, "b", entries[0].ID)
	})

	t.Run("filtered", func(t *testing.T) {
		entries := listAudits(t, url+"?tenant=ns1", auth)
		require.Len(t, entries, 1)
		assert.Equal(t, "a", entries[0].ID)
	})

	t.Run("invalid limit", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, url+"?limit=abc", "", auth)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAdminRoutesDisabledWithoutKey(t *testing.T) {
	srv := NewServer(nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Routes(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ListAuditsRoute, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func listAudits(t *testing.T, url string, headers map[string]string) []core.AuditEntry {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []core.AuditEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	return entries
}
