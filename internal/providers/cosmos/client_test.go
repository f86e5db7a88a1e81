package cosmos

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adobe/aio-tvm/internal/core"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("master-key"))

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, testKey, "db")
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestClient_ReadPermission(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_ = json.NewEncoder(w).Encode(Permission{ID: "permission-1", Token: "token"})
	})

	perm, err := c.ReadPermission(context.Background(), "user-1", "permission-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "token", perm.Token)

	assert.Equal(t, "GET", got.Method)
	assert.Equal(t, "/dbs/db/users/user-1/permissions/permission-1", got.URL.Path)
	assert.Equal(t, "3600", got.Header.Get("x-ms-documentdb-expiry-seconds"))
	assert.Equal(t, apiVersion, got.Header.Get("x-ms-version"))
	assert.Equal(t, "Thu, 01 Jan 2026 00:00:00 GMT", got.Header.Get("x-ms-date"))

	auth, err := url.QueryUnescape(got.Header.Get("Authorization"))
	require.NoError(t, err)
	assert.Equal(t,
		c.authorization("GET", "permissions", "dbs/db/users/user-1/permissions/permission-1", "Thu, 01 Jan 2026 00:00:00 GMT"),
		got.Header.Get("Authorization"))
	assert.Contains(t, auth, "type=master&ver=1.0&sig=")
}

func TestClient_CreateUserAndPermission(t *testing.T) {
	var paths []string
	var bodies []map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusCreated)
		body["_token"] = "created"
		_ = json.NewEncoder(w).Encode(body)
	})
	ctx := context.Background()

	require.NoError(t, c.CreateUser(ctx, "user-1"))
	perm, err := c.CreatePermission(ctx, "user-1", Permission{
		ID:                   "permission-1",
		Mode:                 "All",
		Resource:             c.ContainerLink("coll"),
		ResourcePartitionKey: []string{"pk"},
	}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "created", perm.Token)

	assert.Equal(t, []string{
		"POST /dbs/db/users",
		"POST /dbs/db/users/user-1/permissions",
	}, paths)
	assert.Equal(t, "user-1", bodies[0]["id"])
	assert.Equal(t, "dbs/db/colls/coll", bodies[1]["resource"])
	assert.Equal(t, []any{"pk"}, bodies[1]["resourcePartitionKey"])
}

func TestClient_ErrorsCarryStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NotFound","message":"Entity with the specified id does not exist"}`))
	})

	_, err := c.ReadPermission(context.Background(), "user-1", "permission-1", time.Hour)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
	assert.Contains(t, err.Error(), "Entity with the specified id does not exist")
}

func TestNewClient_InvalidKey(t *testing.T) {
	_, err := NewClient("https://acc.documents.azure.com", "%%%", "db")
	require.Error(t, err)
}
