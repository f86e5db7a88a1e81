package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashTenant(t *testing.T) {
	h := HashTenant("ns1")
	assert.Len(t, h, 32)
	assert.Equal(t, h, HashTenant("ns1"))
	assert.NotEqual(t, h, HashTenant("ns2"))
	assert.NotContains(t, h, "ns1")
}

func TestNewValidatedRequest(t *testing.T) {
	req, err := NewValidatedRequest(map[string]any{
		ParamTenant:          "ns1",
		ParamAuthorization:   "uuid:key",
		ParamLeaseDuration:   3600,
		ParamAllowList:       "*",
		ParamIdentityAPIHost: "https://identity.example.com",
		"extra":              "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "ns1", req.Tenant)
	assert.Equal(t, "uuid:key", req.Credential)
	assert.Equal(t, time.Hour, req.Lease)
	assert.Equal(t, "", req.DenyListURL)
	assert.Equal(t, "x", req.Params["extra"])

	_, err = NewValidatedRequest(map[string]any{ParamLeaseDuration: "soon"})
	require.Error(t, err)
}

func TestValidatedRequest_WithTenant(t *testing.T) {
	req := &ValidatedRequest{Tenant: "admin", Params: map[string]any{ParamTenant: "admin", "k": "v"}}
	scoped := req.WithTenant("ns1")

	assert.Equal(t, "ns1", scoped.Tenant)
	assert.Equal(t, "ns1", scoped.Params[ParamTenant])
	assert.Equal(t, "v", scoped.Params["k"])

	// the original is untouched
	assert.Equal(t, "admin", req.Tenant)
	assert.Equal(t, "admin", req.Params[ParamTenant])
}

func TestDecodeParams(t *testing.T) {
	var out struct {
		Account string `mapstructure:"account"`
		Expiry  int    `mapstructure:"expiry"`
	}
	require.NoError(t, DecodeParams(map[string]any{"account": "acc", "expiry": "60", "other": 1}, &out))
	assert.Equal(t, "acc", out.Account)
	assert.Equal(t, 60, out.Expiry)
}

func TestUpstreamCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", UpstreamError(404, errors.New("gone"), "read failed"))
	code, ok := UpstreamCode(err)
	assert.True(t, ok)
	assert.Equal(t, 404, code)
	assert.True(t, IsNotFound(err))

	_, ok = UpstreamCode(ServerError(err, "generation failed"))
	assert.False(t, ok, "the outermost classification wins")

	assert.True(t, IsNotFound(fmt.Errorf("bucket: %w", ErrNotFound)))
	assert.False(t, IsNotFound(UpstreamError(409, nil, "conflict")))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "namespace ns1 is not approved", AuthorizationError("namespace %s is not approved", "ns1").Error())
	assert.Equal(t, "identity backend error: boom", UpstreamError(0, errors.New("boom"), "identity backend error").Error())
}
