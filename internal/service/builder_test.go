package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adobe/aio-tvm/internal/config"
	"github.com/adobe/aio-tvm/internal/core"
	"github.com/adobe/aio-tvm/internal/denylist"
	"github.com/adobe/aio-tvm/internal/issuers"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Identity:     config.IdentityConfig{APIHost: "https://identity.example.com"},
		ApprovedList: "*",
		DenyList:     config.DenyListConfig{URL: "https://deny.example.com/list.json"},
		Providers: []config.ProviderConfig{{
			Name:     "storage",
			Type:     "fake",
			Params:   map[string]any{"secretKey": "s3cr3t"},
			Defaults: map[string]any{"leaseDurationSeconds": 7200},
		}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestSettingsFor(t *testing.T) {
	cfg := testConfig()
	s := SettingsFor(cfg, cfg.Providers[0])

	assert.Equal(t, config.DefaultLeaseMinSeconds, s.LeaseMinSeconds)
	assert.Equal(t, config.DefaultLeaseMaxSeconds, s.LeaseMaxSeconds)
	assert.Equal(t, "*", s.Final[core.ParamAllowList])
	assert.Equal(t, "https://identity.example.com", s.Final[core.ParamIdentityAPIHost])
	assert.Equal(t, "https://deny.example.com/list.json", s.Final[core.ParamDenyListURL])
	assert.Equal(t, "s3cr3t", s.Final["secretKey"])
	assert.Equal(t, 7200, s.Defaults[core.ParamLeaseDuration])
}

func TestNewDependencies(t *testing.T) {
	cfg := testConfig()
	deps := NewDependencies(cfg, nil, nil)
	assert.Nil(t, deps.Gateway)
	assert.IsType(t, &issuers.IdentityBackend{}, deps.Identity)
	assert.IsType(t, &denylist.Gate{}, deps.DenyList)

	cfg.DenyList.URL = ""
	cfg.GatewayToken.Enabled = true
	cfg.GatewayToken.Environments = map[string]string{"prod": "https://ims.example.com"}
	deps = NewDependencies(cfg, nil, nil)
	assert.Nil(t, deps.DenyList)
	assert.IsType(t, &issuers.GatewayValidator{}, deps.Gateway)
	assert.Equal(t, "prod", deps.GatewayEnvironment)
}

func TestBuildPipelines(t *testing.T) {
	cfg := testConfig()
	deps := Dependencies{Identity: &fakeIdentity{}}

	pipelines, err := BuildPipelines(cfg, map[string]core.CredentialGenerator{"storage": &fakeGenerator{}}, deps)
	require.NoError(t, err)
	require.Contains(t, pipelines, "storage")
	assert.Equal(t, "storage", pipelines["storage"].Provider())

	_, err = BuildPipelines(cfg, map[string]core.CredentialGenerator{}, deps)
	require.ErrorContains(t, err, "no generator")
}
