package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
identity:
  api_host: https://identity.example.com
approved_list: "ns1,ns2"
lease:
  min_seconds: 900
  max_seconds: 7200
  default_seconds: 1800
gateway_token:
  enabled: true
  environment: stage
  environments:
    stage: https://ims-stage.example.com
  client_id: tvm-client
  cache_ttl: 1m
deny_list:
  url: https://deny.example.com/list.json
  threshold: 250
metrics:
  url: https://push.example.com
  push_interval: 10s
providers:
  - name: storage
    type: aws_s3
    params:
      awsAccessKeyId: key
      awsSecretAccessKey: secret
      s3BucketPrefix: prefix
    defaults:
      bucketRegion: eu-west-1
audit:
  enabled: true
  type: memory
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://identity.example.com", cfg.Identity.APIHost)
	assert.Equal(t, "ns1,ns2", cfg.ApprovedList)
	assert.Equal(t, LeaseConfig{MinSeconds: 900, MaxSeconds: 7200, DefaultSeconds: 1800}, cfg.Lease)

	assert.True(t, cfg.GatewayToken.Enabled)
	assert.Equal(t, "stage", cfg.GatewayToken.Environment)
	assert.Equal(t, time.Minute, cfg.GatewayToken.CacheTTL)
	assert.Equal(t, DefaultGatewayHeader, cfg.GatewayToken.Header)
	assert.Equal(t, DefaultGatewayScopes, cfg.GatewayToken.Scopes)

	assert.Equal(t, float64(250), cfg.DenyList.Threshold)
	assert.Equal(t, DefaultCacheTTL, cfg.DenyList.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.Metrics.PushInterval)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "key", cfg.Providers[0].Params["awsAccessKeyId"])
	assert.Equal(t, "eu-west-1", cfg.Providers[0].Defaults["bucketRegion"])
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
identity:
  api_host: https://identity.example.com
approved_list: "*"
providers:
  - name: db
    type: azure_cosmos
`))
	require.NoError(t, err)
	assert.Equal(t, LeaseConfig{
		MinSeconds:     DefaultLeaseMinSeconds,
		MaxSeconds:     DefaultLeaseMaxSeconds,
		DefaultSeconds: DefaultLeaseDefaultSeconds,
	}, cfg.Lease)
	assert.False(t, cfg.GatewayToken.Enabled)
	assert.Equal(t, DefaultGatewayEnvironment, cfg.GatewayToken.Environment)
	assert.Equal(t, float64(DefaultDenyListThreshold), cfg.DenyList.Threshold)
}

func TestParse_Invalid(t *testing.T) {
	base := func(extra string) string {
		return "identity:\n  api_host: https://identity.example.com\napproved_list: \"*\"\n" + extra
	}
	providers := "providers:\n  - name: db\n    type: azure_cosmos\n"

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing api host", "approved_list: \"*\"\n" + providers, "identity.api_host"},
		{"relative api host", "identity:\n  api_host: /api\napproved_list: \"*\"\n" + providers, "identity.api_host"},
		{"missing approved list", "identity:\n  api_host: https://identity.example.com\n" + providers, "approved_list"},
		{"no providers", base(""), "at least one provider"},
		{"duplicate providers", base(providers + "  - name: db\n    type: aws_s3\n"), "not unique"},
		{"lease bounds", base(providers + "lease:\n  min_seconds: 1000\n  max_seconds: 900\n"), "lease"},
		{"lease default", base(providers + "lease:\n  default_seconds: 60\n"), "lease"},
		{"gateway without environment", base(providers + "gateway_token:\n  enabled: true\n"), "gateway_token"},
		{"deny list url", base(providers + "deny_list:\n  url: nope\n"), "deny_list.url"},
		{"audit type", base(providers + "audit:\n  type: file\n"), "audit.type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tvm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ns1,ns2", cfg.ApprovedList)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "reading config file")
}
