package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	DefaultLeaseMinSeconds     = 900
	DefaultLeaseMaxSeconds     = 18000
	DefaultLeaseDefaultSeconds = 3600

	DefaultGatewayEnvironment = "prod"
	DefaultGatewayHeader      = "x-gw-ims-authorization"
	DefaultCacheTTL           = 5 * time.Minute

	DefaultDenyListThreshold = 400
	DefaultPushInterval      = 30 * time.Second
)

var DefaultGatewayScopes = []string{"openid", "system"}

type Config struct {
	Identity IdentityConfig `yaml:"identity"`

	// ApprovedList is a comma separated list of tenants or "*".
	ApprovedList string `yaml:"approved_list"`

	Lease        LeaseConfig        `yaml:"lease"`
	GatewayToken GatewayTokenConfig `yaml:"gateway_token"`
	DenyList     DenyListConfig     `yaml:"deny_list"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Providers    []ProviderConfig   `yaml:"providers"`
	Audit        AuditConfig        `yaml:"audit"`
	Admin        AdminConfig        `yaml:"admin"`
}

// IdentityConfig points to the backend validating tenant credentials.
type IdentityConfig struct {
	APIHost string `yaml:"api_host"`
}

// LeaseConfig bounds the lifetime of issued credentials, in seconds.
type LeaseConfig struct {
	MinSeconds     int `yaml:"min_seconds"`
	MaxSeconds     int `yaml:"max_seconds"`
	DefaultSeconds int `yaml:"default_seconds"`
}

// GatewayTokenConfig holds configuration for the service level token check.
type GatewayTokenConfig struct {
	Enabled bool `yaml:"enabled"`

	// Environment selects the identity provider used for introspection.
	Environment string `yaml:"environment"`

	// Environments maps an environment name to the identity provider base URL.
	Environments map[string]string `yaml:"environments"`

	Header   string        `yaml:"header"`
	ClientID string        `yaml:"client_id"`
	Scopes   []string      `yaml:"scopes"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type DenyListConfig struct {
	// URL of the deny list. Empty disables the check.
	URL       string        `yaml:"url"`
	Threshold float64       `yaml:"threshold"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type MetricsConfig struct {
	// URL of the push gateway. Empty disables pushing.
	URL          string        `yaml:"url"`
	PushInterval time.Duration `yaml:"push_interval"`
}

// ProviderConfig holds configuration for a credential generator.
type ProviderConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // e.g., "aws_s3", "azure_cosmos"

	// Params are deployment supplied request params. They are final:
	// callers cannot override them.
	Params map[string]any `yaml:"params"`

	// Defaults are request params used when the caller does not supply them.
	Defaults map[string]any `yaml:"defaults"`
}

// AuditConfig holds configuration for auditing.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type"` // "memory" or "noop"
}

type AdminConfig struct {
	// SigningKey is the HMAC key of admin session tokens.
	// Admin routes are disabled if empty.
	SigningKey string `yaml:"signing_key"`
}

// Load reads and parses the configuration file at the given path.
// It returns a Config struct or an error if loading/parsing/validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses, defaults and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Lease.MinSeconds == 0 {
		c.Lease.MinSeconds = DefaultLeaseMinSeconds
	}
	if c.Lease.MaxSeconds == 0 {
		c.Lease.MaxSeconds = DefaultLeaseMaxSeconds
	}
	if c.Lease.DefaultSeconds == 0 {
		c.Lease.DefaultSeconds = DefaultLeaseDefaultSeconds
	}

	if c.GatewayToken.Environment == "" {
		c.GatewayToken.Environment = DefaultGatewayEnvironment
	}
	if c.GatewayToken.Header == "" {
		c.GatewayToken.Header = DefaultGatewayHeader
	}
	if len(c.GatewayToken.Scopes) == 0 {
		c.GatewayToken.Scopes = DefaultGatewayScopes
	}
	if c.GatewayToken.CacheTTL == 0 {
		c.GatewayToken.CacheTTL = DefaultCacheTTL
	}

	if c.DenyList.Threshold == 0 {
		c.DenyList.Threshold = DefaultDenyListThreshold
	}
	if c.DenyList.CacheTTL == 0 {
		c.DenyList.CacheTTL = DefaultCacheTTL
	}

	if c.Metrics.PushInterval == 0 {
		c.Metrics.PushInterval = DefaultPushInterval
	}
}

func (c *Config) Validate() error {
	if err := validateURL(c.Identity.APIHost); err != nil {
		return fmt.Errorf("identity.api_host: %w", err)
	}
	if c.ApprovedList == "" {
		return fmt.Errorf("approved_list is required")
	}

	if err := c.Lease.Validate(); err != nil {
		return fmt.Errorf("lease: %w", err)
	}

	if c.GatewayToken.Enabled {
		if _, ok := c.GatewayToken.Environments[c.GatewayToken.Environment]; !ok {
			return fmt.Errorf("gateway_token: environment %q has no entry in environments", c.GatewayToken.Environment)
		}
		for env, base := range c.GatewayToken.Environments {
			if err := validateURL(base); err != nil {
				return fmt.Errorf("gateway_token.environments.%s: %w", env, err)
			}
		}
	}

	if c.DenyList.URL != "" {
		if err := validateURL(c.DenyList.URL); err != nil {
			return fmt.Errorf("deny_list.url: %w", err)
		}
	}
	if c.Metrics.URL != "" {
		if err := validateURL(c.Metrics.URL); err != nil {
			return fmt.Errorf("metrics.url: %w", err)
		}
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	seen := make(map[string]struct{})
	for idx, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider at index %d has empty name", idx)
		}
		if p.Type == "" {
			return fmt.Errorf("provider %q has empty type", p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("provider name %q is not unique", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	switch c.Audit.Type {
	case "", "memory", "noop":
	default:
		return fmt.Errorf("audit.type: unknown type %q", c.Audit.Type)
	}
	return nil
}

func (l LeaseConfig) Validate() error {
	if l.MinSeconds <= 0 || l.MaxSeconds < l.MinSeconds {
		return fmt.Errorf("invalid bounds [%d, %d]", l.MinSeconds, l.MaxSeconds)
	}
	if l.DefaultSeconds < l.MinSeconds || l.DefaultSeconds > l.MaxSeconds {
		return fmt.Errorf("default %d is outside of [%d, %d]", l.DefaultSeconds, l.MinSeconds, l.MaxSeconds)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", raw)
	}
	return nil
}
