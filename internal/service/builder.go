package service

import (
	"fmt"

	"github.com/adobe/aio-tvm/internal/config"
	"github.com/adobe/aio-tvm/internal/core"
	"github.com/adobe/aio-tvm/internal/denylist"
	"github.com/adobe/aio-tvm/internal/issuers"
)

// NewDependencies wires the shared collaborators described by cfg.
func NewDependencies(cfg *config.Config, metrics core.MetricsRecorder, auditor core.Auditor) Dependencies {
	deps := Dependencies{
		Identity: issuers.NewIdentityBackend(),
		Metrics:  metrics,
		Auditor:  auditor,
	}

	if gw := cfg.GatewayToken; gw.Enabled {
		introspector := issuers.NewHTTPIntrospector(gw.Environments, gw.ClientID)
		deps.Gateway = issuers.NewGatewayValidator(introspector, issuers.GatewayOptions{
			Header:   gw.Header,
			ClientID: gw.ClientID,
			Scopes:   gw.Scopes,
			CacheTTL: gw.CacheTTL,
		})
		deps.GatewayEnvironment = gw.Environment
	}

	if cfg.DenyList.URL != "" {
		deps.DenyList = denylist.NewGate(denylist.Options{
			Threshold: cfg.DenyList.Threshold,
			CacheTTL:  cfg.DenyList.CacheTTL,
		})
	}
	return deps
}

// SettingsFor returns the settings of the pipeline serving provider.
func SettingsFor(cfg *config.Config, provider config.ProviderConfig) Settings {
	final := map[string]any{
		core.ParamAllowList:       cfg.ApprovedList,
		core.ParamIdentityAPIHost: cfg.Identity.APIHost,
	}
	if cfg.DenyList.URL != "" {
		final[core.ParamDenyListURL] = cfg.DenyList.URL
	}
	for k, v := range provider.Params {
		final[k] = v
	}

	defaults := map[string]any{
		core.ParamLeaseDuration: cfg.Lease.DefaultSeconds,
	}
	for k, v := range provider.Defaults {
		defaults[k] = v
	}

	return Settings{
		LeaseMinSeconds: cfg.Lease.MinSeconds,
		LeaseMaxSeconds: cfg.Lease.MaxSeconds,
		Final:           final,
		Defaults:        defaults,
	}
}

// BuildPipelines creates one pipeline per configured provider, keyed by name.
func BuildPipelines(cfg *config.Config, generators map[string]core.CredentialGenerator, deps Dependencies) (map[string]*Pipeline, error) {
	pipelines := make(map[string]*Pipeline, len(cfg.Providers))
	for _, provider := range cfg.Providers {
		gen, ok := generators[provider.Name]
		if !ok {
			return nil, fmt.Errorf("provider %q has no generator", provider.Name)
		}
		p, err := New(provider.Name, gen, deps, SettingsFor(cfg, provider))
		if err != nil {
			return nil, err
		}
		pipelines[provider.Name] = p
	}
	return pipelines, nil
}
