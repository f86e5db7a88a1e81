package core

import (
	"context"
	"time"
)

// GatewayTokenValidator checks the service level bearer token.
type GatewayTokenValidator interface {
	// Extract returns the bearer token from the request headers.
	Extract(req Request) (string, error)

	// Validate checks token against the identity provider of the given environment.
	Validate(ctx context.Context, token, environment string) error
}

// IdentityValidator confirms that a credential is valid and linked to a tenant.
type IdentityValidator interface {
	Validate(ctx context.Context, apiHost, tenant, credential string) error
}

// DenyListChecker rejects tenants that are over their usage threshold.
type DenyListChecker interface {
	Check(ctx context.Context, url, tenant string, lease time.Duration) error
}

// MetricsRecorder records request outcomes. Implementations must never fail.
type MetricsRecorder interface {
	RequestReceived(tenant string)
	RequestCompleted(tenant string, statusCode int)
}
