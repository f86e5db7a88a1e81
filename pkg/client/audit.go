package client

import (
	"context"

	"github.com/adobe/aio-tvm/internal/api"
	"github.com/adobe/aio-tvm/internal/core"
)

type ListAuditsOpts struct {
	Limit uint

	CorrelationID string
	Tenant        string
	Provider      string
}

// ListAudits retrieves the latest audit entries from the server. Requires an
// admin session token.
func (c *Client) ListAudits(ctx context.Context, opts ListAuditsOpts) ([]core.AuditEntry, string, error) {
	ub := c.url().setPath(api.ListAuditsRoute)
	if opts.Limit > 0 {
		ub = ub.addQueryParam("limit", opts.Limit)
	}
	if opts.CorrelationID != "" {
		ub = ub.addQueryParam("correlation_id", opts.CorrelationID)
	}
	if opts.Tenant != "" {
		ub = ub.addQueryParam("tenant", opts.Tenant)
	}
	if opts.Provider != "" {
		ub = ub.addQueryParam("provider", opts.Provider)
	}
	var resp []core.AuditEntry
	correlation, err := c.get(ctx, ub.build(), &resp)
	return resp, correlation, err
}
