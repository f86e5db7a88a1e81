package audit

import (
	"fmt"

	"github.com/adobe/aio-tvm/internal/buildinfo"
	"github.com/adobe/aio-tvm/internal/config"
	"github.com/adobe/aio-tvm/internal/core"
)

// CreateUserAgent builds the User-Agent sent to upstream services so their
// logs can be joined with ours.
func CreateUserAgent(correlationID, tenant, component string) string {
	return fmt.Sprintf("TVM/%s (correlation_id=%s; tenant=%s; component=%s)",
		buildinfo.Version, correlationID, tenant, component)
}

// New returns the auditor selected by cfg.
func New(cfg config.AuditConfig) core.Auditor {
	if !cfg.Enabled || cfg.Type == "noop" {
		return NewNoopAuditor()
	}
	return NewInMemoryAuditor(DefaultMemoryCapacity)
}
