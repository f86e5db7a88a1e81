package core

import "time"

type AuditEntry struct {
	// ID is the unique request ID (X-Correlation-ID)
	ID string `json:"id"`

	// Time is the timestamp of the event
	Time time.Time `json:"time"`

	// Action describing what happened (e.g. "credentials.issue")
	Action string `json:"action"`

	// Tenant the credential was requested for, if it could be determined
	Tenant string `json:"tenant,omitempty"`

	// Provider is the name of the targeted credential generator
	Provider string `json:"provider,omitempty"`

	// Decision details
	StatusCode int    `json:"status_code"`
	Granted    bool   `json:"granted"`
	Stage      string `json:"stage,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}

// AuditReader is implemented by auditors that can list past entries.
type AuditReader interface {
	GetRecent(limit int) ([]AuditEntry, error)
}
