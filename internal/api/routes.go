package api

const (
	HealthCheckRoute = "/healthz"
	AboutRoute       = "/about"
	MetricsRoute     = "/metrics"

	CredentialsRoute = "/v1/credentials/{provider}"

	AdminParent     = "/v1/admin/"
	ListAuditsRoute = AdminParent + "audits"
)
