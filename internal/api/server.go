package api

import (
	"net/http"

	"github.com/adobe/aio-tvm/internal/api/middleware"
	"github.com/adobe/aio-tvm/internal/audit"
	"github.com/adobe/aio-tvm/internal/core"
	"github.com/adobe/aio-tvm/internal/service"
)

type Server struct {
	pipelines map[string]*service.Pipeline
	auditor   core.Auditor
	metrics   http.Handler
}

// NewServer serves the given pipelines, keyed by provider name. metrics may
// be nil, in which case no metrics route is registered.
func NewServer(pipelines map[string]*service.Pipeline, auditor core.Auditor, metrics http.Handler) *Server {
	if auditor == nil {
		auditor = audit.NewNoopAuditor()
	}
	return &Server{
		pipelines: pipelines,
		auditor:   auditor,
		metrics:   metrics,
	}
}

// Routes returns the HTTP handler. Admin routes are only served when a
// signing key is configured.
func (s *Server) Routes(adminSigningKey []byte) http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)
	if s.metrics != nil {
		mux.Handle("GET "+MetricsRoute, s.metrics)
	}

	mux.HandleFunc("GET "+CredentialsRoute, s.handleCredentials)
	mux.HandleFunc("POST "+CredentialsRoute, s.handleCredentials)

	if len(adminSigningKey) > 0 {
		adminMux := http.NewServeMux()
		adminMux.HandleFunc("GET "+ListAuditsRoute, s.handleAdminAudit)
		mux.Handle(AdminParent, middleware.AdminAuth(adminSigningKey)(adminMux))
	}

	return middleware.RecoverMiddleware(
		middleware.CorrelationIDMiddleware(
			middleware.LoggingMiddleware(
				mux)))
}
