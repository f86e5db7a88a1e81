package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/adobe/aio-tvm/internal/api/presenter"
	"github.com/adobe/aio-tvm/internal/core"
)

const defaultAuditLimit = 50

type auditFinder interface {
	Find(filter func(entry core.AuditEntry) bool, limit int) ([]core.AuditEntry, error)
}

// handleAdminAudit processes requests to retrieve audit log entries.
func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := r.URL.Query()
	limit := defaultAuditLimit
	if limitStr := q.Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v <= 0 {
			logger.Warn().Str("limit", limitStr).Msg("invalid limit parameter")
			presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = v
	}

	filterCorrelationID := q.Get("correlation_id")
	filterTenant := q.Get("tenant")
	filterProvider := q.Get("provider")

	var (
		entries []core.AuditEntry
		err     error
	)
	finder, canFind := s.auditor.(auditFinder)
	reader, canRead := s.auditor.(core.AuditReader)

	switch {
	case (filterCorrelationID != "" || filterTenant != "" || filterProvider != "") && canFind:
		entries, err = finder.Find(func(entry core.AuditEntry) bool {
			if filterCorrelationID != "" && entry.ID != filterCorrelationID {
				return false
			}
			if filterTenant != "" && entry.Tenant != filterTenant {
				return false
			}
			if filterProvider != "" && entry.Provider != filterProvider {
				return false
			}
			return true
		}, limit)
	case canRead:
		entries, err = reader.GetRecent(limit)
	default:
		presenter.Error(w, r, "auditing is disabled", http.StatusNotImplemented)
		return
	}

	if err != nil {
		logger.Error().Err(err).Msg("failed to retrieve audit logs")
		presenter.Error(w, r, "failed to retrieve audit logs", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	presenter.JSON(w, r, entries, http.StatusOK)
}
