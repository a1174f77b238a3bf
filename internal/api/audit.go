package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/audit"
	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
)

// handleListAuditLogs returns paginated audit entries. Requires audit:read.
//
// Query parameters:
//   - action, entityType, entityId, userId: exact filters
//   - since: RFC 3339 lower bound
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
		UserID:     q.Get("userId"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSweepRevocations prunes expired revocation records now.
// Requires revocation:manage.
func (s *Server) handleSweepRevocations(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFrom(r.Context())
	if err := auth.RequirePermission(principal, auth.PermRevocationManage); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if s.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "revocation sweeper not configured")
		return
	}

	removed, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.metrics.swept.Add(float64(removed))

	s.audit.Record(r.Context(), audit.AuditLog{
		Action:     audit.ActionRevocationsSwept,
		EntityType: audit.EntityRevocation,
		UserID:     principal.ID,
		Details:    map[string]any{"removed": removed},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    http.StatusOK,
		"removed":   removed,
		"timestamp": timestamp(),
	})
}
