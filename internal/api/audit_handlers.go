package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/audit"
	"github.com/sudharshan/ppe-monitor/internal/middleware"
)

type AuditHandler struct {
	Service *audit.Service
	Perms   *middleware.PermissionMiddleware
}

// GetEvents GET /api/v1/audit/events — cursor-paged, newest first.
func (h *AuditHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	filter := audit.AuditFilter{
		TenantID: uuid.MustParse(ac.TenantID),
		Result:   q.Get("result"),
		Cursor:   q.Get("cursor"),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = l
		}
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if t, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filter.DateFrom = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filter.DateTo = &t
	}

	events, nextCursor, err := h.Service.QueryEvents(r.Context(), filter)
	if err != nil {
		http.Error(w, "Query Failed", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"events": events,
		"cursor": nextCursor,
	})
}

// ExportEvents POST /api/v1/audit/exports streams the tenant's trail as
// a JSONL attachment.
func (h *AuditHandler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/x-jsonl")
	w.Header().Set("Content-Disposition", `attachment; filename="audit_export.jsonl"`)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	filter := audit.AuditFilter{TenantID: uuid.MustParse(ac.TenantID)}
	if err := h.Service.ExportEvents(r.Context(), filter, w); err != nil {
		// Headers are already on the wire; all we can do is log.
		log.Printf("audit: export stream error: %v", err)
	}
}
