package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/health"
	"github.com/sudharshan/ppe-monitor/internal/middleware"
)

// HealthHandler reads the stream-health subsystem: per-camera probe
// status, bounded history, and outage alerts.
type HealthHandler struct {
	Service *health.Service
}

func NewHealthHandler(svc *health.Service) *HealthHandler {
	return &HealthHandler{Service: svc}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// GetHealth GET /api/v1/cameras/health — every camera's latest status.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	tenantID, _ := uuid.Parse(ac.TenantID)

	statuses, err := h.Service.Repo.ListStatuses(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "failed to list health", http.StatusInternalServerError)
		return
	}
	writeJSON(w, statuses)
}

// GetCameraHealth GET /api/v1/cameras/{id}/health
func (h *HealthHandler) GetCameraHealth(w http.ResponseWriter, r *http.Request) {
	cameraID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid camera id", http.StatusBadRequest)
		return
	}

	status, err := h.Service.GetStatus(r.Context(), cameraID)
	if err != nil {
		http.Error(w, "failed to get status", http.StatusInternalServerError)
		return
	}
	if status == nil {
		http.Error(w, "status not found", http.StatusNotFound)
		return
	}
	writeJSON(w, status)
}

// GetHistory GET /api/v1/cameras/{id}/health/history
func (h *HealthHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	cameraID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid camera id", http.StatusBadRequest)
		return
	}

	limit, offset := 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		offset = v
	}

	history, err := h.Service.GetHistory(r.Context(), cameraID, limit, offset)
	if err != nil {
		http.Error(w, "failed to get history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, history)
}

// ListAlerts GET /api/v1/alerts/cameras?state=open
func (h *HealthHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	tenantID, _ := uuid.Parse(ac.TenantID)

	alerts, err := h.Service.ListAlerts(r.Context(), tenantID, r.URL.Query().Get("state"))
	if err != nil {
		http.Error(w, "failed to list alerts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, alerts)
}

// ManualRecheck POST /api/v1/cameras/{id}/health-recheck triggers an
// immediate out-of-schedule probe; the probe itself runs async.
func (h *HealthHandler) ManualRecheck(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	tenantID, _ := uuid.Parse(ac.TenantID)

	cameraID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid camera id", http.StatusBadRequest)
		return
	}

	if err := h.Service.ManualCheck(r.Context(), tenantID, cameraID); err != nil {
		http.Error(w, "failed to trigger check", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"recheck_triggered"}`))
}
