package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sudharshan/ppe-monitor/internal/license"
)

type LicenseHandler struct {
	Manager *license.Manager
}

// LicenseStatusResponse is the redacted summary operators see: feature
// names and limits, never customer PII from the payload.
type LicenseStatusResponse struct {
	Status       string                `json:"status"`
	LicenseID    string                `json:"license_id,omitempty"`
	IssuedAt     *time.Time            `json:"issued_at,omitempty"`
	ValidUntil   *time.Time            `json:"valid_until,omitempty"`
	DaysToExpiry int                   `json:"days_to_expiry"`
	Limits       license.LicenseLimits `json:"limits"`
	Features     []string              `json:"features"`
	LastReload   time.Time             `json:"last_reload"`
	ReasonCode   string                `json:"reason_code,omitempty"`
}

// GetStatus GET /api/v1/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	state := h.Manager.GetState()

	resp := LicenseStatusResponse{
		Status:       string(state.Status),
		ReasonCode:   state.ReasonCode,
		LastReload:   state.LastReload,
		DaysToExpiry: state.DaysToExpiry,
	}
	if state.Payload != nil {
		resp.LicenseID = state.Payload.LicenseID.String()
		resp.IssuedAt = &state.Payload.IssuedAt
		resp.ValidUntil = &state.Payload.ValidUntil
		resp.Limits = state.Payload.Limits
		for name, enabled := range state.Payload.Features {
			if enabled {
				resp.Features = append(resp.Features, name)
			}
		}
	}

	json.NewEncoder(w).Encode(resp)
}

// Reload POST /api/v1/license/reload re-reads the license file and
// answers with the resulting status.
func (h *LicenseHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.Manager.Reload()
	h.GetStatus(w, r)
}
