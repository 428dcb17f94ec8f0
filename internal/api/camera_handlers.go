package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/cameras"
	"github.com/sudharshan/ppe-monitor/internal/data"
	"github.com/sudharshan/ppe-monitor/internal/middleware"
)

// CameraHandler is the thin HTTP layer over the camera registry the
// detection pipeline reads its descriptors from.
type CameraHandler struct {
	Service *cameras.Service
}

func NewCameraHandler(svc *cameras.Service) *CameraHandler {
	return &CameraHandler{Service: svc}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type createCameraRequest struct {
	SiteID    string `json:"site_id"`
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`
	// StreamSource is what the pipeline opens: a device index, a video
	// file path, or a stream URL. IPAddress/Port describe the camera's
	// management plane and are not used for capture.
	StreamSource string   `json:"stream_source"`
	IsEnabled    *bool    `json:"is_enabled,omitempty"`
	Tags         []string `json:"tags"`
}

// Create POST /api/v1/cameras
func (h *CameraHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	var req createCameraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	siteID, err := uuid.Parse(req.SiteID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid Site ID")
		return
	}
	ip := net.ParseIP(req.IPAddress)
	if ip == nil {
		respondError(w, http.StatusBadRequest, "Invalid IP")
		return
	}

	c := &data.Camera{
		TenantID:     uuid.MustParse(ac.TenantID),
		SiteID:       siteID,
		Name:         req.Name,
		IPAddress:    ip,
		Port:         req.Port,
		StreamSource: req.StreamSource,
		IsEnabled:    req.IsEnabled == nil || *req.IsEnabled,
		Tags:         req.Tags,
	}

	if err := h.Service.CreateCamera(r.Context(), c); err != nil {
		if errors.Is(err, cameras.ErrLicenseLimitExceeded) {
			respondError(w, http.StatusPaymentRequired, "License limit would be exceeded")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// List GET /api/v1/cameras. Page size is capped at 50 regardless of
// what the client asks for.
func (h *CameraHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v < 50 {
			limit = v
		}
	}
	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	filter := data.CameraFilter{Query: r.URL.Query().Get("q")}
	if siteStr := r.URL.Query().Get("site_id"); siteStr != "" {
		if sid, err := uuid.Parse(siteStr); err == nil {
			filter.SiteID = &sid
		}
	}

	list, total, err := h.Service.List(r.Context(), uuid.MustParse(ac.TenantID), filter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data": list,
		"meta": map[string]int{"total": total, "limit": limit, "offset": offset},
	})
}

// Bulk POST /api/v1/cameras/bulk applies one action to a set of cameras.
func (h *CameraHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}

	var req struct {
		Action    string      `json:"action"` // enable, disable, tag_add, tag_remove
		CameraIDs []uuid.UUID `json:"camera_ids"`
		Tags      []string    `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	tid := uuid.MustParse(ac.TenantID)
	var err error
	switch req.Action {
	case "enable":
		err = h.Service.BulkEnable(r.Context(), tid, req.CameraIDs)
	case "disable":
		err = h.Service.BulkDisable(r.Context(), tid, req.CameraIDs)
	case "tag_add":
		err = h.Service.BulkAddTags(r.Context(), tid, req.CameraIDs, req.Tags)
	case "tag_remove":
		err = h.Service.BulkRemoveTags(r.Context(), tid, req.CameraIDs, req.Tags)
	default:
		respondError(w, http.StatusBadRequest, "Invalid Action")
		return
	}

	if err != nil {
		if errors.Is(err, cameras.ErrLicenseLimitExceeded) {
			respondError(w, http.StatusPaymentRequired, "License limit exceeded")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// Enable POST /api/v1/cameras/{id}/enable
func (h *CameraHandler) Enable(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	ac, _ := middleware.GetAuthContext(r.Context())
	if err := h.Service.EnableCamera(r.Context(), id, uuid.MustParse(ac.TenantID)); err != nil {
		if errors.Is(err, cameras.ErrLicenseLimitExceeded) {
			respondError(w, http.StatusPaymentRequired, "License limit exceeded")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "enabled"})
}

// Disable POST /api/v1/cameras/{id}/disable
func (h *CameraHandler) Disable(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	ac, _ := middleware.GetAuthContext(r.Context())
	if err := h.Service.DisableCamera(r.Context(), id, uuid.MustParse(ac.TenantID)); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}
