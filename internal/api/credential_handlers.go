package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/cameras"
	"github.com/sudharshan/ppe-monitor/internal/data"
	"github.com/sudharshan/ppe-monitor/internal/middleware"
)

type PermissionChecker interface {
	CheckPermission(ctx context.Context, permSlug, scopeType, scopeID string) (bool, error)
}

type CameraProvider interface {
	GetByID(ctx context.Context, id, tenantID uuid.UUID) (*data.Camera, error)
}

// CredentialHandler manages the stream credentials the capture and
// health-probe layers use to reach a camera. Authorization failures are
// answered with 404 so probing for camera IDs reveals nothing.
type CredentialHandler struct {
	CredService   *cameras.CredentialService
	CameraService CameraProvider
	Perms         PermissionChecker
}

func NewCredentialHandler(credSvc *cameras.CredentialService, camSvc CameraProvider, perms PermissionChecker) *CredentialHandler {
	return &CredentialHandler{CredService: credSvc, CameraService: camSvc, Perms: perms}
}

// checkAccess resolves the camera (which enforces tenant isolation) and
// checks permission at the camera's site scope, falling back to tenant
// scope for siteless cameras.
func (h *CredentialHandler) checkAccess(w http.ResponseWriter, r *http.Request, permission string) (uuid.UUID, uuid.UUID, bool) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return uuid.Nil, uuid.Nil, false
	}
	tenantID := uuid.MustParse(ac.TenantID)

	cameraID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid Camera ID")
		return uuid.Nil, uuid.Nil, false
	}

	cam, err := h.CameraService.GetByID(r.Context(), cameraID, tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Camera not found")
		return uuid.Nil, uuid.Nil, false
	}

	scopeType, scopeID := "tenant", ac.TenantID
	if cam.SiteID != uuid.Nil {
		scopeType, scopeID = "site", cam.SiteID.String()
	}
	allowed, err := h.Perms.CheckPermission(r.Context(), permission, scopeType, scopeID)
	if err != nil || !allowed {
		respondError(w, http.StatusNotFound, "Camera not found")
		return uuid.Nil, uuid.Nil, false
	}

	return tenantID, cameraID, true
}

// Update PUT /api/v1/cameras/{id}/credentials
func (h *CredentialHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, cameraID, ok := h.checkAccess(w, r, "camera.credential.write")
	if !ok {
		return
	}

	var input cameras.CredentialInput
	r.Body = http.MaxBytesReader(w, r.Body, 8192)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if input.Username == "" {
		respondError(w, http.StatusBadRequest, "Username required")
		return
	}
	if len(input.Username) > 128 || len(input.Password) > 128 {
		respondError(w, http.StatusBadRequest, "Credentials too long")
		return
	}

	if err := h.CredService.SetCredentials(r.Context(), tenantID, cameraID, input); err != nil {
		if errors.Is(err, cameras.ErrCredentialTooLarge) {
			respondError(w, http.StatusBadRequest, "Payload too large")
			return
		}
		respondError(w, http.StatusInternalServerError, "Internal Error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Get GET /api/v1/cameras/{id}/credentials. Plaintext is only included
// with ?reveal=true, which the service audits separately.
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, cameraID, ok := h.checkAccess(w, r, "camera.credential.read")
	if !ok {
		return
	}

	out, found, err := h.CredService.GetCredentials(r.Context(), tenantID, cameraID, r.URL.Query().Get("reveal") == "true")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal Check Failed")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "Credentials not found")
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// Delete DELETE /api/v1/cameras/{id}/credentials
func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, cameraID, ok := h.checkAccess(w, r, "camera.credential.delete")
	if !ok {
		return
	}

	if err := h.CredService.DeleteCredentials(r.Context(), tenantID, cameraID); err != nil {
		respondError(w, http.StatusInternalServerError, "Delete Failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
