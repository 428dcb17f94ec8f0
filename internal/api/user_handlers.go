package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/data"
	"github.com/sudharshan/ppe-monitor/internal/middleware"
	"github.com/sudharshan/ppe-monitor/internal/users"
)

// UserHandler is the operator-account admin surface. Cross-tenant user
// IDs read as not-found rather than forbidden, so IDs can't be probed.
type UserHandler struct {
	Service *users.Service
}

type CreateUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type UpdateUserRequest struct {
	DisplayName string `json:"display_name"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// tenantScopedUser parses the {id} path value, loads the user, and
// enforces that it belongs to the caller's tenant. On any failure it has
// already written the response and returns ok=false.
func (h *UserHandler) tenantScopedUser(w http.ResponseWriter, r *http.Request) (target *data.User, actorID, tenantID uuid.UUID, ok bool) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid_id", http.StatusBadRequest)
		return nil, uuid.Nil, uuid.Nil, false
	}

	ac, _ := middleware.GetAuthContext(r.Context())
	actorID, _ = uuid.Parse(ac.UserID)
	tenantID, _ = uuid.Parse(ac.TenantID)

	u, err := h.Service.Repo.GetByID(r.Context(), userID)
	if err != nil || u.TenantID != tenantID {
		http.Error(w, "not_found", http.StatusNotFound)
		return nil, uuid.Nil, uuid.Nil, false
	}
	return u, actorID, tenantID, true
}

// CreateUser POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ac, _ := middleware.GetAuthContext(r.Context())
	actorID, _ := uuid.Parse(ac.UserID)
	tenantID, _ := uuid.Parse(ac.TenantID)

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid_json", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "missing_fields", http.StatusBadRequest)
		return
	}

	user := &data.User{
		TenantID:    tenantID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	}
	if err := h.Service.CreateUser(r.Context(), user, req.Password, actorID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"id": user.ID})
}

// GetUser GET /api/v1/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, _, _, ok := h.tenantScopedUser(w, r)
	if !ok {
		return
	}

	u.PasswordHash = ""
	json.NewEncoder(w).Encode(u)
}

// UpdateUser PUT /api/v1/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	u, actorID, _, ok := h.tenantScopedUser(w, r)
	if !ok {
		return
	}

	u.DisplayName = req.DisplayName
	if err := h.Service.UpdateUser(r.Context(), u, actorID); err != nil {
		http.Error(w, "update_failed", http.StatusInternalServerError)
		return
	}

	u.PasswordHash = ""
	json.NewEncoder(w).Encode(u)
}

// DisableUser POST /api/v1/users/{id}/disable
func (h *UserHandler) DisableUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid_id", http.StatusBadRequest)
		return
	}

	ac, _ := middleware.GetAuthContext(r.Context())
	actorID, _ := uuid.Parse(ac.UserID)
	tenantID, _ := uuid.Parse(ac.TenantID)

	// An admin can't disable their own account; there may be nobody
	// left to re-enable it.
	if userID == actorID {
		http.Error(w, "cannot_disable_self", http.StatusForbidden)
		return
	}

	u, err := h.Service.Repo.GetByID(r.Context(), userID)
	if err != nil || u.TenantID != tenantID {
		http.Error(w, "not_found", http.StatusNotFound)
		return
	}

	if err := h.Service.DisableUser(r.Context(), u.ID, tenantID, actorID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// EnableUser POST /api/v1/users/{id}/enable
func (h *UserHandler) EnableUser(w http.ResponseWriter, r *http.Request) {
	u, actorID, tenantID, ok := h.tenantScopedUser(w, r)
	if !ok {
		return
	}

	if err := h.Service.EnableUser(r.Context(), u.ID, tenantID, actorID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ResetPassword POST /api/v1/users/{id}/reset-password mints a reset
// token and returns it exactly once; the plaintext is never stored.
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	u, actorID, tenantID, ok := h.tenantScopedUser(w, r)
	if !ok {
		return
	}

	token, err := h.Service.InitiateReset(r.Context(), u.ID, tenantID, actorID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{
		"reset_token": token,
		"expires_in":  "15m",
	})
}

// CompleteReset POST /api/v1/auth/complete-reset — the one
// unauthenticated user endpoint; every failure collapses into the same
// generic response.
func (h *UserHandler) CompleteReset(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid_json", http.StatusBadRequest)
		return
	}

	if err := h.Service.CompleteReset(r.Context(), req.Token, req.NewPassword); err != nil {
		http.Error(w, "reset_failed", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}
