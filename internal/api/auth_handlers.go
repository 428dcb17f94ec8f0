package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/auth"
	"github.com/sudharshan/ppe-monitor/internal/data"
	"github.com/sudharshan/ppe-monitor/internal/middleware"
	"github.com/sudharshan/ppe-monitor/internal/session"
	"github.com/sudharshan/ppe-monitor/internal/tokens"
)

const refreshTokenTTL = 7 * 24 * time.Hour

// AuthHandler implements login, refresh-token rotation, and logout.
// Every failure path answers with the same generic 401 so responses
// don't distinguish a wrong password from an unknown account.
type AuthHandler struct {
	DB        *sql.DB
	Tokens    *tokens.Manager
	Session   *session.Manager
	Hasher    *auth.Params
	Blacklist auth.TokenBlacklist
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

// Login POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	locked, err := h.Session.CheckLockout(r.Context(), req.TenantID, req.Email)
	if err != nil || locked {
		h.genericError(w)
		return
	}

	tID, err := uuid.Parse(req.TenantID)
	if err != nil {
		h.genericError(w)
		return
	}

	tx, err := h.DB.BeginTx(r.Context(), nil)
	if err != nil {
		h.genericError(w)
		return
	}
	defer tx.Rollback()

	usersRepo := data.UserModel{DB: tx}
	user, err := usersRepo.GetByEmail(r.Context(), tID, req.Email)
	if err == data.ErrUserNotFound {
		// Burn comparable time so an unknown email isn't distinguishable
		// from a wrong password by latency.
		auth.CheckPassword("dummy", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHQ$hashhashhashhashhashhashhashhashhash")
		h.failWithLockout(w, r, req.TenantID, req.Email)
		return
	}
	if err != nil {
		h.genericError(w)
		return
	}

	match, err := auth.CheckPassword(req.Password, user.PasswordHash)
	if err != nil || !match || user.IsDisabled {
		h.failWithLockout(w, r, req.TenantID, req.Email)
		return
	}

	sessionID := uuid.New().String()
	accessToken, err := h.Tokens.GenerateAccessToken(user.ID.String(), req.TenantID)
	if err != nil {
		h.genericError(w)
		return
	}

	tokensRepo := data.TokenModel{DB: tx}
	refreshToken, _, err := tokensRepo.New(r.Context(), user.ID.String(), req.TenantID, sessionID, refreshTokenTTL)
	if err != nil {
		h.genericError(w)
		return
	}

	if err := h.Session.CreateSession(r.Context(), user.ID.String(), req.TenantID, sessionID); err != nil {
		h.genericError(w)
		return
	}

	if err := tx.Commit(); err != nil {
		h.genericError(w)
		return
	}

	json.NewEncoder(w).Encode(TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    900,
	})
}

// Refresh POST /api/v1/auth/refresh rotates an opaque refresh token:
// the presented token is looked up by hash, revoked, and replaced, with
// the old row recording its successor. Presenting an already-rotated
// token means the token leaked — every token and session for that user
// is revoked on the spot.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		h.genericError(w)
		return
	}

	tx, err := h.DB.BeginTx(r.Context(), nil)
	if err != nil {
		h.genericError(w)
		return
	}
	defer tx.Rollback()

	tokensRepo := data.TokenModel{DB: tx}
	dbToken, err := tokensRepo.GetByHash(r.Context(), req.RefreshToken)
	if err != nil {
		h.genericError(w)
		return
	}
	if time.Now().After(dbToken.ExpiresAt) {
		h.genericError(w)
		return
	}

	if !dbToken.RevokedAt.IsZero() || dbToken.ReplacedByTokenID != nil {
		// Reuse detected.
		tokensRepo.RevokeAllForUser(r.Context(), dbToken.UserID)
		h.Session.RevokeAllUserSessions(r.Context(), dbToken.UserID)
		tx.Commit()
		h.genericError(w)
		return
	}

	newRefreshToken, newID, err := tokensRepo.New(r.Context(), dbToken.UserID, dbToken.TenantID, dbToken.SessionID, refreshTokenTTL)
	if err != nil {
		h.genericError(w)
		return
	}
	if err := tokensRepo.Rotate(r.Context(), dbToken.ID, newID); err != nil {
		h.genericError(w)
		return
	}

	newAccess, err := h.Tokens.GenerateAccessToken(dbToken.UserID, dbToken.TenantID)
	if err != nil {
		h.genericError(w)
		return
	}

	if err := tx.Commit(); err != nil {
		h.genericError(w)
		return
	}

	json.NewEncoder(w).Encode(TokenResponse{
		AccessToken:  newAccess,
		RefreshToken: newRefreshToken,
		ExpiresIn:    900,
	})
}

// Logout blacklists the caller's access token for the remainder of its
// lifetime and, if a refresh token is presented, deletes that token's
// Redis session. The refresh token's database row is not revoked, and
// Refresh does not consult the Redis session, so the presented refresh
// token can still be rotated after logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		h.genericError(w)
		return
	}

	if err := h.Blacklist.AddToBlacklist(r.Context(), ac.TenantID, ac.TokenID, 15*time.Minute); err != nil {
		h.genericError(w)
		return
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
		tokensRepo := data.TokenModel{DB: h.DB}
		if dbToken, err := tokensRepo.GetByHash(r.Context(), req.RefreshToken); err == nil {
			h.Session.RevokeSession(r.Context(), dbToken.SessionID)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) genericError(w http.ResponseWriter) {
	http.Error(w, "Invalid credential or request", http.StatusUnauthorized)
}

func (h *AuthHandler) failWithLockout(w http.ResponseWriter, r *http.Request, tenantID, email string) {
	h.Session.RecordFailedAttempt(r.Context(), tenantID, email)
	h.genericError(w)
}
