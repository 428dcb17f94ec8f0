// Package users manages operator accounts: creation, enable/disable,
// and the admin-initiated password-reset flow. Every mutation writes an
// audit event.
package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/audit"
	"github.com/sudharshan/ppe-monitor/internal/auth"
	"github.com/sudharshan/ppe-monitor/internal/data"
	"github.com/sudharshan/ppe-monitor/internal/session"
	"github.com/sudharshan/ppe-monitor/internal/tokens"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const resetTokenTTL = 15 * time.Minute

type Service struct {
	Repo       data.UserModel
	Audit      *audit.Service
	SessionMgr *session.Manager
	TokenMgr   *tokens.Manager
}

func NewService(db *data.UserModel, audit *audit.Service, sm *session.Manager, tm *tokens.Manager) *Service {
	return &Service{
		Repo:       *db,
		Audit:      audit,
		SessionMgr: sm,
		TokenMgr:   tm,
	}
}

func (s *Service) CreateUser(ctx context.Context, u *data.User, password string, actorID uuid.UUID) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash

	if err := s.Repo.Create(ctx, u); err != nil {
		return err
	}

	s.audit(ctx, "user.create", u.ID, actorID, u.TenantID, nil)
	return nil
}

func (s *Service) UpdateUser(ctx context.Context, u *data.User, actorID uuid.UUID) error {
	err := s.Repo.Update(ctx, u)
	s.audit(ctx, "user.update", u.ID, actorID, u.TenantID, err)
	return err
}

// DisableUser flags the account and revokes its live sessions; without
// the revocation an already-issued session would stay usable until it
// expired on its own.
func (s *Service) DisableUser(ctx context.Context, userID, tenantID, actorID uuid.UUID) error {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	u.IsDisabled = true
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}

	if err := (data.TokenModel{DB: s.Repo.DB}).RevokeAllForUser(ctx, userID.String()); err != nil {
		return err
	}
	if err := s.SessionMgr.RevokeAllUserSessions(ctx, userID.String()); err != nil {
		return err
	}

	s.audit(ctx, "user.disable", userID, actorID, tenantID, nil)
	return nil
}

func (s *Service) EnableUser(ctx context.Context, userID, tenantID, actorID uuid.UUID) error {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	u.IsDisabled = false
	err = s.Repo.Update(ctx, u)
	s.audit(ctx, "user.enable", userID, actorID, tenantID, err)
	return err
}

// InitiateReset mints a single-use reset token, stores only its hash,
// and returns the plaintext exactly once for the admin to hand over.
func (s *Service) InitiateReset(ctx context.Context, userID, tenantID, actorID uuid.UUID) (string, error) {
	raw := make([]byte, 32)
	rand.Read(raw)
	tokenStr := hex.EncodeToString(raw)
	sum := sha256.Sum256([]byte(tokenStr))

	if err := s.Repo.CreateResetToken(ctx, &data.PasswordResetToken{
		TenantID:        tenantID,
		UserID:          userID,
		TokenHash:       hex.EncodeToString(sum[:]),
		ExpiresAt:       time.Now().Add(resetTokenTTL),
		CreatedByUserID: &actorID,
	}); err != nil {
		return "", err
	}

	s.audit(ctx, "user.password.reset", userID, actorID, tenantID, nil)
	return tokenStr, nil
}

// CompleteReset redeems a reset token, sets the new password, burns the
// token, and revokes every live session so whoever held the old
// password is logged out everywhere. Lookup and validation failures
// collapse into one generic error to hide token existence.
func (s *Service) CompleteReset(ctx context.Context, rawToken, newPassword string) error {
	sum := sha256.Sum256([]byte(rawToken))
	token, err := s.Repo.GetResetToken(ctx, hex.EncodeToString(sum[:]))
	if err != nil {
		return ErrInvalidToken
	}
	if time.Now().After(token.ExpiresAt) || token.UsedAt != nil {
		return ErrInvalidToken
	}

	newHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user, err := s.Repo.GetByID(ctx, token.UserID)
	if err != nil {
		return err
	}
	user.PasswordHash = newHash
	if err := s.Repo.Update(ctx, user); err != nil {
		return err
	}

	if err := s.Repo.MarkTokenUsed(ctx, token.ID); err != nil {
		return err
	}
	if err := (data.TokenModel{DB: s.Repo.DB}).RevokeAllForUser(ctx, user.ID.String()); err != nil {
		return err
	}
	if s.SessionMgr != nil {
		if err := s.SessionMgr.RevokeAllUserSessions(ctx, user.ID.String()); err != nil {
			return err
		}
	}

	// No actor: the reset is completed by the (unauthenticated) user.
	s.audit(ctx, "user.password.reset_complete", user.ID, uuid.Nil, user.TenantID, nil)
	return nil
}

func (s *Service) audit(ctx context.Context, action string, targetID, actorID, tenantID uuid.UUID, err error) {
	if s.Audit == nil {
		return
	}

	result, reason := "success", ""
	if err != nil {
		result, reason = "failure", err.Error()
	}
	var actorPtr *uuid.UUID
	if actorID != uuid.Nil {
		actorPtr = &actorID
	}

	go s.Audit.WriteEvent(context.Background(), audit.AuditEvent{
		EventID:     uuid.New(),
		Action:      action,
		ActorUserID: actorPtr,
		TenantID:    tenantID,
		TargetID:    targetID.String(),
		TargetType:  "user",
		Result:      result,
		ReasonCode:  reason,
		CreatedAt:   time.Now(),
	})
}
