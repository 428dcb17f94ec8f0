// Package cameras is the registry service for camera descriptors: CRUD
// with license-quota gating and an audit event per mutation. The
// detection pipeline reads descriptors from here but never writes them.
package cameras

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/audit"
	"github.com/sudharshan/ppe-monitor/internal/data"
	"github.com/sudharshan/ppe-monitor/internal/license"
)

var (
	ErrLicenseLimitExceeded = errors.New("license_limit_exceeded")
	ErrSiteScopeMismatch    = errors.New("site does not belong to tenant")
	ErrInvalidIP            = errors.New("invalid ip address")
	ErrNameTooLong          = errors.New("name too long")
)

type Repository interface {
	Create(ctx context.Context, c *data.Camera) error
	GetByID(ctx context.Context, id uuid.UUID) (*data.Camera, error)
	Update(ctx context.Context, c *data.Camera) error
	SetStatus(ctx context.Context, id, tenantID uuid.UUID, enabled bool) error
	SoftDelete(ctx context.Context, id, tenantID uuid.UUID) error
	CountAll(ctx context.Context, tenantID uuid.UUID) (int, error)
	BulkUpdateStatus(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, enabled bool) error
	BulkAddTags(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, tags []string) error
	BulkRemoveTags(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, tags []string) error
	List(ctx context.Context, tenantID uuid.UUID, filter data.CameraFilter, limit, offset int) ([]*data.Camera, int, error)
}

type Auditor interface {
	WriteEvent(ctx context.Context, evt audit.AuditEvent) error
}

type LicenseChecker interface {
	GetLimits(tenantID uuid.UUID) license.LicenseLimits
}

type Service struct {
	repo         Repository
	licenseMgr   LicenseChecker
	auditService Auditor
}

func NewService(repo Repository, lic LicenseChecker, aud Auditor) *Service {
	return &Service{repo: repo, licenseMgr: lic, auditService: aud}
}

// CreateCamera validates the descriptor, enforces the license's
// inventory quota, and audits the registration.
func (s *Service) CreateCamera(ctx context.Context, c *data.Camera) error {
	if len(c.Name) > 120 || len(c.Name) == 0 {
		return ErrNameTooLong
	}
	if c.IPAddress == nil {
		return ErrInvalidIP
	}

	currentCount, err := s.repo.CountAll(ctx, c.TenantID)
	if err != nil {
		return err
	}
	if currentCount >= s.licenseMgr.GetLimits(c.TenantID).MaxCameras {
		s.auditDenial(ctx, c.TenantID, "camera.create")
		return ErrLicenseLimitExceeded
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return err
	}

	s.writeAudit(ctx, c.TenantID, "camera.create", c.ID.String(), "camera",
		map[string]any{"name": c.Name, "site_id": c.SiteID})
	return nil
}

// EnableCamera re-checks the inventory quota on enable so a license
// downgrade can't be circumvented through disabled spares.
func (s *Service) EnableCamera(ctx context.Context, id, tenantID uuid.UUID) error {
	cam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cam.IsEnabled {
		return nil
	}

	count, err := s.repo.CountAll(ctx, tenantID)
	if err != nil {
		return err
	}
	if count > s.licenseMgr.GetLimits(tenantID).MaxCameras {
		s.auditDenial(ctx, tenantID, "camera.enable")
		return ErrLicenseLimitExceeded
	}

	return s.setStatus(ctx, id, tenantID, true)
}

func (s *Service) DisableCamera(ctx context.Context, id, tenantID uuid.UUID) error {
	return s.setStatus(ctx, id, tenantID, false)
}

func (s *Service) setStatus(ctx context.Context, id, tenantID uuid.UUID, enabled bool) error {
	if err := s.repo.SetStatus(ctx, id, tenantID, enabled); err != nil {
		return err
	}

	action := "camera.disable"
	if enabled {
		action = "camera.enable"
	}
	s.writeAudit(ctx, tenantID, action, id.String(), "camera", nil)
	return nil
}

// BulkEnable enables a set of cameras after one quota check; the whole
// batch fails if the inventory is already over quota.
func (s *Service) BulkEnable(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) error {
	count, err := s.repo.CountAll(ctx, tenantID)
	if err != nil {
		return err
	}
	if count > s.licenseMgr.GetLimits(tenantID).MaxCameras {
		s.auditDenial(ctx, tenantID, "camera.bulk.enable")
		return ErrLicenseLimitExceeded
	}

	if err := s.repo.BulkUpdateStatus(ctx, tenantID, ids, true); err != nil {
		return err
	}
	s.writeAudit(ctx, tenantID, "camera.bulk.enable", "", "camera_batch", map[string]any{"count": len(ids)})
	return nil
}

func (s *Service) BulkDisable(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) error {
	if err := s.repo.BulkUpdateStatus(ctx, tenantID, ids, false); err != nil {
		return err
	}
	s.writeAudit(ctx, tenantID, "camera.bulk.disable", "", "camera_batch", map[string]any{"count": len(ids)})
	return nil
}

func (s *Service) BulkAddTags(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, tags []string) error {
	if err := s.repo.BulkAddTags(ctx, tenantID, ids, tags); err != nil {
		return err
	}
	s.writeAudit(ctx, tenantID, "camera.bulk.tag_add", "", "camera_batch",
		map[string]any{"count": len(ids), "tags": tags})
	return nil
}

func (s *Service) BulkRemoveTags(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, tags []string) error {
	if err := s.repo.BulkRemoveTags(ctx, tenantID, ids, tags); err != nil {
		return err
	}
	s.writeAudit(ctx, tenantID, "camera.bulk.tag_remove", "", "camera_batch",
		map[string]any{"count": len(ids), "tags": tags})
	return nil
}

func (s *Service) UpdateCamera(ctx context.Context, c *data.Camera) error {
	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}
	s.writeAudit(ctx, c.TenantID, "camera.update", c.ID.String(), "camera", nil)
	return nil
}

func (s *Service) DeleteCamera(ctx context.Context, id, tenantID uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id, tenantID); err != nil {
		return err
	}
	s.writeAudit(ctx, tenantID, "camera.delete", id.String(), "camera", nil)
	return nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter data.CameraFilter, limit, offset int) ([]*data.Camera, int, error) {
	return s.repo.List(ctx, tenantID, filter, limit, offset)
}

// GetByID enforces tenant isolation: a camera belonging to another
// tenant reads as not found.
func (s *Service) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*data.Camera, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.TenantID != tenantID {
		return nil, data.ErrRecordNotFound
	}
	return c, nil
}

func (s *Service) writeAudit(ctx context.Context, tenantID uuid.UUID, action, targetID, targetType string, meta map[string]any) {
	evt := audit.AuditEvent{
		TenantID:   tenantID,
		EventID:    uuid.New(),
		Action:     action,
		Result:     "success",
		TargetID:   targetID,
		TargetType: targetType,
		CreatedAt:  time.Now(),
	}
	if meta != nil {
		evt.Metadata, _ = json.Marshal(meta)
	}
	s.auditService.WriteEvent(ctx, evt)
}

// auditDenial records a quota rejection as a failed audit event so
// over-quota attempts are visible to operators.
func (s *Service) auditDenial(ctx context.Context, tenantID uuid.UUID, action string) {
	s.auditService.WriteEvent(ctx, audit.AuditEvent{
		TenantID:   tenantID,
		EventID:    uuid.New(),
		Action:     action,
		Result:     "failure",
		ReasonCode: "license_limit_exceeded",
		TargetType: "camera",
		CreatedAt:  time.Now(),
	})
}
