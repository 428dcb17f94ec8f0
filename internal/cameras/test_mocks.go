package cameras

import (
	"context"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/audit"
	"github.com/sudharshan/ppe-monitor/internal/data"
)

// MockAuditor records audit events for assertions.
type MockAuditor struct {
	Events []audit.AuditEvent
}

func (m *MockAuditor) WriteEvent(ctx context.Context, evt audit.AuditEvent) error {
	m.Events = append(m.Events, evt)
	return nil
}

// MockCredentialProvider stubs credential reads via GetFunc.
type MockCredentialProvider struct {
	GetFunc func(ctx context.Context, tenantID, cameraID uuid.UUID, reveal bool) (*CredentialOutput, bool, error)
}

func (m *MockCredentialProvider) GetCredentials(ctx context.Context, tenantID, cameraID uuid.UUID, reveal bool) (*CredentialOutput, bool, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, tenantID, cameraID, reveal)
	}
	return nil, false, nil
}

// MockCameraRepo stubs the Repository interface; only GetByID is
// overridable, the rest are no-ops.
type MockCameraRepo struct {
	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*data.Camera, error)
}

func (m *MockCameraRepo) Create(ctx context.Context, c *data.Camera) error { return nil }
func (m *MockCameraRepo) GetByID(ctx context.Context, id uuid.UUID) (*data.Camera, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}
func (m *MockCameraRepo) Update(ctx context.Context, c *data.Camera) error { return nil }
func (m *MockCameraRepo) SetStatus(ctx context.Context, id, tenantID uuid.UUID, enabled bool) error {
	return nil
}
func (m *MockCameraRepo) SoftDelete(ctx context.Context, id, tenantID uuid.UUID) error { return nil }
func (m *MockCameraRepo) CountAll(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return 0, nil
}
func (m *MockCameraRepo) BulkUpdateStatus(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, enabled bool) error {
	return nil
}
func (m *MockCameraRepo) BulkAddTags(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, tags []string) error {
	return nil
}
func (m *MockCameraRepo) BulkRemoveTags(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, tags []string) error {
	return nil
}
func (m *MockCameraRepo) List(ctx context.Context, tenantID uuid.UUID, filter data.CameraFilter, limit, offset int) ([]*data.Camera, int, error) {
	return nil, 0, nil
}
