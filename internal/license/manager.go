package license

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/audit"
)

// systemTenant attributes license lifecycle audit events, which are
// process-wide rather than tenant-scoped.
var systemTenant = uuid.MustParse("00000000-0000-0000-0000-000000000000")

// graceDays is how long past expiry the system keeps serving (with
// capacity operations blocked) before blocking everything.
const graceDays = 30

type Manager struct {
	mu           sync.RWMutex
	state        LicenseState
	parser       *Parser
	usage        UsageProvider
	path         string
	auditService *audit.Service
}

func NewManager(path string, parser *Parser, usage UsageProvider, audit *audit.Service) *Manager {
	m := &Manager{
		path:         path,
		parser:       parser,
		usage:        usage,
		auditService: audit,
		state:        LicenseState{Status: StatusMissing, ReasonCode: "init"},
	}
	m.Reload()
	return m
}

// Reload re-reads and re-verifies the license file, swapping the
// evaluated state atomically and auditing the outcome.
func (m *Manager) Reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	payload, status, err := m.parser.ParseAndVerify(m.path)

	evt := audit.AuditEvent{
		EventID:    uuid.New(),
		Action:     "license.reload",
		TargetType: "license",
		TargetID:   m.path,
		TenantID:   systemTenant,
		CreatedAt:  time.Now(),
	}

	switch {
	case err != nil:
		m.state = LicenseState{Status: status, ReasonCode: err.Error(), LastReload: time.Now()}
		evt.Result = "failure"
		evt.ReasonCode = err.Error()
	case payload == nil:
		m.state = LicenseState{Status: status, ReasonCode: "payload_missing", LastReload: time.Now()}
		evt.Result = "failure"
		evt.ReasonCode = string(status)
	default:
		m.state = evaluate(payload)
		evt.Result = "success"
	}

	if m.auditService != nil {
		go m.auditService.WriteEvent(context.Background(), evt)
	}
}

// evaluate derives the runtime status from a verified payload: a
// not-yet-valid license is rejected, an expired one degrades through
// the grace window.
func evaluate(payload *LicensePayload) LicenseState {
	now := time.Now().UTC()

	if now.Before(payload.IssuedAt) {
		return LicenseState{
			Status:     StatusParseError,
			ReasonCode: "future_issue_date",
			LastReload: time.Now(),
		}
	}

	status := StatusValid
	var daysToExpiry int
	if now.After(payload.ValidUntil) {
		daysOver := int(now.Sub(payload.ValidUntil).Hours() / 24)
		daysToExpiry = -daysOver
		if daysOver <= graceDays {
			status = StatusExpiredGrace
		} else {
			status = StatusExpiredBlocked
		}
	} else {
		daysToExpiry = int(payload.ValidUntil.Sub(now).Hours() / 24)
	}

	return LicenseState{
		Status:       status,
		Payload:      payload,
		LastReload:   time.Now(),
		DaysToExpiry: daysToExpiry,
	}
}

// GetState returns a copy; Payload is shared but treated read-only.
func (m *Manager) GetState() LicenseState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// GetLimits returns the active limits, or the zero value when no valid
// payload is loaded (CheckOperation denies every operation in that
// state).
func (m *Manager) GetLimits(tenantID uuid.UUID) LicenseLimits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.Payload == nil {
		return LicenseLimits{}
	}
	return m.state.Payload.Limits
}

// CheckOperation authorizes op for tenantID against the license status
// and quota limits. In the grace period capacity-increasing operations
// are denied while read/view operations keep working.
func (m *Manager) CheckOperation(op string, tenantID uuid.UUID) error {
	state := m.GetState()

	switch state.Status {
	case StatusMissing, StatusParseError, StatusInvalidSignature:
		return fmt.Errorf("license_invalid")
	case StatusExpiredBlocked:
		return fmt.Errorf("license_expired_blocked")
	case StatusExpiredGrace:
		if isCapacityOp(op) {
			return fmt.Errorf("license_expired_grace")
		}
	}

	if state.Payload == nil {
		return fmt.Errorf("license_invalid")
	}

	switch op {
	case "camera.create":
		usage, err := m.usage.CurrentUsage(context.Background(), tenantID)
		if err != nil {
			return err
		}
		if usage.Cameras >= state.Payload.Limits.MaxCameras {
			return fmt.Errorf("limit_exceeded")
		}
	case "stream.start":
		if state.Payload.Limits.MaxStreams <= 0 {
			break
		}
		usage, err := m.usage.CurrentUsage(context.Background(), tenantID)
		if err != nil {
			return err
		}
		if usage.ActiveStreams >= state.Payload.Limits.MaxStreams {
			return fmt.Errorf("limit_exceeded")
		}
	}

	return nil
}

func isCapacityOp(op string) bool {
	return op == "camera.create" || op == "stream.start"
}
