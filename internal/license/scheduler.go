package license

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Scheduler emits expiry warnings on a fixed ladder: 30 days out, 7
// days out, and daily once the license is in its grace period. Each
// rung fires at most once per calendar day.
type Scheduler struct {
	manager    *Manager
	lastAlerts map[string]time.Time
	mu         sync.Mutex
}

func NewScheduler(m *Manager) *Scheduler {
	return &Scheduler{
		manager:    m,
		lastAlerts: make(map[string]time.Time),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.Check()

	ticker := time.NewTicker(time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Check()
			}
		}
	}()
}

func (s *Scheduler) Check() {
	state := s.manager.GetState()
	if state.Status != StatusValid && state.Status != StatusExpiredGrace {
		// Missing/invalid licenses are surfaced at request time by
		// CheckOperation; there's no expiry to warn about.
		return
	}

	var alertType string
	switch {
	case state.Status == StatusExpiredGrace:
		alertType = "grace_daily"
	case state.DaysToExpiry <= 7:
		alertType = "7d"
	case state.DaysToExpiry <= 30:
		alertType = "30d"
	default:
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if last, ok := s.lastAlerts[alertType]; ok && sameDay(last, now) {
		return
	}

	log.Println(fmt.Sprintf("license: ALERT [%s]: expires in %d days", alertType, state.DaysToExpiry))
	s.lastAlerts[alertType] = now
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
