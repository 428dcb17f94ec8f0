// Package pipeline assembles the per-camera detection pipeline: the
// per-worker violation state machine, periodic compliance sampler, and
// stream lifecycle manager.
package pipeline

import (
	"sync"
	"time"

	"github.com/sudharshan/ppe-monitor/internal/compliance"
)

// Key is the global per-worker tracking key.
type Key struct {
	CameraID string
	WorkerID int
}

type workerTimers struct {
	violationStartedAt   time.Time
	lastViolationSavedAt time.Time
	lastSeenAt           time.Time
}

// Default tuneables.
const (
	DefaultViolationPersistence = 5 * time.Second
	DefaultViolationCooldown    = 5 * time.Second
	DefaultComplianceInterval   = 10 * time.Second
	DefaultStaleThreshold       = 15 * time.Second
)

// ViolationTracker holds the global per-(camera,worker) timer table. A
// single mutex guards it.
type ViolationTracker struct {
	mu          sync.Mutex
	entries     map[Key]*workerTimers
	persistence time.Duration
	cooldown    time.Duration
}

func NewViolationTracker(persistence, cooldown time.Duration) *ViolationTracker {
	if persistence <= 0 {
		persistence = DefaultViolationPersistence
	}
	if cooldown <= 0 {
		cooldown = DefaultViolationCooldown
	}
	return &ViolationTracker{
		entries:     make(map[Key]*workerTimers),
		persistence: persistence,
		cooldown:    cooldown,
	}
}

// Observe applies the violation state machine for one worker's classification
// on one frame, using monotonic time `now`. It returns true exactly when
// a violation event should be emitted (persisted + alerted), per the
// canonical sustained-violation behaviour.
func (v *ViolationTracker) Observe(key Key, status compliance.Status, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[key]
	if !ok {
		e = &workerTimers{}
		v.entries[key] = e
	}
	e.lastSeenAt = now

	if status != compliance.Violation {
		// Compliant or Unknown clears the persistence timer but keeps
		// the cooldown timer so a reappearing violation still respects
		// it.
		e.violationStartedAt = time.Time{}
		return false
	}

	if e.violationStartedAt.IsZero() {
		e.violationStartedAt = now
		return false
	}
	if now.Sub(e.violationStartedAt) < v.persistence {
		return false
	}
	if !e.lastViolationSavedAt.IsZero() && now.Sub(e.lastViolationSavedAt) < v.cooldown {
		return false
	}
	e.lastViolationSavedAt = now
	return true
}

// TimerState is a read-only snapshot of one key's timers, in monotonic
// time. Zero fields mean the corresponding timer is unset.
type TimerState struct {
	ViolationStartedAt   time.Time
	LastViolationSavedAt time.Time
	LastSeenAt           time.Time
}

// Timers returns a snapshot of key's timer state, if the key is live.
func (v *ViolationTracker) Timers(key Key) (TimerState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[key]
	if !ok {
		return TimerState{}, false
	}
	return TimerState{
		ViolationStartedAt:   e.violationStartedAt,
		LastViolationSavedAt: e.lastViolationSavedAt,
		LastSeenAt:           e.lastSeenAt,
	}, true
}

// ClearCamera removes every entry for cameraID, used on stream teardown
// to prevent a stale cooldown from suppressing a genuine alert after a
// reconnect.
func (v *ViolationTracker) ClearCamera(cameraID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k := range v.entries {
		if k.CameraID == cameraID {
			delete(v.entries, k)
		}
	}
}

// Sweep removes entries whose lastSeenAt is older than staleThreshold,
// relative to monotonic time `now`.
func (v *ViolationTracker) Sweep(now time.Time, staleThreshold time.Duration) {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, e := range v.entries {
		if now.Sub(e.lastSeenAt) > staleThreshold {
			delete(v.entries, k)
		}
	}
}

// Len reports the number of live entries; used by teardown tests.
func (v *ViolationTracker) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// HasCamera reports whether any entry still references cameraID.
func (v *ViolationTracker) HasCamera(cameraID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k := range v.entries {
		if k.CameraID == cameraID {
			return true
		}
	}
	return false
}
