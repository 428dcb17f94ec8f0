package pipeline

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyMirror mirrors the per-worker timer table into Redis as
// track:<camera_id>:<worker_id> hashes with a TTL of stale_threshold, so
// an operator dashboard can observe live per-worker state without
// reaching into process memory. The in-memory ViolationTracker remains
// the source of truth the pipeline reads and writes; the mirror is
// strictly best-effort and never blocks a camera task — updates go
// through a bounded queue and are dropped under pressure.
type KeyMirror struct {
	rdb     *redis.Client
	ttl     time.Duration
	updates chan mirrorUpdate
	done    chan struct{}
}

type mirrorUpdate struct {
	key    Key
	timers TimerState
	mono   time.Time
	wall   time.Time
}

func NewKeyMirror(rdb *redis.Client, ttl time.Duration) *KeyMirror {
	if ttl <= 0 {
		ttl = DefaultStaleThreshold
	}
	m := &KeyMirror{
		rdb:     rdb,
		ttl:     ttl,
		updates: make(chan mirrorUpdate, 256),
		done:    make(chan struct{}),
	}
	go m.loop()
	return m
}

// Touch enqueues one key's current timer state. mono and wall are the
// camera task's two clock reads for the frame, used to express the
// monotonic timer values as wall-clock fields a dashboard can render.
func (m *KeyMirror) Touch(key Key, timers TimerState, mono, wall time.Time) {
	select {
	case m.updates <- mirrorUpdate{key: key, timers: timers, mono: mono, wall: wall}:
	default:
	}
}

// ClearCamera deletes every mirrored key for cameraID, paired with the
// tracker's own ClearCamera on stream teardown.
func (m *KeyMirror) ClearCamera(cameraID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	iter := m.rdb.Scan(ctx, 0, "track:"+cameraID+":*", 100).Iterator()
	for iter.Next(ctx) {
		m.rdb.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("pipeline: mirror clear camera %s: %v", cameraID, err)
	}
}

// Close drains pending updates and stops the writer goroutine.
func (m *KeyMirror) Close() {
	close(m.updates)
	<-m.done
}

func (m *KeyMirror) loop() {
	defer close(m.done)
	for u := range m.updates {
		m.write(u)
	}
}

func (m *KeyMirror) write(u mirrorUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	fields := map[string]any{
		"camera_id":    u.key.CameraID,
		"worker_id":    strconv.Itoa(u.key.WorkerID),
		"last_seen_at": u.wall.Format(time.RFC3339),
		"violating":    "0",
	}
	var stale []string
	if u.timers.ViolationStartedAt.IsZero() {
		stale = append(stale, "violating_for_sec")
	} else {
		fields["violating"] = "1"
		fields["violating_for_sec"] = fmt.Sprintf("%.1f", u.mono.Sub(u.timers.ViolationStartedAt).Seconds())
	}
	if !u.timers.LastViolationSavedAt.IsZero() {
		fields["last_violation_age_sec"] = fmt.Sprintf("%.1f", u.mono.Sub(u.timers.LastViolationSavedAt).Seconds())
	}

	rkey := "track:" + u.key.CameraID + ":" + strconv.Itoa(u.key.WorkerID)
	pipe := m.rdb.Pipeline()
	pipe.HSet(ctx, rkey, fields)
	if len(stale) > 0 {
		pipe.HDel(ctx, rkey, stale...)
	}
	pipe.Expire(ctx, rkey, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("pipeline: mirror write %s: %v", rkey, err)
	}
}
