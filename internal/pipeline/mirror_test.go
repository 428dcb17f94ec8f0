package pipeline

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestKeyMirror_WritesHashWithTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	m := NewKeyMirror(rdb, 15*time.Second)

	mono := time.Date(2025, 1, 1, 0, 0, 10, 0, time.UTC)
	wall := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	m.Touch(Key{CameraID: "cam-1", WorkerID: 3}, TimerState{
		ViolationStartedAt: mono.Add(-2 * time.Second),
		LastSeenAt:         mono,
	}, mono, wall)
	m.Close()

	require.True(t, mr.Exists("track:cam-1:3"))
	require.Equal(t, "1", mr.HGet("track:cam-1:3", "violating"))
	require.Equal(t, "2.0", mr.HGet("track:cam-1:3", "violating_for_sec"))
	require.Equal(t, wall.Format(time.RFC3339), mr.HGet("track:cam-1:3", "last_seen_at"))
	require.InDelta(t, 15*time.Second, mr.TTL("track:cam-1:3"), float64(time.Second))
}

func TestKeyMirror_ComplianceClearsViolatingFields(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	m := NewKeyMirror(rdb, 15*time.Second)

	mono := time.Date(2025, 1, 1, 0, 0, 10, 0, time.UTC)
	wall := mono
	key := Key{CameraID: "cam-1", WorkerID: 1}
	m.Touch(key, TimerState{ViolationStartedAt: mono.Add(-time.Second), LastSeenAt: mono}, mono, wall)
	m.Touch(key, TimerState{LastSeenAt: mono.Add(time.Second)}, mono.Add(time.Second), wall.Add(time.Second))
	m.Close()

	require.Equal(t, "0", mr.HGet("track:cam-1:1", "violating"))
	require.Equal(t, "", mr.HGet("track:cam-1:1", "violating_for_sec"))
}

func TestKeyMirror_ClearCameraRemovesOnlyItsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	m := NewKeyMirror(rdb, 15*time.Second)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Touch(Key{CameraID: "cam-1", WorkerID: 1}, TimerState{LastSeenAt: now}, now, now)
	m.Touch(Key{CameraID: "cam-1", WorkerID: 2}, TimerState{LastSeenAt: now}, now, now)
	m.Touch(Key{CameraID: "cam-2", WorkerID: 1}, TimerState{LastSeenAt: now}, now, now)

	// Drain the writer before clearing so the deletes cannot race the
	// queued updates.
	m.Close()
	m.ClearCamera("cam-1")

	require.False(t, mr.Exists("track:cam-1:1"))
	require.False(t, mr.Exists("track:cam-1:2"))
	require.True(t, mr.Exists("track:cam-2:1"))
}
