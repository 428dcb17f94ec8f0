// Package session tracks login sessions and failed-login lockouts in
// Redis. Sessions expire with the refresh token they back; each user is
// capped to a fixed number of concurrent sessions, oldest evicted first.
package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	MaxSessionsPerUser = 5
	SessionTTL         = 7 * 24 * time.Hour // matches refresh-token lifetime
	LockoutTTL         = 15 * time.Minute
	LockoutThreshold   = 5
)

type Manager struct {
	client *redis.Client
}

func NewManager(addr string, password string) *Manager {
	return &Manager{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})}
}

func sessionKey(sessionID string) string { return "session:" + sessionID }
func userSetKey(userID string) string    { return "user_sessions:" + userID }

// CreateSession registers a session under the user's sorted set (scored
// by creation time) and evicts the oldest entries past
// MaxSessionsPerUser.
func (m *Manager) CreateSession(ctx context.Context, userID, tenantID, sessionID string) error {
	now := float64(time.Now().Unix())

	pipe := m.client.Pipeline()
	pipe.ZAdd(ctx, userSetKey(userID), redis.Z{Score: now, Member: sessionID})
	pipe.Expire(ctx, userSetKey(userID), SessionTTL)
	pipe.HSet(ctx, sessionKey(sessionID), "tenant_id", tenantID, "user_id", userID, "created_at", now)
	pipe.Expire(ctx, sessionKey(sessionID), SessionTTL)
	// Keep the newest MaxSessionsPerUser entries.
	pipe.ZRemRangeByRank(ctx, userSetKey(userID), 0, int64(-(MaxSessionsPerUser + 1)))

	_, err := pipe.Exec(ctx)
	return err
}

func (m *Manager) RevokeSession(ctx context.Context, sessionID string) error {
	userID, err := m.client.HGet(ctx, sessionKey(sessionID), "user_id").Result()
	if err != nil && err != redis.Nil {
		return err
	}

	pipe := m.client.Pipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	if userID != "" {
		pipe.ZRem(ctx, userSetKey(userID), sessionID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (m *Manager) RevokeAllUserSessions(ctx context.Context, userID string) error {
	sessionIDs, err := m.client.ZRange(ctx, userSetKey(userID), 0, -1).Result()
	if err != nil {
		return err
	}
	if len(sessionIDs) == 0 {
		return nil
	}

	pipe := m.client.Pipeline()
	pipe.Del(ctx, userSetKey(userID))
	for _, sid := range sessionIDs {
		pipe.Del(ctx, sessionKey(sid))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// CheckLockout reports whether this tenant/email pair is currently
// locked out of login.
func (m *Manager) CheckLockout(ctx context.Context, tenantID, email string) (bool, error) {
	val, err := m.client.Get(ctx, "lockout:"+tenantID+":"+email).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "locked", nil
}

// RecordFailedAttempt counts a failed login within a fixed window that
// opens at the first failure, and converts the count into a hard lock at
// the threshold.
func (m *Manager) RecordFailedAttempt(ctx context.Context, tenantID, email string) error {
	countKey := "lockout_count:" + tenantID + ":" + email
	count, err := m.client.Incr(ctx, countKey).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		m.client.Expire(ctx, countKey, LockoutTTL)
	}

	if count >= LockoutThreshold {
		m.client.Set(ctx, "lockout:"+tenantID+":"+email, "locked", LockoutTTL)
		m.client.Del(ctx, countKey)
	}
	return nil
}
