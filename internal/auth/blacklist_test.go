package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sudharshan/ppe-monitor/internal/auth"
)

type fakeBlacklist struct {
	revoked map[string]bool
	calls   int
}

func newFakeBlacklist() *fakeBlacklist {
	return &fakeBlacklist{revoked: make(map[string]bool)}
}

func (f *fakeBlacklist) IsBlacklisted(ctx context.Context, tenantID, jti string) (bool, error) {
	f.calls++
	return f.revoked[tenantID+":"+jti], nil
}

func (f *fakeBlacklist) AddToBlacklist(ctx context.Context, tenantID, jti string, ttl time.Duration) error {
	f.revoked[tenantID+":"+jti] = true
	return nil
}

func TestCachedBlacklistServesRevokedFromCache(t *testing.T) {
	fake := newFakeBlacklist()
	cached, err := auth.NewCachedBlacklist(fake, 16)
	if err != nil {
		t.Fatalf("NewCachedBlacklist: %v", err)
	}

	ctx := context.Background()
	if err := cached.AddToBlacklist(ctx, "tenant-1", "jti-1", time.Minute); err != nil {
		t.Fatalf("AddToBlacklist: %v", err)
	}

	callsBefore := fake.calls
	for i := 0; i < 5; i++ {
		blacklisted, err := cached.IsBlacklisted(ctx, "tenant-1", "jti-1")
		if err != nil {
			t.Fatalf("IsBlacklisted: %v", err)
		}
		if !blacklisted {
			t.Fatalf("expected jti-1 to be blacklisted")
		}
	}
	if fake.calls != callsBefore {
		t.Errorf("expected cached hits to avoid underlying calls, got %d new calls", fake.calls-callsBefore)
	}
}

func TestCachedBlacklistFallsThroughOnMiss(t *testing.T) {
	fake := newFakeBlacklist()
	cached, err := auth.NewCachedBlacklist(fake, 16)
	if err != nil {
		t.Fatalf("NewCachedBlacklist: %v", err)
	}

	blacklisted, err := cached.IsBlacklisted(context.Background(), "tenant-1", "jti-unknown")
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if blacklisted {
		t.Errorf("expected jti-unknown not to be blacklisted")
	}
	if fake.calls == 0 {
		t.Errorf("expected a miss to fall through to the underlying store")
	}
}

type erroringBlacklist struct{}

func (erroringBlacklist) IsBlacklisted(ctx context.Context, tenantID, jti string) (bool, error) {
	return false, errors.New("redis unavailable")
}

func (erroringBlacklist) AddToBlacklist(ctx context.Context, tenantID, jti string, ttl time.Duration) error {
	return errors.New("redis unavailable")
}

func TestCachedBlacklistPropagatesUnderlyingError(t *testing.T) {
	cached, err := auth.NewCachedBlacklist(erroringBlacklist{}, 16)
	if err != nil {
		t.Fatalf("NewCachedBlacklist: %v", err)
	}

	if _, err := cached.IsBlacklisted(context.Background(), "t", "j"); err == nil {
		t.Fatalf("expected error to propagate from underlying store")
	}
}
