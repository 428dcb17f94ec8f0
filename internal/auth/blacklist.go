package auth

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// TokenBlacklist defines interface for checking revoked tokens
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, tenantID, jti string) (bool, error)
	AddToBlacklist(ctx context.Context, tenantID, jti string, ttl time.Duration) error
}

type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func (r *RedisBlacklist) IsBlacklisted(ctx context.Context, tenantID, jti string) (bool, error) {
	// Tenant scoped key: blacklist:tenant:jti
	key := fmt.Sprintf("blacklist:%s:%s", tenantID, jti)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (r *RedisBlacklist) AddToBlacklist(ctx context.Context, tenantID, jti string, ttl time.Duration) error {
	key := fmt.Sprintf("blacklist:%s:%s", tenantID, jti)
	return r.client.Set(ctx, key, "revoked", ttl).Err()
}

// CachedBlacklist wraps a TokenBlacklist with a bounded positive cache
// so every request hitting the JWT middleware doesn't round-trip to
// Redis once a jti is known revoked (the common case on a compromised
// token still being replayed). Misses always fall through to the
// underlying store, since a cache of "not blacklisted" entries would go
// stale the instant a token is revoked.
type CachedBlacklist struct {
	next  TokenBlacklist
	cache *lru.Cache[string, struct{}]
}

// NewCachedBlacklist wraps next with an LRU of the given size.
func NewCachedBlacklist(next TokenBlacklist, size int) (*CachedBlacklist, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("auth: new blacklist cache: %w", err)
	}
	return &CachedBlacklist{next: next, cache: c}, nil
}

func cacheKey(tenantID, jti string) string { return tenantID + ":" + jti }

func (c *CachedBlacklist) IsBlacklisted(ctx context.Context, tenantID, jti string) (bool, error) {
	if _, ok := c.cache.Get(cacheKey(tenantID, jti)); ok {
		return true, nil
	}
	blacklisted, err := c.next.IsBlacklisted(ctx, tenantID, jti)
	if err != nil {
		return false, err
	}
	if blacklisted {
		c.cache.Add(cacheKey(tenantID, jti), struct{}{})
	}
	return blacklisted, nil
}

func (c *CachedBlacklist) AddToBlacklist(ctx context.Context, tenantID, jti string, ttl time.Duration) error {
	if err := c.next.AddToBlacklist(ctx, tenantID, jti, ttl); err != nil {
		return err
	}
	c.cache.Add(cacheKey(tenantID, jti), struct{}{})
	return nil
}
