// Package ratelimit counts requests per key in Redis: a fixed window
// anchored at the key's first request, atomically incremented and
// expired by one Lua script so concurrent API instances share a budget.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrRedisUnavailable  = errors.New("redis unavailable")
)

type Scope string

const (
	ScopeGlobalIP Scope = "ip"
	ScopeUser     Scope = "user"
	ScopeLogin    Scope = "login"
	ScopeEndpoint Scope = "endpoint"
)

// Decision is one allow/deny verdict plus the header-friendly budget
// fields (limit, remaining, reset, retry-after).
type Decision struct {
	Scope      Scope
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter int // seconds
	Allowed    bool
}

type LimitConfig struct {
	Rate   int           `yaml:"rate"`
	Window time.Duration `yaml:"window"`
	Burst  int           `yaml:"burst"`
}

// incrWithExpiry counts the request and starts the window's TTL on the
// first hit, in one atomic round trip.
var incrWithExpiry = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if tonumber(current) == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return current
`)

type Limiter struct {
	client *redis.Client
	salt   string
}

func NewLimiter(client *redis.Client, salt string) *Limiter {
	if salt == "" {
		salt = "default-salt-change-me"
	}
	return &Limiter{client: client, salt: salt}
}

// HashIP hashes a client address with the instance salt so rate-limit
// keys don't store raw IPs in Redis.
func (l *Limiter) HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip + l.salt))
	return hex.EncodeToString(sum[:])
}

// CheckRateLimit counts this request against key's window and reports
// whether it fit. The reset/retry-after fields are upper bounds (the
// true TTL would cost a second round trip per request).
func (l *Limiter) CheckRateLimit(ctx context.Context, key string, config LimitConfig) (*Decision, error) {
	count, err := incrWithExpiry.Run(ctx, l.client, []string{key}, config.Window.Milliseconds()).Int()
	if err != nil {
		return nil, ErrRedisUnavailable
	}

	remaining := config.Rate - count
	if remaining < 0 {
		remaining = 0
	}

	return &Decision{
		Limit:      config.Rate,
		Remaining:  remaining,
		Reset:      time.Now().Add(config.Window),
		RetryAfter: int(config.Window.Seconds()),
		Allowed:    count <= config.Rate,
	}, nil
}
