package middleware

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/sudharshan/ppe-monitor/internal/ratelimit"
	"github.com/sudharshan/ppe-monitor/internal/tokens"
)

// InternalServiceKey signs service-to-service tokens that bypass rate
// limiting entirely; empty disables the bypass.
var InternalServiceKey = os.Getenv("INTERNAL_SERVICE_KEY")

type RateLimitMiddleware struct {
	limiter         *ratelimit.Limiter
	tokens          TokenValidator
	config          *Config
	endpointsLimits map[string]ratelimit.LimitConfig
}

type Config struct {
	GlobalIP  ratelimit.LimitConfig            `yaml:"global_ip"`
	User      ratelimit.LimitConfig            `yaml:"user"`
	Endpoints map[string]ratelimit.LimitConfig `yaml:"endpoints"`
}

func NewRateLimitMiddleware(l *ratelimit.Limiter, t TokenValidator, c Config, epLimits map[string]ratelimit.LimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:         l,
		tokens:          t,
		config:          &c,
		endpointsLimits: epLimits,
	}
}

// isInternalService accepts a bearer token of type "service" signed
// with the internal key. Internal callers get to skip the limiter; a
// forged or user token never matches.
func (m *RateLimitMiddleware) isInternalService(r *http.Request) bool {
	if InternalServiceKey == "" {
		return false
	}
	bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}

	claims, err := tokens.NewManager(InternalServiceKey).ValidateToken(bearer)
	if err != nil {
		return false
	}
	return claims.TokenType == "service"
}

// GlobalLimiter applies, in order: the per-IP budget, the per-user
// budget for authenticated callers, and any per-endpoint budget
// configured for the path. Redis being down fails closed on auth
// endpoints (they're the brute-force target) and open elsewhere.
func (m *RateLimitMiddleware) GlobalLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isInternalService(r) {
			next.ServeHTTP(w, r)
			return
		}

		ip := strings.Split(r.RemoteAddr, ":")[0]
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ip = strings.Split(xff, ",")[0]
		}
		ipHash := m.limiter.HashIP(ip)

		decision, err := m.limiter.CheckRateLimit(r.Context(), "rl:ip:"+ipHash, m.config.GlobalIP)
		if err != nil {
			RecordRedisError()
			if strings.HasPrefix(r.URL.Path, "/api/v1/auth/") {
				log.Printf("ratelimit: redis error on auth endpoint, failing closed: %v", err)
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}
			log.Printf("ratelimit: redis error, failing open: %v", err)
			next.ServeHTTP(w, r)
			return
		}
		if !decision.Allowed {
			RecordRateLimit("ip", "denied")
			m.writeRateLimitHeaders(w, decision)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		RecordRateLimit("ip", "allowed")

		if ac, ok := GetAuthContext(r.Context()); ok {
			userKey := "rl:user:" + ac.TenantID + ":" + ac.UserID
			uDecision, err := m.limiter.CheckRateLimit(r.Context(), userKey, m.config.User)
			if err == nil && !uDecision.Allowed {
				RecordRateLimit("user", "denied")
				m.writeRateLimitHeaders(w, uDecision)
				http.Error(w, "User rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			if err == nil {
				RecordRateLimit("user", "allowed")
			}
		}

		if limitConfig, found := m.endpointsLimits[r.URL.Path]; found {
			epKey := "rl:ep:" + ipHash + ":" + r.URL.Path
			epDecision, err := m.limiter.CheckRateLimit(r.Context(), epKey, limitConfig)
			if err == nil && !epDecision.Allowed {
				RecordRateLimit("endpoint", "denied")
				m.writeRateLimitHeaders(w, epDecision)
				http.Error(w, "Endpoint rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			if err == nil {
				RecordRateLimit("endpoint", "allowed")
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) writeRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
}
