package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateLimitRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total rate limit decisions by scope and result",
		},
		[]string{"scope", "result"},
	)

	rateLimitRedisErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_redis_errors_total",
			Help: "Total Redis failures encountered while checking rate limits",
		},
	)
)

// RecordRateLimit increments the decision counter for a rate limit scope
// ("ip", "user", "endpoint") and its result ("allowed", "denied").
func RecordRateLimit(scope string, result string) {
	rateLimitRequestsTotal.WithLabelValues(scope, result).Inc()
}

// RecordRedisError increments the Redis-failure counter; GlobalLimiter
// calls this on every CheckRateLimit error regardless of the fail-open/
// fail-closed policy applied for the request.
func RecordRedisError() {
	rateLimitRedisErrorsTotal.Inc()
}
