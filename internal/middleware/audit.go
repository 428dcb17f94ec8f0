package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/audit"
)

type AuditMiddleware struct {
	service *audit.Service
}

func NewAuditMiddleware(s *audit.Service) *AuditMiddleware {
	return &AuditMiddleware{service: s}
}

// LogRequest records every mutating request (and every auth-endpoint
// hit, mutating or not) to the audit trail. The write happens off the
// request goroutine so audit latency never shows up in API latency.
func (m *AuditMiddleware) LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &auditStatusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		mutating := r.Method == http.MethodPost || r.Method == http.MethodPut ||
			r.Method == http.MethodPatch || r.Method == http.MethodDelete
		if !mutating && !strings.HasPrefix(r.URL.Path, "/api/v1/auth/") {
			return
		}

		evt := audit.AuditEvent{
			EventID:    uuid.New(),
			Action:     clip("http."+strings.ToLower(r.Method), 100),
			TargetType: "http_route",
			TargetID:   clip(r.URL.Path, 100),
			Result:     "success",
			RequestID:  clip(r.Header.Get("X-Request-ID"), 100),
			ClientIP:   clip(clientAddr(r), 50),
			UserAgent:  clip(r.UserAgent(), 255),
			Metadata:   json.RawMessage(fmt.Sprintf(`{"latency_ms": %d}`, time.Since(start).Milliseconds())),
			CreatedAt:  time.Now(),
		}
		if rec.status >= 400 {
			evt.Result = "failure"
			evt.ReasonCode = clip(fmt.Sprintf("http_%d", rec.status), 50)
		}

		if ac, ok := GetAuthContext(r.Context()); ok {
			if tid, err := uuid.Parse(ac.TenantID); err == nil {
				evt.TenantID = tid
			}
			if uid, err := uuid.Parse(ac.UserID); err == nil {
				evt.ActorUserID = &uid
			}
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = m.service.WriteEvent(ctx, evt)
		}()
	})
}

type auditStatusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *auditStatusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func clientAddr(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func clip(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
