package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/cameras"
	"github.com/sudharshan/ppe-monitor/internal/data"
)

// Prober checks whether a camera's stream source is reachable. It
// returns the resulting status, a short reason code, and the round-trip
// time in milliseconds.
type Prober interface {
	Probe(ctx context.Context, tenantID, cameraID uuid.UUID, source string) (data.CameraHealthStatus, string, int)
}

const probeTimeout = 5 * time.Second

// StreamProber probes network stream sources with a single RTSP OPTIONS
// round trip, injecting the camera's stored credentials when present.
// Device-index and file sources have no network endpoint to probe; the
// repository's target query excludes them.
type StreamProber struct {
	creds cameras.CredentialProvider
}

func NewStreamProber(creds cameras.CredentialProvider) *StreamProber {
	return &StreamProber{creds: creds}
}

// Probe maps the outcome per the status vocabulary: 200 is ONLINE,
// 401/403 is AUTH_FAILED, a dial or read failure is OFFLINE, anything
// else is STREAM_ERROR.
func (p *StreamProber) Probe(ctx context.Context, tenantID, cameraID uuid.UUID, source string) (data.CameraHealthStatus, string, int) {
	start := time.Now()

	out, found, err := p.creds.GetCredentials(ctx, tenantID, cameraID, true)
	if err != nil {
		// Credential store failure, not a camera failure.
		return data.HealthStatusStreamError, "credential_fetch_error", 0
	}

	target, err := url.Parse(source)
	if err != nil {
		return data.HealthStatusStreamError, "invalid_url", 0
	}
	if found && out.Data != nil {
		target.User = url.UserPassword(out.Data.Username, out.Data.Password)
	}

	port := target.Port()
	if port == "" {
		port = "554"
	}

	d := net.Dialer{Timeout: probeTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(target.Hostname(), port))
	if err != nil {
		return data.HealthStatusOffline, "connection_refused_or_timeout", 0
	}
	defer conn.Close()

	req := fmt.Sprintf("OPTIONS %s RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: ppe-monitor/1.0\r\n\r\n", target.String())
	if _, err := conn.Write([]byte(req)); err != nil {
		return data.HealthStatusOffline, "write_failed", 0
	}

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(probeTimeout))
	n, err := conn.Read(buf)
	if err != nil {
		return data.HealthStatusOffline, "read_timeout", 0
	}

	// Status line looks like "RTSP/1.0 200 OK".
	statusLine, _, _ := strings.Cut(string(buf[:n]), "\r\n")
	fields := strings.Fields(statusLine)
	if len(fields) < 2 {
		return data.HealthStatusStreamError, "malformed_response", 0
	}

	code := fields[1]
	rtt := int(time.Since(start).Milliseconds())
	switch code {
	case "200":
		return data.HealthStatusOnline, "ok", rtt
	case "401", "403":
		return data.HealthStatusAuthFailed, "unauthorized", rtt
	default:
		return data.HealthStatusStreamError, "rtsp_" + code, rtt
	}
}
