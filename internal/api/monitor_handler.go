package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sudharshan/ppe-monitor/internal/detections"
	"github.com/sudharshan/ppe-monitor/internal/middleware"
	"github.com/sudharshan/ppe-monitor/internal/pipeline"
	"github.com/sudharshan/ppe-monitor/internal/tokens"
)

var monitorUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dev default; restrict in prod deployments
	},
}

// wsSubscriber adapts a gorilla/websocket connection to hub.Subscriber.
// Writes are serialized with a mutex since gorilla/websocket forbids
// concurrent writers on one connection.
type wsSubscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSubscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSubscriber) Close() {
	s.conn.Close()
}

// LicenseGate authorizes capacity-consuming operations against the
// active license; nil disables the check.
type LicenseGate interface {
	CheckOperation(op string, tenantID uuid.UUID) error
}

// MonitorHandler serves the live per-camera monitor WebSocket
// (/ws/monitor/{camera_id}): one subscriber per connection, fanned out
// through internal/hub and kept alive by the stream lifecycle manager.
type MonitorHandler struct {
	Tokens  *tokens.Manager
	Manager *pipeline.Manager
	License LicenseGate
}

func NewMonitorHandler(tm *tokens.Manager, mgr *pipeline.Manager) *MonitorHandler {
	return &MonitorHandler{Tokens: tm, Manager: mgr}
}

func (h *MonitorHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := h.Tokens.ValidateToken(tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	cameraID := r.PathValue("camera_id")
	if cameraID == "" {
		http.Error(w, "missing camera_id", http.StatusBadRequest)
		return
	}

	if h.License != nil {
		tenantID, perr := uuid.Parse(claims.TenantID)
		if perr != nil {
			http.Error(w, "invalid tenant", http.StatusUnauthorized)
			return
		}
		if lerr := h.License.CheckOperation("stream.start", tenantID); lerr != nil {
			http.Error(w, "stream limit reached", http.StatusForbidden)
			return
		}
	}

	conn, err := monitorUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor WS upgrade failed: %v", err)
		return
	}

	sub := &wsSubscriber{conn: conn}
	h.Manager.Subscribe(r.Context(), cameraID, sub)
	log.Printf("monitor WS connected: camera=%s", cameraID)

	defer func() {
		h.Manager.Unsubscribe(cameraID, sub)
		conn.Close()
	}()

	// Read loop only exists to detect disconnect and answer client
	// keepalives; the client never sends commands on this channel.
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if string(msg) == "ping" {
			if err := sub.Send([]byte(`{"type":"pong"}`)); err != nil {
				break
			}
		}
	}
}

// AlertHandler exposes acknowledge operations over persisted alerts
// (acknowledged_at/acknowledged_by).
type AlertHandler struct {
	DB detections.DBTX
}

func NewAlertHandler(db detections.DBTX) *AlertHandler {
	return &AlertHandler{DB: db}
}

func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	alertID := r.PathValue("id")
	if alertID == "" {
		http.Error(w, "missing alert id", http.StatusBadRequest)
		return
	}
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	_, err := h.DB.ExecContext(r.Context(),
		`UPDATE alerts SET acknowledged_at = NOW(), acknowledged_by = $1 WHERE id = $2 AND acknowledged_at IS NULL`,
		ac.UserID, alertID)
	if err != nil {
		http.Error(w, "failed to acknowledge alert", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WorkerHistoryHandler answers "what was worker N's compliance history on
// camera C", reading detection_events directly.
type WorkerHistoryHandler struct {
	DB detections.DBTX
}

func NewWorkerHistoryHandler(db detections.DBTX) *WorkerHistoryHandler {
	return &WorkerHistoryHandler{DB: db}
}

type workerHistoryEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	IsCompliant   bool      `json:"is_compliant"`
	ViolationType string    `json:"violation_type,omitempty"`
	SnapshotURL   string    `json:"snapshot_url,omitempty"`
}

func (h *WorkerHistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	cameraID := r.PathValue("camera_id")
	workerID := r.PathValue("worker_id")
	if cameraID == "" || workerID == "" {
		http.Error(w, "missing camera_id or worker_id", http.StatusBadRequest)
		return
	}

	rows, err := h.DB.QueryContext(r.Context(),
		`SELECT timestamp, is_compliant, COALESCE(violation_type, ''), COALESCE(snapshot_url, '')
		 FROM detection_events
		 WHERE camera_id = $1 AND worker_id = $2
		 ORDER BY timestamp DESC
		 LIMIT 200`, cameraID, workerID)
	if err != nil {
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var out []workerHistoryEntry
	for rows.Next() {
		var e workerHistoryEntry
		if err := rows.Scan(&e.Timestamp, &e.IsCompliant, &e.ViolationType, &e.SnapshotURL); err != nil {
			http.Error(w, "scan failed", http.StatusInternalServerError)
			return
		}
		out = append(out, e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
