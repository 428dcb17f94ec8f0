package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/sudharshan/ppe-monitor/internal/api"
	"github.com/sudharshan/ppe-monitor/internal/hub"
	"github.com/sudharshan/ppe-monitor/internal/pipeline"
	"github.com/sudharshan/ppe-monitor/internal/tokens"
)

type missingCameraStore struct{}

func (missingCameraStore) Get(ctx context.Context, cameraID string) (pipeline.Camera, error) {
	return pipeline.Camera{}, errors.New("not found")
}

func monitorTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	tm := tokens.NewManager("monitor-test-secret")
	token, err := tm.GenerateAccessToken("user-1", "tenant-1")
	require.NoError(t, err)

	mgr := pipeline.NewManager(pipeline.Deps{
		Cameras:   missingCameraStore{},
		Hub:       hub.New(),
		Tuneables: pipeline.DefaultTuneables(),
	})
	h := api.NewMonitorHandler(tm, mgr)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/monitor/{camera_id}", h.ServeWS)
	return httptest.NewServer(mux), token
}

func TestMonitorWS_RejectsMissingToken(t *testing.T) {
	srv, _ := monitorTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/monitor/cam-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMonitorWS_PingGetsPong(t *testing.T) {
	srv, token := monitorTestServer(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/monitor/cam-1?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))

	// The subscriber may receive a stream error first (the test camera
	// store resolves nothing); scan until the pong arrives.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err, "expected a pong before the read deadline")
		var m map[string]any
		require.NoError(t, json.Unmarshal(msg, &m))
		if m["type"] == "pong" {
			return
		}
	}
}
