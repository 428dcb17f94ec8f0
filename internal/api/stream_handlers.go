package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sudharshan/ppe-monitor/internal/pipeline"
)

// StreamHandler exposes read-only pipeline status as a chi sub-router
// mounted under /api/v1/streams, alongside the net/http method-pattern
// mux that serves the tenant CRUD surface.
type StreamHandler struct {
	Manager *pipeline.Manager
}

func NewStreamHandler(mgr *pipeline.Manager) *StreamHandler {
	return &StreamHandler{Manager: mgr}
}

// Router returns a chi.Router exposing the stream status surface,
// mountable as a subtree under the main mux.
func (h *StreamHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListActive)
	r.Get("/{camera_id}", h.GetStatus)
	return r
}

type streamStatus struct {
	CameraID    string `json:"camera_id"`
	Subscribers int    `json:"subscribers"`
}

func (h *StreamHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	active := h.Manager.Active()
	out := make([]streamStatus, 0, len(active))
	for _, id := range active {
		out = append(out, streamStatus{CameraID: id, Subscribers: h.Manager.SubscriberCount(id)})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (h *StreamHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "camera_id")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(streamStatus{
		CameraID:    cameraID,
		Subscribers: h.Manager.SubscriberCount(cameraID),
	})
}
