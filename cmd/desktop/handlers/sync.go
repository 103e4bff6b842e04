package handlers

import (
	"context"
	"net/http"
	"strconv"

	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
	"github.com/smarttourjo/core/internal/sync/queue"
	"github.com/smarttourjo/core/internal/sync/scheduler"
)

// SyncHandler exposes the offline queue and the background scheduler.
type SyncHandler struct {
	scheduler *scheduler.Scheduler
	queue     *queue.Queue
	onOnline  func(online bool)
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(s *scheduler.Scheduler, q *queue.Queue) *SyncHandler {
	return &SyncHandler{scheduler: s, queue: q}
}

// SetOnlineListener registers fn to be called after each connectivity report.
func (h *SyncHandler) SetOnlineListener(fn func(online bool)) {
	h.onOnline = fn
}

// GetStatus handles GET /sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.GetStatus(r.Context()))
}

// SyncNow handles POST /sync/now and waits for the drain to finish.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TriggerSync handles POST /sync/trigger. The sync runs in the background;
// progress is pushed over the WebSocket.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	// The request context ends with the response
	if !h.scheduler.TriggerSync(context.WithoutCancel(r.Context())) {
		writeJSON(w, http.StatusConflict, ErrorResponse{Code: "SYNC_IN_PROGRESS", Message: "sync already in progress"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "started"})
}

// ListPending handles GET /sync/pending?all=true
func (h *SyncHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	rows, err := h.queue.Rows(r.Context(), all)
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []models.SyncQueueRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// SetOnline handles PUT /sync/online with {"online": bool}.
func (h *SyncHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Online *bool `json:"online"`
	}
	if err := decodeBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if request.Online == nil {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "online is required"))
		return
	}
	h.scheduler.SetOnlineStatus(*request.Online)
	if h.onOnline != nil {
		h.onOnline(*request.Online)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": *request.Online})
}

// RunMaintenance handles POST /maintenance
func (h *SyncHandler) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	h.scheduler.RunMaintenance(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "completed"})
}
