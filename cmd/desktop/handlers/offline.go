package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smarttourjo/core/internal/db"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
	syncpkg "github.com/smarttourjo/core/internal/sync"
)

// OfflineHandler serves the local cache and records offline mutations.
type OfflineHandler struct {
	engine *syncpkg.SyncEngine
	store  *db.Store
}

// NewOfflineHandler creates a new OfflineHandler.
func NewOfflineHandler(engine *syncpkg.SyncEngine, store *db.Store) *OfflineHandler {
	return &OfflineHandler{engine: engine, store: store}
}

// GetStats handles GET /offline/stats. Partial stats are returned with 200.
func (h *OfflineHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if stats == nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetAvailability handles GET /offline/available
func (h *OfflineHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"available": h.engine.IsOfflineDataAvailable(r.Context())}
	if last, ok := h.engine.LastSync(r.Context()); ok {
		resp["last_sync"] = last.UnixMilli()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Download handles POST /offline/download
func (h *OfflineHandler) Download(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DownloadOfflineData(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "downloaded"})
}

// Clear handles DELETE /offline
func (h *OfflineHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearOfflineData(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDestinations handles GET /destinations?category=&search=&limit=
func (h *OfflineHandler) ListDestinations(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := db.Query{}
	if c := params.Get("category"); c != "" {
		q = q.Where(db.CategoryFilter{Category: c})
	}
	if s := params.Get("search"); s != "" {
		q = q.Where(db.SearchFilter{Term: s})
	}
	if l := params.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, apperrors.New(apperrors.ErrInvalid, "limit must be a non-negative integer"))
			return
		}
		q.Limit = n
	}

	items, err := h.store.Destinations().ListDestinations(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []models.Destination{}
	}
	writeJSON(w, http.StatusOK, items)
}

// ListItineraries handles GET /itineraries?user_id=
func (h *OfflineHandler) ListItineraries(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "user_id is required"))
		return
	}
	items, err := h.store.Itineraries().ListUserItineraries(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []models.ItineraryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateItinerary handles POST /itineraries
func (h *OfflineHandler) CreateItinerary(w http.ResponseWriter, r *http.Request) {
	var item models.ItineraryItem
	if err := decodeBody(r, &item); err != nil {
		writeError(w, err)
		return
	}
	action, err := h.engine.CreateItineraryOffline(r.Context(), &item)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"item": item, "action": action})
}

// UpdateItinerary handles PATCH /itineraries/{id}
func (h *OfflineHandler) UpdateItinerary(w http.ResponseWriter, r *http.Request) {
	var update models.ItineraryUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, err)
		return
	}
	action, err := h.engine.UpdateItineraryOffline(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// DeleteItinerary handles DELETE /itineraries/{id}
func (h *OfflineHandler) DeleteItinerary(w http.ResponseWriter, r *http.Request) {
	action, err := h.engine.DeleteItineraryOffline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// UpdateProfile handles PUT /profile
func (h *OfflineHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var profile models.UserProfile
	if err := decodeBody(r, &profile); err != nil {
		writeError(w, err)
		return
	}
	action, err := h.engine.UpdateProfileOffline(r.Context(), &profile)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// ListChat handles GET /chat?limit=
func (h *OfflineHandler) ListChat(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, apperrors.New(apperrors.ErrInvalid, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	msgs, err := h.store.Chat().ListChatMessages(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// SaveChat handles POST /chat
func (h *OfflineHandler) SaveChat(w http.ResponseWriter, r *http.Request) {
	var msg models.ChatMessage
	if err := decodeBody(r, &msg); err != nil {
		writeError(w, err)
		return
	}
	if err := h.engine.SaveChatMessageOffline(r.Context(), &msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// GetWeather handles GET /weather?lat=&lon=&lang=
func (h *OfflineHandler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "lat must be a number"))
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "lon must be a number"))
		return
	}

	weather, err := h.engine.CurrentWeather(r.Context(), lat, lon, q.Get("lang"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, weather)
}
