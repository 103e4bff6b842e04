package sync

import (
	"context"
	"net/url"
	stdsync "sync"
	"time"

	"github.com/smarttourjo/core/internal/db"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/logging"
	"github.com/smarttourjo/core/internal/models"
	"github.com/smarttourjo/core/internal/storage"
	"github.com/smarttourjo/core/internal/sync/queue"
)

// DefaultOfflineDataMaxAge is how long downloaded offline data stays usable.
const DefaultOfflineDataMaxAge = 7 * 24 * time.Hour

// Options tunes a SyncEngine. Zero values use the defaults.
type Options struct {
	CacheMaxAge       time.Duration
	OfflineDataMaxAge time.Duration
	WeatherMaxAge     time.Duration
	Metrics           *Metrics

	// Session supplies the signed-in user for rows created without one.
	Session Session
}

// SyncResult summarizes one SyncPending run.
type SyncResult struct {
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Skipped   bool `json:"skipped"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// SyncEngine replays the offline queue and manages offline data.
type SyncEngine struct {
	store   *db.Store
	queue   *queue.Queue
	kv      *storage.Store
	remote  Remote
	metrics *Metrics
	opts    Options

	mu      stdsync.RWMutex
	handler SyncEventHandler
}

// NewSyncEngine creates a SyncEngine.
func NewSyncEngine(store *db.Store, q *queue.Queue, kv *storage.Store, remote Remote, opts Options) *SyncEngine {
	if opts.CacheMaxAge <= 0 {
		opts.CacheMaxAge = db.DefaultCacheMaxAge
	}
	if opts.OfflineDataMaxAge <= 0 {
		opts.OfflineDataMaxAge = DefaultOfflineDataMaxAge
	}
	if opts.WeatherMaxAge <= 0 {
		opts.WeatherMaxAge = db.DefaultWeatherMaxAge
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics("smarttour")
	}
	return &SyncEngine{
		store:   store,
		queue:   q,
		kv:      kv,
		remote:  remote,
		metrics: metrics,
		opts:    opts,
	}
}

// Queue returns the engine's action queue.
func (e *SyncEngine) Queue() *queue.Queue {
	return e.queue
}

// Metrics returns the engine's collectors.
func (e *SyncEngine) Metrics() *Metrics {
	return e.metrics
}

// SetEventHandler sets the handler for sync notifications.
func (e *SyncEngine) SetEventHandler(handler SyncEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

func (e *SyncEngine) emit(eventType string, data map[string]interface{}) {
	e.mu.RLock()
	handler := e.handler
	e.mu.RUnlock()
	if handler == nil {
		return
	}
	handler(SyncEvent{Type: eventType, Data: data, Timestamp: e.store.Now().UnixMilli()})
}

// Drain replays actions in order and reports success per action. A failed
// action never stops the ones after it. When another drain is in flight,
// Drain returns all false without calling the API.
func (e *SyncEngine) Drain(ctx context.Context, actions []models.OfflineAction) []bool {
	lease, ok := e.queue.TryLease()
	if !ok {
		logging.Info("Sync already in progress, skipping", map[string]interface{}{"actions": len(actions)})
		e.metrics.DrainsSkipped.Inc()
		return make([]bool, len(actions))
	}
	defer lease.Release()

	return e.drain(ctx, actions)
}

// drain runs with the lease held.
func (e *SyncEngine) drain(ctx context.Context, actions []models.OfflineAction) []bool {
	start := time.Now()
	defer func() { e.metrics.DrainDuration.Observe(time.Since(start).Seconds()) }()

	results := make([]bool, len(actions))
	for i, action := range actions {
		if ctx.Err() != nil {
			logging.Warn("Sync cancelled", map[string]interface{}{"remaining": len(actions) - i})
			break
		}

		err := e.replay(ctx, action)
		results[i] = err == nil

		if err != nil {
			e.metrics.ActionsReplayed.WithLabelValues(string(action.Type), "failure").Inc()
			logging.Warn("Failed to sync action", map[string]interface{}{
				"id":       action.ID,
				"type":     string(action.Type),
				"endpoint": action.Endpoint,
				"error":    err.Error(),
			})
			if rerr := e.queue.RecordFailure(ctx, action.ID, err); rerr != nil {
				logging.Error("Failed to record action failure", rerr, map[string]interface{}{"id": action.ID})
			}
		} else {
			e.metrics.ActionsReplayed.WithLabelValues(string(action.Type), "success").Inc()
			logging.Debug("Synced action", map[string]interface{}{
				"type":     string(action.Type),
				"endpoint": action.Endpoint,
			})
			if merr := e.queue.MarkSynced(ctx, action.ID); merr != nil {
				logging.Error("Failed to mark action synced", merr, map[string]interface{}{"id": action.ID})
			}
		}

		e.emit(EventSyncProgress, map[string]interface{}{
			"index":   i + 1,
			"total":   len(actions),
			"id":      action.ID,
			"success": results[i],
		})
	}
	return results
}

// replay sends one action: CREATE as POST, UPDATE as PUT, DELETE as DELETE.
func (e *SyncEngine) replay(ctx context.Context, action models.OfflineAction) error {
	method := action.Type.Method()
	if method == "" {
		return apperrors.New(apperrors.ErrInvalid, "unknown action type: "+string(action.Type))
	}

	var body interface{}
	if action.Type != models.ActionDelete && len(action.Data) > 0 {
		body = action.Data
	}
	return e.remote.Request(ctx, method, action.Endpoint, body, nil)
}

// SyncPending drains the pending actions, clears the ones that succeeded
// and records the sync time. Failed actions stay queued for the next run.
func (e *SyncEngine) SyncPending(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{StartTime: e.store.Now()}

	lease, ok := e.queue.TryLease()
	if !ok {
		e.metrics.DrainsSkipped.Inc()
		result.Skipped = true
		return result, nil
	}
	defer lease.Release()

	pending, err := e.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		e.metrics.PendingActions.Set(0)
		return result, nil
	}

	logging.Info("Syncing pending actions", map[string]interface{}{"count": len(pending)})
	e.emit(EventSyncStarted, map[string]interface{}{"pending": len(pending)})

	results := e.drain(ctx, pending)

	var done []string
	for i, ok := range results {
		if ok {
			done = append(done, pending[i].ID)
		}
	}
	result.Attempted = len(pending)
	result.Succeeded = len(done)
	result.Failed = len(pending) - len(done)

	if err := e.queue.ClearCompleted(ctx, done); err != nil {
		e.emit(EventSyncFailed, map[string]interface{}{"error": err.Error()})
		return result, err
	}

	now := e.store.Now()
	if err := e.kv.SetInt64(ctx, storage.KeyLastSync, now.UnixMilli()); err != nil {
		logging.Error("Failed to record last sync", err)
	}
	e.metrics.LastSync.Set(float64(now.Unix()))
	e.metrics.PendingActions.Set(float64(result.Failed))

	result.EndTime = now
	result.Duration = result.EndTime.Sub(result.StartTime)

	logging.Info("Sync completed", map[string]interface{}{
		"successful": result.Succeeded,
		"failed":     result.Failed,
	})
	e.emit(EventSyncCompleted, map[string]interface{}{
		"attempted": result.Attempted,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
	return result, nil
}

// PendingCount returns the number of unsynced actions.
func (e *SyncEngine) PendingCount(ctx context.Context) (int, error) {
	return e.queue.Count(ctx)
}

// LastSync returns the time of the last completed sync or offline download.
func (e *SyncEngine) LastSync(ctx context.Context) (time.Time, bool) {
	ms, ok, err := e.kv.GetInt64(ctx, storage.KeyLastSync)
	if err != nil || !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// =====================================================
// Offline mutations
// =====================================================

// CreateItineraryOffline stores item locally and queues its creation.
// An item without a user is stamped with the signed-in user.
func (e *SyncEngine) CreateItineraryOffline(ctx context.Context, item *models.ItineraryItem) (*models.OfflineAction, error) {
	if item.UserID == "" && e.opts.Session != nil {
		userID, err := e.opts.Session.UserID(ctx)
		if err != nil {
			logging.Warn("No session user for offline itinerary", map[string]interface{}{"error": err.Error()})
		} else {
			item.UserID = userID
		}
	}

	var action *models.OfflineAction
	err := e.store.WithTx(ctx, func(tx *db.Tx) error {
		item.Synced = false
		if err := tx.Itineraries().CreateItinerary(ctx, item); err != nil {
			return err
		}
		var err error
		action, err = e.queue.EnqueueTx(ctx, tx, queue.Intent{
			Type:     models.ActionCreate,
			Endpoint: "/itineraries",
			Data:     item,
			Table:    "itineraries",
		})
		return err
	})
	if err != nil {
		logging.Error("Failed to save itinerary offline", err)
		return nil, err
	}
	logging.Info("Itinerary saved offline", map[string]interface{}{"id": item.ID})
	return action, nil
}

// UpdateItineraryOffline applies updates locally and queues them.
func (e *SyncEngine) UpdateItineraryOffline(ctx context.Context, id string, updates models.ItineraryUpdate) (*models.OfflineAction, error) {
	if updates.Empty() {
		return nil, apperrors.New(apperrors.ErrInvalid, "no itinerary fields to update")
	}

	var action *models.OfflineAction
	err := e.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.Itineraries().UpdateItinerary(ctx, id, updates); err != nil {
			return err
		}
		var err error
		action, err = e.queue.EnqueueTx(ctx, tx, queue.Intent{
			Type:     models.ActionUpdate,
			Endpoint: itineraryEndpoint(id),
			Data:     updates,
			Table:    "itineraries",
		})
		return err
	})
	if err != nil {
		logging.Error("Failed to update itinerary offline", err, map[string]interface{}{"id": id})
		return nil, err
	}
	return action, nil
}

// DeleteItineraryOffline removes the item locally and queues the deletion.
func (e *SyncEngine) DeleteItineraryOffline(ctx context.Context, id string) (*models.OfflineAction, error) {
	var action *models.OfflineAction
	err := e.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.Itineraries().DeleteItinerary(ctx, id); err != nil {
			return err
		}
		var err error
		action, err = e.queue.EnqueueTx(ctx, tx, queue.Intent{
			Type:     models.ActionDelete,
			Endpoint: itineraryEndpoint(id),
			Data:     map[string]string{"id": id},
			Table:    "itineraries",
		})
		return err
	})
	if err != nil {
		logging.Error("Failed to delete itinerary offline", err, map[string]interface{}{"id": id})
		return nil, err
	}
	return action, nil
}

// UpdateProfileOffline stores the profile locally and queues the update.
func (e *SyncEngine) UpdateProfileOffline(ctx context.Context, profile *models.UserProfile) (*models.OfflineAction, error) {
	var action *models.OfflineAction
	err := e.store.WithTx(ctx, func(tx *db.Tx) error {
		profile.Synced = false
		if err := tx.Profiles().UpsertProfile(ctx, profile); err != nil {
			return err
		}
		var err error
		action, err = e.queue.EnqueueTx(ctx, tx, queue.Intent{
			Type:     models.ActionUpdate,
			Endpoint: "/profile",
			Data:     profile,
			Table:    "user_profiles",
		})
		return err
	})
	if err != nil {
		logging.Error("Failed to save profile update offline", err)
		return nil, err
	}
	return action, nil
}

// SaveChatMessageOffline keeps a chat message locally. Chat is never replayed.
func (e *SyncEngine) SaveChatMessageOffline(ctx context.Context, msg *models.ChatMessage) error {
	msg.Synced = false
	if err := e.store.Chat().SaveChatMessage(ctx, msg); err != nil {
		logging.Error("Failed to save chat message offline", err)
		return err
	}
	return nil
}

func itineraryEndpoint(id string) string {
	return "/itineraries/" + url.PathEscape(id)
}

