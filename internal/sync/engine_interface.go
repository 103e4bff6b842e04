// Package sync replays offline actions against the SmartTour API and keeps
// the local cache usable offline.
package sync

import (
	"context"
	"time"

	"github.com/smarttourjo/core/internal/models"
)

// SyncEngineInterface is what the scheduler and the shells drive.
// This interface allows for fakes in tests.
type SyncEngineInterface interface {
	// SyncPending drains the queue and clears the replayed actions.
	SyncPending(ctx context.Context) (*SyncResult, error)

	// PerformMaintenance prunes expired cache rows and compacts the database.
	PerformMaintenance(ctx context.Context) error

	// PendingCount returns the number of unsynced actions.
	PendingCount(ctx context.Context) (int, error)

	// LastSync returns the time of the last completed sync, if any.
	LastSync(ctx context.Context) (time.Time, bool)

	// SetEventHandler sets the handler for sync notifications.
	SetEventHandler(handler SyncEventHandler)
}

// Remote is the part of the API client the engine needs.
type Remote interface {
	Request(ctx context.Context, method, endpoint string, body, out interface{}) error
	GetDestinations(ctx context.Context, category, search string) ([]models.Destination, error)
	GetItineraries(ctx context.Context) ([]models.ItineraryItem, error)
	GetProfile(ctx context.Context) (*models.UserProfile, error)
	CurrentWeather(ctx context.Context, lat, lon float64, lang string) (*models.WeatherData, error)
}

// Session resolves the signed-in user from the stored token.
type Session interface {
	UserID(ctx context.Context) (string, error)
}

// Sync event types.
const (
	EventSyncStarted   = "sync.started"
	EventSyncProgress  = "sync.progress"
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
)

// SyncEvent is a notification emitted while syncing.
type SyncEvent struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// SyncEventHandler receives sync events. It must not block.
type SyncEventHandler func(SyncEvent)
