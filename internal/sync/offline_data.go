package sync

import (
	"context"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/smarttourjo/core/internal/db"
	"github.com/smarttourjo/core/internal/logging"
	"github.com/smarttourjo/core/internal/storage"
)

// Stats describes what is stored for offline use.
type Stats struct {
	Destinations   int64 `json:"destinations"`
	Itineraries    int64 `json:"itineraries"`
	WeatherCache   int64 `json:"weatherCache"`
	ChatMessages   int64 `json:"chatMessages"`
	PendingActions int   `json:"pendingActions"`
	DatabaseSize   int64 `json:"databaseSize"`
}

// DownloadOfflineData fetches destinations, the user's itineraries and
// profile preferences for offline use, then records the sync time.
// Itineraries and profile are skipped when unavailable, e.g. signed out.
func (e *SyncEngine) DownloadOfflineData(ctx context.Context) error {
	logging.Info("Starting offline data download", nil)

	destinations, err := e.remote.GetDestinations(ctx, "", "")
	if err != nil {
		logging.Error("Failed to download destinations", err)
		return err
	}
	if err := e.store.Destinations().CacheDestinations(ctx, destinations); err != nil {
		return err
	}

	itineraries, err := e.remote.GetItineraries(ctx)
	if err != nil {
		logging.Warn("Skipping itineraries", map[string]interface{}{"error": err.Error()})
	} else if err := e.store.Itineraries().SaveSyncedItineraries(ctx, itineraries); err != nil {
		return err
	}

	profile, err := e.remote.GetProfile(ctx)
	if err != nil {
		logging.Warn("Skipping profile", map[string]interface{}{"error": err.Error()})
	} else if err := e.kv.SetObject(ctx, storage.KeyUserPreferences, profile.Preferences); err != nil {
		return err
	}

	now := e.store.Now()
	if err := e.kv.SetInt64(ctx, storage.KeyLastSync, now.UnixMilli()); err != nil {
		return err
	}
	e.metrics.LastSync.Set(float64(now.Unix()))

	logging.Info("Offline data download completed", map[string]interface{}{
		"destinations": len(destinations),
		"itineraries":  len(itineraries),
	})
	return nil
}

// IsOfflineDataAvailable reports whether destinations are cached and the
// last sync is younger than the offline data max age.
func (e *SyncEngine) IsOfflineDataAvailable(ctx context.Context) bool {
	n, err := e.store.CountRows(ctx, "destinations")
	if err != nil {
		logging.Error("Failed to check offline data availability", err)
		return false
	}
	if n == 0 {
		return false
	}

	last, ok := e.LastSync(ctx)
	if !ok {
		return false
	}
	return e.store.Now().Sub(last) < e.opts.OfflineDataMaxAge
}

// ClearOfflineData empties the cache tables and the queue and forgets the
// cached data and sync time. It keeps going past failures and returns them all.
func (e *SyncEngine) ClearOfflineData(ctx context.Context) error {
	var result *multierror.Error

	for _, table := range db.CacheTables {
		if err := e.store.Truncate(ctx, table); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := e.queue.ClearAll(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := e.kv.MultiRemove(ctx, storage.KeyCachedData, storage.KeyLastSync); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		logging.Error("Failed to clear offline data", err)
		return err
	}
	e.metrics.PendingActions.Set(0)
	logging.Info("All offline data cleared", nil)
	return nil
}

// Stats counts the cached rows and pending actions and measures the database.
// Counts that fail to load are left at zero and reported in the error.
func (e *SyncEngine) Stats(ctx context.Context) (*Stats, error) {
	var result *multierror.Error
	stats := &Stats{}

	counts := []struct {
		table string
		dst   *int64
	}{
		{"destinations", &stats.Destinations},
		{"itineraries", &stats.Itineraries},
		{"weather_cache", &stats.WeatherCache},
		{"chat_messages", &stats.ChatMessages},
	}
	for _, c := range counts {
		n, err := e.store.CountRows(ctx, c.table)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		*c.dst = n
	}

	pending, err := e.queue.Count(ctx)
	if err != nil {
		result = multierror.Append(result, err)
	}
	stats.PendingActions = pending

	size, err := e.store.DatabaseSize(ctx)
	if err != nil {
		result = multierror.Append(result, err)
	}
	stats.DatabaseSize = size

	return stats, result.ErrorOrNil()
}

// PerformMaintenance removes expired cache rows and replayed queue rows,
// then vacuums. Every step runs; failures are logged and returned together.
func (e *SyncEngine) PerformMaintenance(ctx context.Context) error {
	logging.Info("Starting database maintenance", nil)
	var result *multierror.Error

	expired, err := e.store.ClearExpiredCache(ctx, e.opts.CacheMaxAge)
	if err != nil {
		result = multierror.Append(result, err)
	}
	purged, err := e.store.PurgeSyncedQueue(ctx)
	if err != nil {
		result = multierror.Append(result, err)
	}
	if err := e.store.Vacuum(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		logging.Error("Database maintenance failed", err)
		return err
	}
	logging.Info("Database maintenance completed", map[string]interface{}{
		"expired_rows": expired,
		"synced_rows":  purged,
	})
	return nil
}
