package db

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/smarttourjo/core/internal/errors"
)

// DefaultCacheMaxAge is the retention of cached destinations and weather.
const DefaultCacheMaxAge = 7 * 24 * time.Hour

// Tables that CountRows and Truncate accept.
var maintainedTables = map[string]bool{
	"destinations":  true,
	"itineraries":   true,
	"weather_cache": true,
	"chat_messages": true,
	"user_profiles": true,
	"sync_queue":    true,
	"kv_store":      true,
}

// CacheTables are the tables holding cached or user data, in clear order.
var CacheTables = []string{"destinations", "itineraries", "weather_cache", "chat_messages", "user_profiles"}

func checkTable(table string) error {
	if !maintainedTables[table] {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown table %q", table))
	}
	return nil
}

// ClearExpiredCache deletes weather and destination rows cached before
// now-maxAge. It returns the number of rows removed.
func (s *Store) ClearExpiredCache(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	cutoff := s.Now().Add(-maxAge).Unix()

	var removed int64
	for _, table := range []string{"weather_cache", "destinations"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE cached_at < ?", cutoff)
		if err != nil {
			return removed, dbError("failed to clear expired "+table, err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

// PurgeSyncedQueue deletes queue rows that were already replayed.
func (s *Store) PurgeSyncedQueue(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE synced = 1")
	if err != nil {
		return 0, dbError("failed to purge synced queue rows", err)
	}
	return res.RowsAffected()
}

// Vacuum rebuilds the database file to reclaim free pages.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return dbError("vacuum failed", err)
	}
	return nil
}

// DatabaseSize returns page_count * page_size in bytes.
func (s *Store) DatabaseSize(ctx context.Context) (int64, error) {
	var pages, size int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages); err != nil {
		return 0, dbError("failed to read page_count", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&size); err != nil {
		return 0, dbError("failed to read page_size", err)
	}
	return pages * size, nil
}

// CountRows returns the number of rows in a known table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, dbError("failed to count "+table, err)
	}
	return n, nil
}

// Truncate deletes every row of a known table.
func (s *Store) Truncate(ctx context.Context, table string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return dbError("failed to clear "+table, err)
	}
	return nil
}
