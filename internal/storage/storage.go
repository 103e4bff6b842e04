// Package storage provides the key/value adapter used for session and
// preference state, persisted in the kv_store table.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/smarttourjo/core/internal/db"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/logging"
)

// Well-known keys.
const (
	KeyUserToken       = "userToken"
	KeyUserData        = "userData"
	KeyUserPreferences = "userPreferences"
	KeyLanguage        = "language"
	KeyCachedData      = "cachedData"
	KeyLastSync        = "lastSync"
)

// Store is a string key/value store.
type Store struct {
	q   db.Execer
	now func() time.Time
}

// New creates a Store over an open, migrated database.
func New(database *db.DB) *Store {
	return &Store{q: database.DB, now: time.Now}
}

// Get returns the value for key. ok is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.q.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		logging.Error("Failed to get item", err, map[string]interface{}{"key": key})
		return "", false, storageError("failed to get "+key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.set(ctx, s.q, key, value)
}

func (s *Store) set(ctx context.Context, q db.Execer, key, value string) error {
	if key == "" {
		return apperrors.New(apperrors.ErrInvalid, "storage key is required")
	}
	_, err := q.ExecContext(ctx, `
	INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UnixMilli())
	if err != nil {
		return storageError("failed to set "+key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key); err != nil {
		return storageError("failed to remove "+key, err)
	}
	return nil
}

// Clear deletes every key.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM kv_store"); err != nil {
		return storageError("failed to clear storage", err)
	}
	return nil
}

// Keys returns every stored key in lexical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT key FROM kv_store ORDER BY key")
	if err != nil {
		logging.Error("Failed to get all keys", err)
		return nil, storageError("failed to list keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storageError("failed to scan key", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Has reports whether key is present.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// MultiGet returns the present values among keys.
func (s *Store) MultiGet(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// MultiSet stores every pair atomically.
func (s *Store) MultiSet(ctx context.Context, pairs map[string]string) error {
	sqlDB, ok := s.q.(*sql.DB)
	if !ok {
		for k, v := range pairs {
			if err := s.set(ctx, s.q, k, v); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for k, v := range pairs {
		if err := s.set(ctx, tx, k, v); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return storageError("failed to commit", err)
	}
	return nil
}

// MultiRemove deletes every key in keys.
func (s *Store) MultiRemove(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := s.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// RemovePrefixed deletes every key starting with one of prefixes and
// returns how many were removed.
func (s *Store) RemovePrefixed(ctx context.Context, prefixes ...string) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}

	var doomed []string
	for _, k := range keys {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				doomed = append(doomed, k)
				break
			}
		}
	}
	return len(doomed), s.MultiRemove(ctx, doomed...)
}

// SetObject stores v as JSON.
func (s *Store) SetObject(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode "+key, err)
	}
	return s.Set(ctx, key, string(data))
}

// GetObject decodes the JSON value of key into v. ok is false when absent.
func (s *Store) GetObject(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		logging.Error("Failed to get object", err, map[string]interface{}{"key": key})
		return false, storageError("failed to decode "+key, err)
	}
	return true, nil
}

// SetInt64 stores n in decimal.
func (s *Store) SetInt64(ctx context.Context, key string, n int64) error {
	return s.Set(ctx, key, strconv.FormatInt(n, 10))
}

// GetInt64 parses the decimal value of key. ok is false when absent.
func (s *Store) GetInt64(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, storageError("failed to parse "+key, err)
	}
	return n, true, nil
}

// SetBool stores b as "true" or "false".
func (s *Store) SetBool(ctx context.Context, key string, b bool) error {
	return s.Set(ctx, key, strconv.FormatBool(b))
}

// GetBool reads a boolean. Any value other than "true" is false.
func (s *Store) GetBool(ctx context.Context, key string) (bool, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, false, err
	}
	return raw == "true", true, nil
}

// Size returns the summed length of every key and value.
func (s *Store) Size(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	if err := s.q.QueryRowContext(ctx, "SELECT SUM(length(key) + length(value)) FROM kv_store").Scan(&n); err != nil {
		logging.Error("Failed to calculate storage size", err)
		return 0, storageError("failed to calculate storage size", err)
	}
	return n.Int64, nil
}

func storageError(message string, err error) error {
	return apperrors.Wrap(apperrors.ErrStorage, message, err)
}
