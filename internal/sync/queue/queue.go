// Package queue provides the persistent offline action queue.
//
// Actions are stored in the sync_queue table and replayed in seq order.
// A single drain may run at a time; callers take a Lease to drain.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/smarttourjo/core/internal/db"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/logging"
	"github.com/smarttourjo/core/internal/models"
	"github.com/smarttourjo/core/internal/uuid"
)

// Intent describes a mutation to record. Data is encoded as JSON; a
// json.RawMessage is stored as is.
type Intent struct {
	Type     models.ActionType
	Endpoint string
	Data     interface{}
	// Table is the local table the mutation touched, if any.
	Table string
}

// Queue manages pending offline actions.
type Queue struct {
	db  db.Execer
	now func() time.Time

	mu     sync.Mutex
	leased bool
}

// New creates a Queue over the store's database, sharing its clock.
func New(store *db.Store) *Queue {
	return &Queue{db: store.DB().DB, now: store.Now}
}

// Enqueue appends an action and returns it.
func (q *Queue) Enqueue(ctx context.Context, in Intent) (*models.OfflineAction, error) {
	return q.EnqueueTx(ctx, q.db, in)
}

// EnqueueTx appends an action using tx, so it commits or rolls back with
// the caller's other writes.
func (q *Queue) EnqueueTx(ctx context.Context, tx db.Execer, in Intent) (*models.OfflineAction, error) {
	if !in.Type.Valid() {
		return nil, apperrors.New(apperrors.ErrInvalid, "action type is required")
	}
	if strings.TrimSpace(in.Endpoint) == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "action endpoint is required")
	}

	data, err := encode(in.Data)
	if err != nil {
		return nil, err
	}

	action := &models.OfflineAction{
		ID:        uuid.NewPrefixed(uuid.PrefixOffline),
		Type:      in.Type,
		Endpoint:  in.Endpoint,
		Data:      data,
		Timestamp: q.now().UnixMilli(),
	}

	var stored interface{}
	if len(data) > 0 {
		stored = string(data)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_queue (id, table_name, action, endpoint, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		action.ID, in.Table, string(action.Type), action.Endpoint, stored, action.Timestamp)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to store offline action", err)
	}

	logging.Debug("Enqueued offline action", map[string]interface{}{
		"id":       action.ID,
		"type":     string(action.Type),
		"endpoint": action.Endpoint,
	})
	return action, nil
}

func encode(data interface{}) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) > 0 && !json.Valid(v) {
			return nil, apperrors.New(apperrors.ErrInvalid, "action data is not valid JSON")
		}
		return v, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode action data", err)
	}
	return b, nil
}

// Pending returns the unsynced actions in replay order.
func (q *Queue) Pending(ctx context.Context) ([]models.OfflineAction, error) {
	rows, err := q.Rows(ctx, false)
	if err != nil {
		return nil, err
	}
	actions := make([]models.OfflineAction, len(rows))
	for i := range rows {
		actions[i] = rows[i].OfflineAction()
	}
	return actions, nil
}

// Rows returns the stored queue rows in seq order. With all unset only
// unsynced rows are returned.
func (q *Queue) Rows(ctx context.Context, all bool) ([]models.SyncQueueRow, error) {
	query := `SELECT seq, id, table_name, action, endpoint, data, created_at, synced, attempts, last_error
		FROM sync_queue`
	if !all {
		query += " WHERE synced = 0"
	}
	query += " ORDER BY seq"

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to load offline actions", err)
	}
	defer rows.Close()

	var out []models.SyncQueueRow
	for rows.Next() {
		var (
			r      models.SyncQueueRow
			action string
			data   sql.NullString
			synced int
		)
		if err := rows.Scan(&r.Seq, &r.ID, &r.TableName, &action, &r.Endpoint, &data,
			&r.CreatedAt, &synced, &r.Attempts, &r.LastError); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan offline action", err)
		}
		r.Action = models.ActionType(action)
		r.Synced = synced == 1
		if data.Valid {
			r.Data = json.RawMessage(data.String)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to load offline actions", err)
	}
	return out, nil
}

// Count returns the number of unsynced actions.
func (q *Queue) Count(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue WHERE synced = 0").Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count offline actions", err)
	}
	return n, nil
}

// MarkSynced records that an action was replayed successfully.
func (q *Queue) MarkSynced(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE sync_queue SET synced = 1, attempts = attempts + 1, last_error = '' WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to mark action synced", err)
	}
	return nil
}

// RecordFailure bumps the attempt count and keeps the last error.
func (q *Queue) RecordFailure(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := q.db.ExecContext(ctx,
		"UPDATE sync_queue SET attempts = attempts + 1, last_error = ? WHERE id = ?", msg, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to record action failure", err)
	}
	return nil
}

// ClearCompleted removes the given actions. Unknown ids are ignored.
func (q *Queue) ClearCompleted(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := q.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to clear completed actions", err)
	}
	n, _ := res.RowsAffected()
	logging.Debug("Cleared completed actions", map[string]interface{}{"requested": len(ids), "removed": n})
	return nil
}

// ClearAll drops every queued action.
func (q *Queue) ClearAll(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM sync_queue"); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to clear offline actions", err)
	}
	logging.Info("Offline action queue cleared", nil)
	return nil
}

// Lease is the right to drain the queue. Release it when the drain ends.
type Lease struct {
	q    *Queue
	once sync.Once
}

// TryLease takes the drain lease. It returns false while another lease is held.
func (q *Queue) TryLease() (*Lease, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.leased {
		return nil, false
	}
	q.leased = true
	return &Lease{q: q}, true
}

// Release gives the lease back. Extra calls are no-ops.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.q.mu.Lock()
		l.q.leased = false
		l.q.mu.Unlock()
	})
}

// Draining reports whether a lease is currently held.
func (q *Queue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.leased
}
