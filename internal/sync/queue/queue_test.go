package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smarttourjo/core/internal/db"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
)

func newTestQueue(t *testing.T) (*Queue, *db.Store) {
	t.Helper()

	database, err := db.OpenAndMigrate(t.TempDir())
	if err != nil {
		t.Fatalf("OpenAndMigrate() failed: %v", err)
	}
	store := db.NewStore(database)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	t.Cleanup(func() {
		store.Close()
		database.Close()
	})
	return New(store), store
}

// TestEnqueue verifies ids, timestamps and stored fields.
func TestEnqueue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	action, err := q.Enqueue(ctx, Intent{
		Type:     models.ActionCreate,
		Endpoint: "/itineraries",
		Data:     map[string]string{"destination_id": "petra"},
		Table:    "itineraries",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if !strings.HasPrefix(action.ID, "offline_") {
		t.Errorf("Expected offline_ id, got %s", action.ID)
	}
	want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	if action.Timestamp != want {
		t.Errorf("Expected timestamp %d, got %d", want, action.Timestamp)
	}

	rows, err := q.Rows(ctx, true)
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.TableName != "itineraries" || r.Action != models.ActionCreate || r.Synced || r.Attempts != 0 {
		t.Errorf("Unexpected row: %+v", r)
	}
	if string(r.Data) != `{"destination_id":"petra"}` {
		t.Errorf("Unexpected data: %s", r.Data)
	}
}

// TestEnqueueValidation verifies missing type or endpoint is rejected.
func TestEnqueueValidation(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   Intent
	}{
		{"missing type", Intent{Endpoint: "/profile"}},
		{"unknown type", Intent{Type: "PATCH", Endpoint: "/profile"}},
		{"missing endpoint", Intent{Type: models.ActionUpdate}},
		{"blank endpoint", Intent{Type: models.ActionUpdate, Endpoint: "  "}},
		{"bad raw data", Intent{Type: models.ActionUpdate, Endpoint: "/profile", Data: json.RawMessage("{")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Enqueue(ctx, tt.in)
			if !apperrors.Is(err, apperrors.ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}

	if n, _ := q.Count(ctx); n != 0 {
		t.Errorf("Expected empty queue, got %d", n)
	}
}

// TestPendingOrder verifies replay order follows insertion, with no dedup.
func TestPendingOrder(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	endpoints := []string{"/itineraries", "/itineraries/a", "/itineraries/a", "/profile"}
	types := []models.ActionType{models.ActionCreate, models.ActionUpdate, models.ActionUpdate, models.ActionUpdate}
	var ids []string
	for i := range endpoints {
		a, err := q.Enqueue(ctx, Intent{Type: types[i], Endpoint: endpoints[i]})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids = append(ids, a.ID)
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != len(ids) {
		t.Fatalf("Expected %d pending, got %d", len(ids), len(pending))
	}
	for i, a := range pending {
		if a.ID != ids[i] {
			t.Errorf("pending[%d] = %s, want %s", i, a.ID, ids[i])
		}
		if a.Data != nil {
			t.Errorf("Expected nil data, got %s", a.Data)
		}
	}
}

// TestMarkSyncedAndFailure verifies synced rows leave Pending and failures are recorded.
func TestMarkSyncedAndFailure(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, Intent{Type: models.ActionDelete, Endpoint: "/itineraries/1"})
	b, _ := q.Enqueue(ctx, Intent{Type: models.ActionDelete, Endpoint: "/itineraries/2"})

	if err := q.MarkSynced(ctx, a.ID); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if err := q.RecordFailure(ctx, b.ID, errors.New("Server error: 500")); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	q.RecordFailure(ctx, b.ID, errors.New("Network connection error"))

	pending, _ := q.Pending(ctx)
	if len(pending) != 1 || pending[0].ID != b.ID {
		t.Fatalf("Expected only %s pending, got %+v", b.ID, pending)
	}

	rows, _ := q.Rows(ctx, true)
	for _, r := range rows {
		switch r.ID {
		case a.ID:
			if !r.Synced || r.Attempts != 1 {
				t.Errorf("Unexpected synced row: %+v", r)
			}
		case b.ID:
			if r.Attempts != 2 || r.LastError != "Network connection error" {
				t.Errorf("Unexpected failed row: %+v", r)
			}
		}
	}
}

// TestClearCompleted verifies removal and that unknown ids are a no-op.
func TestClearCompleted(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, Intent{Type: models.ActionCreate, Endpoint: "/itineraries"})
	b, _ := q.Enqueue(ctx, Intent{Type: models.ActionCreate, Endpoint: "/itineraries"})

	if err := q.ClearCompleted(ctx, []string{"offline_does-not-exist"}); err != nil {
		t.Fatalf("ClearCompleted with unknown id failed: %v", err)
	}
	if n, _ := q.Count(ctx); n != 2 {
		t.Errorf("Expected 2 actions, got %d", n)
	}

	if err := q.ClearCompleted(ctx, []string{a.ID, "offline_unknown"}); err != nil {
		t.Fatalf("ClearCompleted failed: %v", err)
	}
	pending, _ := q.Pending(ctx)
	if len(pending) != 1 || pending[0].ID != b.ID {
		t.Errorf("Expected only %s left, got %+v", b.ID, pending)
	}

	if err := q.ClearCompleted(ctx, nil); err != nil {
		t.Errorf("ClearCompleted(nil) failed: %v", err)
	}

	if err := q.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	if n, _ := q.Count(ctx); n != 0 {
		t.Errorf("Expected empty queue, got %d", n)
	}
}

// TestEnqueueTxRollback verifies the queue row follows the caller's transaction.
func TestEnqueueTxRollback(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	errAbort := errors.New("abort")
	err := store.WithTx(ctx, func(tx *db.Tx) error {
		if _, err := q.EnqueueTx(ctx, tx, Intent{Type: models.ActionCreate, Endpoint: "/itineraries"}); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("Expected abort error, got %v", err)
	}
	if n, _ := q.Count(ctx); n != 0 {
		t.Errorf("Expected rolled back enqueue, got %d rows", n)
	}

	err = store.WithTx(ctx, func(tx *db.Tx) error {
		_, err := q.EnqueueTx(ctx, tx, Intent{Type: models.ActionCreate, Endpoint: "/itineraries"})
		return err
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
	if n, _ := q.Count(ctx); n != 1 {
		t.Errorf("Expected committed enqueue, got %d rows", n)
	}
}

// TestLease verifies only one lease is held at a time.
func TestLease(t *testing.T) {
	q, _ := newTestQueue(t)

	lease, ok := q.TryLease()
	if !ok {
		t.Fatal("Expected first lease")
	}
	if _, ok := q.TryLease(); ok {
		t.Error("Expected second lease to fail")
	}
	if !q.Draining() {
		t.Error("Expected Draining while leased")
	}

	lease.Release()
	lease.Release()
	if q.Draining() {
		t.Error("Expected lease released")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := q.TryLease(); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 1 {
		t.Errorf("Expected exactly 1 concurrent lease, got %d", granted)
	}
}
