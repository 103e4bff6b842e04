package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/smarttourjo/core/internal/errors"
)

// Store hands out typed repositories over one database.
// Repositories obtained from a Store run on the pool; those obtained from
// a Tx (see WithTx) run inside that transaction.
type Store struct {
	db *DB

	mu  sync.RWMutex
	now func() time.Time

	// Prepared statement cache for hot non-transactional reads.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewStore creates a Store over db using the wall clock.
func NewStore(db *DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB returns the underlying database.
func (s *Store) DB() *DB {
	return s.db
}

// SetClock replaces the time source. Used by tests to control freshness.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Now returns the current time from the store's clock.
func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// PrepareStmt gets or creates a prepared statement from cache.
func (s *Store) PrepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// If another goroutine stored one first, use it and close ours
	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Close closes all cached prepared statements. The DB stays open.
func (s *Store) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

func (s *Store) conn() conn {
	return conn{q: s.db.DB, now: s.Now, store: s}
}

// Destinations returns the destination repository.
func (s *Store) Destinations() DestinationRepository { return &destinationRepo{s.conn()} }

// Itineraries returns the itinerary repository.
func (s *Store) Itineraries() ItineraryRepository { return &itineraryRepo{s.conn()} }

// Weather returns the weather cache repository.
func (s *Store) Weather() WeatherRepository { return &weatherRepo{s.conn()} }

// Chat returns the chat message repository.
func (s *Store) Chat() ChatRepository { return &chatRepo{s.conn()} }

// Profiles returns the user profile repository.
func (s *Store) Profiles() ProfileRepository { return &profileRepo{s.conn()} }

// Tx scopes repositories to one SQL transaction. It embeds *sql.Tx and so
// satisfies Execer for collaborators such as the sync queue.
type Tx struct {
	*sql.Tx
	now func() time.Time
}

func (t *Tx) conn() conn {
	return conn{q: t.Tx, now: t.now}
}

// Destinations returns the destination repository bound to the transaction.
func (t *Tx) Destinations() DestinationRepository { return &destinationRepo{t.conn()} }

// Itineraries returns the itinerary repository bound to the transaction.
func (t *Tx) Itineraries() ItineraryRepository { return &itineraryRepo{t.conn()} }

// Weather returns the weather repository bound to the transaction.
func (t *Tx) Weather() WeatherRepository { return &weatherRepo{t.conn()} }

// Chat returns the chat repository bound to the transaction.
func (t *Tx) Chat() ChatRepository { return &chatRepo{t.conn()} }

// Profiles returns the profile repository bound to the transaction.
func (t *Tx) Profiles() ProfileRepository { return &profileRepo{t.conn()} }

// WithTx runs fn in a transaction. fn's error rolls back; nil commits.
// fn must only use tx: the pool has a single connection, which tx holds.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to begin transaction", err)
	}

	defer func() {
		// A panicking fn must not keep the only connection.
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{Tx: sqlTx, now: s.Now}); err != nil {
		sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to commit transaction", err)
	}
	return nil
}

// conn is what a repository runs against: the pool or a transaction.
type conn struct {
	q     Execer
	now   func() time.Time
	store *Store // nil inside a transaction
}

// queryRow uses a cached prepared statement outside transactions.
func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	if c.store != nil {
		if stmt, err := c.store.PrepareStmt(ctx, query); err == nil {
			return stmt.QueryRowContext(ctx, args...)
		}
	}
	return c.q.QueryRowContext(ctx, query, args...)
}

// inTx runs fn in a transaction, reusing the current one when already inside.
func (c conn) inTx(ctx context.Context, fn func(q Execer) error) error {
	db, ok := c.q.(*sql.DB)
	if !ok {
		return fn(c.q)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to commit transaction", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func dbError(message string, err error) error {
	return apperrors.Wrap(apperrors.ErrDatabase, message, err)
}
