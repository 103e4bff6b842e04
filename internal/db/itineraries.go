package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
	"github.com/smarttourjo/core/internal/uuid"
)

const itineraryColumns = `id, user_id, destination_id, destination_name, destination_type,
	destination_icon, notes, status, visit_date, priority, added_at, synced`

var itineraryEntity = newEntity("itineraries",
	[]string{"id", "user_id", "destination_id", "destination_name", "destination_type",
		"destination_icon", "notes", "status", "visit_date", "priority", "added_at", "synced"},
	[]string{"added_at", "priority", "visit_date", "destination_name", "status"},
	[]string{"destination_name", "notes"},
	"added_at",
)

type itineraryRepo struct{ c conn }

// CreateItinerary inserts item, filling ID, AddedAt, Status and Priority when unset.
func (r *itineraryRepo) CreateItinerary(ctx context.Context, item *models.ItineraryItem) error {
	if item.UserID == "" || item.DestinationID == "" || item.DestinationName == "" {
		return apperrors.New(apperrors.ErrInvalid, "itinerary requires user_id, destination_id and destination_name")
	}
	if item.ID == "" {
		item.ID = uuid.NewPrefixed(uuid.PrefixOffline)
	}
	if item.AddedAt == "" {
		item.AddedAt = r.c.now().UTC().Format(time.RFC3339)
	}
	if item.Status == "" {
		item.Status = models.StatusPlanned
	}
	if !models.ValidStatus(item.Status) {
		return apperrors.New(apperrors.ErrInvalid, "invalid itinerary status: "+item.Status)
	}
	if item.Priority == 0 {
		item.Priority = 1
	}

	query := `INSERT INTO itineraries (` + itineraryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.c.q.ExecContext(ctx, query, itineraryArgs(item)...); err != nil {
		return dbError("failed to create itinerary", err)
	}
	return nil
}

// GetItinerary retrieves an itinerary item by ID.
func (r *itineraryRepo) GetItinerary(ctx context.Context, id string) (*models.ItineraryItem, error) {
	row := r.c.queryRow(ctx, "SELECT "+itineraryColumns+" FROM itineraries WHERE id = ?", id)
	item, err := scanItinerary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "itinerary not found: "+id)
	}
	if err != nil {
		return nil, dbError("failed to get itinerary", err)
	}
	return item, nil
}

// UpdateItinerary applies the set fields of u and clears synced.
func (r *itineraryRepo) UpdateItinerary(ctx context.Context, id string, u models.ItineraryUpdate) error {
	if u.Status != nil && !models.ValidStatus(*u.Status) {
		return apperrors.New(apperrors.ErrInvalid, "invalid itinerary status: "+*u.Status)
	}

	sets := []string{"synced = 0"}
	var args []interface{}
	if u.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *u.Notes)
	}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
	}
	if u.VisitDate != nil {
		sets = append(sets, "visit_date = ?")
		args = append(args, *u.VisitDate)
	}
	if u.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *u.Priority)
	}
	args = append(args, id)

	res, err := r.c.q.ExecContext(ctx, "UPDATE itineraries SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return dbError("failed to update itinerary", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrNotFound, "itinerary not found: "+id)
	}
	return nil
}

// DeleteItinerary removes an itinerary item.
func (r *itineraryRepo) DeleteItinerary(ctx context.Context, id string) error {
	if _, err := r.c.q.ExecContext(ctx, "DELETE FROM itineraries WHERE id = ?", id); err != nil {
		return dbError("failed to delete itinerary", err)
	}
	return nil
}

// ListUserItineraries returns a user's items, newest first.
func (r *itineraryRepo) ListUserItineraries(ctx context.Context, userID string) ([]models.ItineraryItem, error) {
	return r.ListItineraries(ctx, Query{
		Filters: []Filter{UserFilter{UserID: userID}},
		OrderBy: "added_at",
		Desc:    true,
	})
}

// ListItineraries returns items matching q.
func (r *itineraryRepo) ListItineraries(ctx context.Context, q Query) ([]models.ItineraryItem, error) {
	tail, args, err := itineraryEntity.build(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.c.q.QueryContext(ctx, "SELECT "+itineraryColumns+" FROM itineraries"+tail, args...)
	if err != nil {
		return nil, dbError("failed to list itineraries", err)
	}
	defer rows.Close()

	var out []models.ItineraryItem
	for rows.Next() {
		item, err := scanItinerary(rows)
		if err != nil {
			return nil, dbError("failed to scan itinerary", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// SaveSyncedItineraries upserts server copies and marks them synced.
func (r *itineraryRepo) SaveSyncedItineraries(ctx context.Context, items []models.ItineraryItem) error {
	query := `INSERT OR REPLACE INTO itineraries (` + itineraryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return r.c.inTx(ctx, func(q Execer) error {
		for i := range items {
			item := &items[i]
			item.Synced = true
			if item.Status == "" {
				item.Status = models.StatusPlanned
			}
			if _, err := q.ExecContext(ctx, query, itineraryArgs(item)...); err != nil {
				return dbError("failed to save itinerary "+item.ID, err)
			}
		}
		return nil
	})
}

func itineraryArgs(item *models.ItineraryItem) []interface{} {
	return []interface{}{
		item.ID, item.UserID, item.DestinationID, item.DestinationName, item.DestinationType,
		item.DestinationIcon, item.Notes, item.Status, item.VisitDate, item.Priority, item.AddedAt,
		boolToInt(item.Synced),
	}
}

func scanItinerary(s scanner) (*models.ItineraryItem, error) {
	var item models.ItineraryItem
	var destType, destIcon, notes, visitDate sql.NullString
	var synced int
	if err := s.Scan(&item.ID, &item.UserID, &item.DestinationID, &item.DestinationName, &destType,
		&destIcon, &notes, &item.Status, &visitDate, &item.Priority, &item.AddedAt, &synced); err != nil {
		return nil, err
	}
	item.DestinationType = destType.String
	item.DestinationIcon = destIcon.String
	item.Notes = notes.String
	item.VisitDate = visitDate.String
	item.Synced = synced != 0
	return &item, nil
}
