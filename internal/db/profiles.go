package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
)

type profileRepo struct{ c conn }

// UpsertProfile inserts or replaces a profile. The original created_at is kept.
func (r *profileRepo) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	if p.ID == "" {
		return apperrors.New(apperrors.ErrInvalid, "profile id is required")
	}
	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode preferences", err)
	}

	now := r.c.now().UTC().Format(time.RFC3339)
	if p.CreatedAt == "" {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
	INSERT INTO user_profiles (id, preferences, created_at, updated_at, synced)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		preferences = excluded.preferences,
		updated_at = excluded.updated_at,
		synced = excluded.synced`
	if _, err := r.c.q.ExecContext(ctx, query, p.ID, string(prefs), p.CreatedAt, p.UpdatedAt, boolToInt(p.Synced)); err != nil {
		return dbError("failed to upsert profile", err)
	}
	return nil
}

// GetProfile retrieves a profile by ID.
func (r *profileRepo) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	var p models.UserProfile
	var prefs string
	var synced int
	err := r.c.queryRow(ctx,
		"SELECT id, preferences, created_at, updated_at, synced FROM user_profiles WHERE id = ?", id,
	).Scan(&p.ID, &prefs, &p.CreatedAt, &p.UpdatedAt, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "profile not found: "+id)
	}
	if err != nil {
		return nil, dbError("failed to get profile", err)
	}
	if err := json.Unmarshal([]byte(prefs), &p.Preferences); err != nil {
		return nil, dbError("failed to decode preferences", err)
	}
	p.Synced = synced != 0
	return &p, nil
}
