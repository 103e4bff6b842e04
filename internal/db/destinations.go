package db

import (
	"context"
	"database/sql"
	"errors"

	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
)

const destinationColumns = `id, name, name_ar, description, description_ar, latitude, longitude,
	category, image_url, rating, is_active, created_at, cached_at`

var destinationEntity = newEntity("destinations",
	[]string{"id", "name", "name_ar", "description", "description_ar", "latitude", "longitude",
		"category", "image_url", "rating", "is_active", "created_at", "cached_at"},
	[]string{"name", "rating", "category", "created_at", "cached_at"},
	[]string{"name", "name_ar", "description"},
	"name",
)

type destinationRepo struct{ c conn }

// CacheDestinations upserts all destinations in one transaction.
func (r *destinationRepo) CacheDestinations(ctx context.Context, destinations []models.Destination) error {
	if len(destinations) == 0 {
		return nil
	}
	cachedAt := r.c.now().Unix()

	query := `
	INSERT OR REPLACE INTO destinations (` + destinationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return r.c.inTx(ctx, func(q Execer) error {
		for i := range destinations {
			d := &destinations[i]
			d.CachedAt = cachedAt
			if _, err := q.ExecContext(ctx, query,
				d.ID, d.Name, d.NameAr, d.Description, d.DescriptionAr, d.Latitude, d.Longitude,
				d.Category, d.ImageURL, d.Rating, boolToInt(d.IsActive), d.CreatedAt, d.CachedAt,
			); err != nil {
				return dbError("failed to cache destination "+d.ID, err)
			}
		}
		return nil
	})
}

// GetDestination retrieves a cached destination by ID.
func (r *destinationRepo) GetDestination(ctx context.Context, id string) (*models.Destination, error) {
	row := r.c.queryRow(ctx, "SELECT "+destinationColumns+" FROM destinations WHERE id = ?", id)
	d, err := scanDestination(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "destination not found: "+id)
	}
	if err != nil {
		return nil, dbError("failed to get destination", err)
	}
	return d, nil
}

// ListDestinations returns destinations matching q.
func (r *destinationRepo) ListDestinations(ctx context.Context, q Query) ([]models.Destination, error) {
	tail, args, err := destinationEntity.build(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.c.q.QueryContext(ctx, "SELECT "+destinationColumns+" FROM destinations"+tail, args...)
	if err != nil {
		return nil, dbError("failed to list destinations", err)
	}
	defer rows.Close()

	var out []models.Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, dbError("failed to scan destination", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDestination(s scanner) (*models.Destination, error) {
	var d models.Destination
	var nameAr, desc, descAr, category, imageURL sql.NullString
	var rating sql.NullFloat64
	var active sql.NullInt64
	if err := s.Scan(&d.ID, &d.Name, &nameAr, &desc, &descAr, &d.Latitude, &d.Longitude,
		&category, &imageURL, &rating, &active, &d.CreatedAt, &d.CachedAt); err != nil {
		return nil, err
	}
	d.NameAr = nameAr.String
	d.Description = desc.String
	d.DescriptionAr = descAr.String
	d.Category = category.String
	d.ImageURL = imageURL.String
	d.Rating = rating.Float64
	d.IsActive = !active.Valid || active.Int64 != 0
	return &d, nil
}
