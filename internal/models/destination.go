package models

import "time"

// Destination is a cached point of interest.
type Destination struct {
	ID            string  `db:"id" json:"id"`
	Name          string  `db:"name" json:"name"`
	NameAr        string  `db:"name_ar" json:"name_ar,omitempty"`
	Description   string  `db:"description" json:"description,omitempty"`
	DescriptionAr string  `db:"description_ar" json:"description_ar,omitempty"`
	Latitude      float64 `db:"latitude" json:"latitude"`
	Longitude     float64 `db:"longitude" json:"longitude"`
	Category      string  `db:"category" json:"category,omitempty"`
	ImageURL      string  `db:"image_url" json:"image_url,omitempty"`
	Rating        float64 `db:"rating" json:"rating"`
	IsActive      bool    `db:"is_active" json:"is_active"`
	CreatedAt     string  `db:"created_at" json:"created_at"`
	CachedAt      int64   `db:"cached_at" json:"-"` // Unix seconds
}

// Table returns the table name for Destination.
func (Destination) Table() string {
	return "destinations"
}

// CachedAtTime returns CachedAt as time.Time.
func (d *Destination) CachedAtTime() time.Time {
	return time.Unix(d.CachedAt, 0)
}
