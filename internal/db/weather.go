package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/smarttourjo/core/internal/models"
	"github.com/smarttourjo/core/internal/uuid"
)

// DefaultWeatherMaxAge is how long a cached observation stays fresh.
const DefaultWeatherMaxAge = 30 * time.Minute

type weatherRepo struct{ c conn }

// CacheWeather stores an observation stamped with the current time.
func (r *weatherRepo) CacheWeather(ctx context.Context, w *models.WeatherData) error {
	if w.ID == "" {
		w.ID = uuid.NewPrefixed(uuid.PrefixWeather)
	}
	if w.Source == "" {
		w.Source = "api"
	}
	w.CachedAt = r.c.now().Unix()

	query := `
	INSERT OR REPLACE INTO weather_cache (id, city_name, temperature, humidity, pressure, description,
		wind_speed, latitude, longitude, source, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.c.q.ExecContext(ctx, query, w.ID, w.CityName, w.Temperature, w.Humidity, w.Pressure,
		w.Description, w.WindSpeed, w.Latitude, w.Longitude, w.Source, w.CachedAt); err != nil {
		return dbError("failed to cache weather", err)
	}
	return nil
}

// CachedWeather returns the newest observation for (lat, lon) newer than maxAge.
func (r *weatherRepo) CachedWeather(ctx context.Context, lat, lon float64, maxAge time.Duration) (*models.WeatherData, bool, error) {
	if maxAge <= 0 {
		maxAge = DefaultWeatherMaxAge
	}
	cutoff := r.c.now().Add(-maxAge).Unix()

	query := `
	SELECT id, city_name, temperature, humidity, pressure, description, wind_speed,
		latitude, longitude, source, cached_at
	FROM weather_cache
	WHERE latitude = ? AND longitude = ? AND cached_at > ?
	ORDER BY cached_at DESC
	LIMIT 1`

	var w models.WeatherData
	var humidity, pressure, wind sql.NullFloat64
	var desc, source sql.NullString
	err := r.c.queryRow(ctx, query, lat, lon, cutoff).Scan(&w.ID, &w.CityName, &w.Temperature,
		&humidity, &pressure, &desc, &wind, &w.Latitude, &w.Longitude, &source, &w.CachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dbError("failed to read weather cache", err)
	}
	w.Humidity = humidity.Float64
	w.Pressure = pressure.Float64
	w.WindSpeed = wind.Float64
	w.Description = desc.String
	w.Source = source.String
	return &w, true, nil
}
