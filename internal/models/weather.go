package models

import "time"

// WeatherData is a weather observation cached by location.
type WeatherData struct {
	ID          string  `db:"id" json:"id,omitempty"`
	CityName    string  `db:"city_name" json:"cityName"`
	Temperature float64 `db:"temperature" json:"temperature"`
	Humidity    float64 `db:"humidity" json:"humidity,omitempty"`
	Pressure    float64 `db:"pressure" json:"pressure,omitempty"`
	Description string  `db:"description" json:"description"`
	WindSpeed   float64 `db:"wind_speed" json:"wind_speed,omitempty"`
	Latitude    float64 `db:"latitude" json:"latitude,omitempty"`
	Longitude   float64 `db:"longitude" json:"longitude,omitempty"`
	Source      string  `db:"source" json:"source"`
	CachedAt    int64   `db:"cached_at" json:"-"` // Unix seconds
}

// Table returns the table name for WeatherData.
func (WeatherData) Table() string {
	return "weather_cache"
}

// CachedAtTime returns CachedAt as time.Time.
func (w *WeatherData) CachedAtTime() time.Time {
	return time.Unix(w.CachedAt, 0)
}
