package sync

import (
	"context"

	"github.com/smarttourjo/core/internal/logging"
	"github.com/smarttourjo/core/internal/models"
)

// CurrentWeather returns the cached observation for (lat, lon) while it is
// fresher than the weather window, and fetches and caches a new one otherwise.
func (e *SyncEngine) CurrentWeather(ctx context.Context, lat, lon float64, lang string) (*models.WeatherData, error) {
	cached, ok, err := e.store.Weather().CachedWeather(ctx, lat, lon, e.opts.WeatherMaxAge)
	if err != nil {
		logging.Warn("Weather cache unavailable", map[string]interface{}{"error": err.Error()})
	} else if ok {
		e.metrics.WeatherLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	e.metrics.WeatherLookups.WithLabelValues("miss").Inc()

	w, err := e.remote.CurrentWeather(ctx, lat, lon, lang)
	if err != nil {
		return nil, err
	}
	// Cache under the requested coordinates so the next lookup matches.
	w.Latitude, w.Longitude = lat, lon
	if err := e.store.Weather().CacheWeather(ctx, w); err != nil {
		logging.Error("Failed to cache weather", err, map[string]interface{}{"lat": lat, "lon": lon})
	}
	return w, nil
}
