package db

import (
	"context"
	"time"

	"github.com/smarttourjo/core/internal/models"
)

// DestinationRepository defines operations for the destination cache.
type DestinationRepository interface {
	// CacheDestinations upserts destinations in one transaction and stamps cached_at.
	CacheDestinations(ctx context.Context, destinations []models.Destination) error

	// GetDestination retrieves a cached destination by ID.
	GetDestination(ctx context.Context, id string) (*models.Destination, error)

	// ListDestinations returns destinations matching q, by name when unordered.
	ListDestinations(ctx context.Context, q Query) ([]models.Destination, error)
}

// ItineraryRepository defines operations for itinerary persistence.
type ItineraryRepository interface {
	CreateItinerary(ctx context.Context, item *models.ItineraryItem) error
	GetItinerary(ctx context.Context, id string) (*models.ItineraryItem, error)

	// UpdateItinerary applies u and marks the row unsynced.
	UpdateItinerary(ctx context.Context, id string, u models.ItineraryUpdate) error

	// DeleteItinerary removes a row. Deleting a missing row is not an error.
	DeleteItinerary(ctx context.Context, id string) error

	ListUserItineraries(ctx context.Context, userID string) ([]models.ItineraryItem, error)
	ListItineraries(ctx context.Context, q Query) ([]models.ItineraryItem, error)

	// SaveSyncedItineraries upserts server copies with synced=1.
	SaveSyncedItineraries(ctx context.Context, items []models.ItineraryItem) error
}

// WeatherRepository defines operations for the weather cache.
type WeatherRepository interface {
	CacheWeather(ctx context.Context, w *models.WeatherData) error

	// CachedWeather returns the newest entry for the location cached within
	// maxAge. ok is false on a miss.
	CachedWeather(ctx context.Context, lat, lon float64, maxAge time.Duration) (w *models.WeatherData, ok bool, err error)
}

// ChatRepository defines operations for chat history.
type ChatRepository interface {
	SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error

	// ListChatMessages returns the latest limit messages, oldest first.
	ListChatMessages(ctx context.Context, limit int) ([]models.ChatMessage, error)
}

// ProfileRepository defines operations for user profiles.
type ProfileRepository interface {
	UpsertProfile(ctx context.Context, p *models.UserProfile) error
	GetProfile(ctx context.Context, id string) (*models.UserProfile, error)
}

// Ensure the repositories implement the interfaces at compile time.
var (
	_ DestinationRepository = (*destinationRepo)(nil)
	_ ItineraryRepository   = (*itineraryRepo)(nil)
	_ WeatherRepository     = (*weatherRepo)(nil)
	_ ChatRepository        = (*chatRepo)(nil)
	_ ProfileRepository     = (*profileRepo)(nil)
)
