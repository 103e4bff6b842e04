// Package db tests for the per-entity repositories and maintenance.
package db

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
)

// =====================================================
// Destinations
// =====================================================

func sampleDestinations() []models.Destination {
	return []models.Destination{
		{ID: "d1", Name: "Petra", NameAr: "البتراء", Description: "Rose city", Latitude: 30.32, Longitude: 35.44, Category: "historical", Rating: 4.9, IsActive: true, CreatedAt: "2024-01-01"},
		{ID: "d2", Name: "Wadi Rum", Description: "Desert valley", Latitude: 29.57, Longitude: 35.42, Category: "nature", Rating: 4.8, IsActive: true, CreatedAt: "2024-01-01"},
		{ID: "d3", Name: "Dead Sea", Description: "Lowest point", Latitude: 31.55, Longitude: 35.47, Category: "nature", Rating: 4.7, IsActive: false, CreatedAt: "2024-01-01"},
	}
}

// TestDestinations_CacheAndList verifies upsert, filters and default ordering.
func TestDestinations_CacheAndList(t *testing.T) {
	ctx := context.Background()
	store, now := newTestStore(t)
	repo := store.Destinations()

	if err := repo.CacheDestinations(ctx, sampleDestinations()); err != nil {
		t.Fatalf("CacheDestinations() failed: %v", err)
	}

	all, err := repo.ListDestinations(ctx, Query{})
	if err != nil {
		t.Fatalf("ListDestinations() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Name != "Dead Sea" || all[2].Name != "Wadi Rum" {
		t.Errorf("not ordered by name: %s, %s, %s", all[0].Name, all[1].Name, all[2].Name)
	}
	if all[1].CachedAt != now.Unix() {
		t.Errorf("CachedAt = %d, want %d", all[1].CachedAt, now.Unix())
	}
	if all[1].NameAr != "البتراء" {
		t.Errorf("NameAr = %q", all[1].NameAr)
	}

	nature, err := repo.ListDestinations(ctx, Query{}.Where(CategoryFilter{Category: "nature"}, ActiveFilter{Active: true}))
	if err != nil {
		t.Fatalf("ListDestinations(nature) failed: %v", err)
	}
	if len(nature) != 1 || nature[0].ID != "d2" {
		t.Errorf("nature active = %+v", nature)
	}

	search, err := repo.ListDestinations(ctx, Query{}.Where(SearchFilter{Term: "rose"}))
	if err != nil {
		t.Fatalf("ListDestinations(search) failed: %v", err)
	}
	if len(search) != 1 || search[0].ID != "d1" {
		t.Errorf("search = %+v", search)
	}

	// Re-caching replaces rather than duplicates
	updated := sampleDestinations()[:1]
	updated[0].Rating = 5
	if err := repo.CacheDestinations(ctx, updated); err != nil {
		t.Fatalf("CacheDestinations() second call failed: %v", err)
	}
	d, err := repo.GetDestination(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDestination() failed: %v", err)
	}
	if d.Rating != 5 {
		t.Errorf("Rating = %v, want 5", d.Rating)
	}

	if _, err := repo.GetDestination(ctx, "missing"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("GetDestination(missing) error = %v, want NOT_FOUND", err)
	}
}

// =====================================================
// Itineraries
// =====================================================

// TestItineraries_Lifecycle verifies create defaults, partial update and delete.
func TestItineraries_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	repo := store.Itineraries()

	item := &models.ItineraryItem{UserID: "u1", DestinationID: "d1", DestinationName: "Petra"}
	if err := repo.CreateItinerary(ctx, item); err != nil {
		t.Fatalf("CreateItinerary() failed: %v", err)
	}
	if item.ID == "" || item.Status != models.StatusPlanned || item.Priority != 1 {
		t.Errorf("defaults not applied: %+v", item)
	}
	if item.AddedAt != "2025-03-01T12:00:00Z" {
		t.Errorf("AddedAt = %q", item.AddedAt)
	}

	notes := "bring water"
	if err := repo.UpdateItinerary(ctx, item.ID, models.ItineraryUpdate{Notes: &notes}); err != nil {
		t.Fatalf("UpdateItinerary() failed: %v", err)
	}
	got, err := repo.GetItinerary(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItinerary() failed: %v", err)
	}
	if got.Notes != notes || got.Status != models.StatusPlanned || got.Synced {
		t.Errorf("after update = %+v", got)
	}

	bad := "lost"
	if err := repo.UpdateItinerary(ctx, item.ID, models.ItineraryUpdate{Status: &bad}); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("UpdateItinerary(bad status) error = %v", err)
	}
	if err := repo.UpdateItinerary(ctx, "nope", models.ItineraryUpdate{Notes: &notes}); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("UpdateItinerary(missing) error = %v", err)
	}

	if err := repo.DeleteItinerary(ctx, item.ID); err != nil {
		t.Fatalf("DeleteItinerary() failed: %v", err)
	}
	if err := repo.DeleteItinerary(ctx, item.ID); err != nil {
		t.Errorf("second DeleteItinerary() should be a no-op, got %v", err)
	}
	if _, err := repo.GetItinerary(ctx, item.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("GetItinerary after delete error = %v", err)
	}
}

// TestItineraries_List verifies user scoping and synced upserts.
func TestItineraries_List(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	repo := store.Itineraries()

	server := []models.ItineraryItem{
		{ID: "i1", UserID: "u1", DestinationID: "d1", DestinationName: "Petra", Priority: 2, AddedAt: "2025-01-01T00:00:00Z"},
		{ID: "i2", UserID: "u1", DestinationID: "d2", DestinationName: "Wadi Rum", Status: models.StatusVisited, Priority: 1, AddedAt: "2025-02-01T00:00:00Z"},
		{ID: "i3", UserID: "u2", DestinationID: "d3", DestinationName: "Jerash", Priority: 1, AddedAt: "2025-03-01T00:00:00Z"},
	}
	if err := repo.SaveSyncedItineraries(ctx, server); err != nil {
		t.Fatalf("SaveSyncedItineraries() failed: %v", err)
	}

	mine, err := repo.ListUserItineraries(ctx, "u1")
	if err != nil {
		t.Fatalf("ListUserItineraries() failed: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "i2" || !mine[0].Synced {
		t.Errorf("ListUserItineraries = %+v", mine)
	}

	visited, err := repo.ListItineraries(ctx, Query{}.Where(StatusFilter{Status: models.StatusVisited}))
	if err != nil {
		t.Fatalf("ListItineraries(visited) failed: %v", err)
	}
	if len(visited) != 1 || visited[0].ID != "i2" {
		t.Errorf("visited = %+v", visited)
	}

	unsynced, err := repo.ListItineraries(ctx, Query{}.Where(SyncedFilter{Synced: false}))
	if err != nil {
		t.Fatalf("ListItineraries(unsynced) failed: %v", err)
	}
	if len(unsynced) != 0 {
		t.Errorf("unsynced = %d rows, want 0", len(unsynced))
	}
}

// =====================================================
// Weather
// =====================================================

// TestWeather_Freshness verifies the 30 minute window boundaries.
func TestWeather_Freshness(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := t0
	store.SetClock(func() time.Time { return clock })
	repo := store.Weather()

	w := &models.WeatherData{CityName: "Amman", Temperature: 21.5, Latitude: 31.95, Longitude: 35.93}
	if err := repo.CacheWeather(ctx, w); err != nil {
		t.Fatalf("CacheWeather() failed: %v", err)
	}

	clock = t0.Add(29 * time.Minute)
	got, ok, err := repo.CachedWeather(ctx, 31.95, 35.93, 30*time.Minute)
	if err != nil || !ok {
		t.Fatalf("CachedWeather(T+29m) = %v, %v, want hit", ok, err)
	}
	if got.CityName != "Amman" || got.Source != "api" {
		t.Errorf("got = %+v", got)
	}

	clock = t0.Add(31 * time.Minute)
	if _, ok, err := repo.CachedWeather(ctx, 31.95, 35.93, 30*time.Minute); err != nil || ok {
		t.Errorf("CachedWeather(T+31m) = %v, %v, want miss", ok, err)
	}

	if _, ok, _ := repo.CachedWeather(ctx, 29.53, 35.00, 0); ok {
		t.Error("CachedWeather at another location should miss")
	}
}

// TestWeather_NewestWins verifies the latest observation is returned.
func TestWeather_NewestWins(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := t0
	store.SetClock(func() time.Time { return clock })
	repo := store.Weather()

	repo.CacheWeather(ctx, &models.WeatherData{CityName: "Amman", Temperature: 18, Latitude: 1, Longitude: 2})
	clock = t0.Add(10 * time.Minute)
	repo.CacheWeather(ctx, &models.WeatherData{CityName: "Amman", Temperature: 20, Latitude: 1, Longitude: 2})

	got, ok, err := repo.CachedWeather(ctx, 1, 2, 0)
	if err != nil || !ok {
		t.Fatalf("CachedWeather() = %v, %v", ok, err)
	}
	if got.Temperature != 20 {
		t.Errorf("Temperature = %v, want 20", got.Temperature)
	}
}

// =====================================================
// Chat and profiles
// =====================================================

// TestChat_ListLatestAscending verifies the limit keeps the newest messages.
func TestChat_ListLatestAscending(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	repo := store.Chat()

	for i, text := range []string{"hello", "hi there", "weather?", "sunny"} {
		typ := models.ChatUser
		if i%2 == 1 {
			typ = models.ChatBot
		}
		if err := repo.SaveChatMessage(ctx, &models.ChatMessage{Text: text, Type: typ, Timestamp: int64(1000 + i)}); err != nil {
			t.Fatalf("SaveChatMessage() failed: %v", err)
		}
	}

	msgs, err := repo.ListChatMessages(ctx, 2)
	if err != nil {
		t.Fatalf("ListChatMessages() failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "weather?" || msgs[1].Text != "sunny" {
		t.Errorf("msgs = %+v", msgs)
	}

	if err := repo.SaveChatMessage(ctx, &models.ChatMessage{Text: "x", Type: "system"}); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("SaveChatMessage(system) error = %v", err)
	}
}

// TestProfiles_Upsert verifies created_at survives updates.
func TestProfiles_Upsert(t *testing.T) {
	ctx := context.Background()
	store, now := newTestStore(t)
	repo := store.Profiles()

	p := &models.UserProfile{ID: "u1", Preferences: models.DefaultPreferences()}
	if err := repo.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile() failed: %v", err)
	}

	later := now.Add(time.Hour)
	store.SetClock(func() time.Time { return later })

	update := &models.UserProfile{ID: "u1", Preferences: models.UserPreferences{Interests: []string{"hiking"}, Budget: "high", Language: "ar"}}
	if err := repo.UpsertProfile(ctx, update); err != nil {
		t.Fatalf("UpsertProfile() update failed: %v", err)
	}

	got, err := repo.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile() failed: %v", err)
	}
	if got.CreatedAt != "2025-03-01T12:00:00Z" || got.UpdatedAt != "2025-03-01T13:00:00Z" {
		t.Errorf("timestamps = %s / %s", got.CreatedAt, got.UpdatedAt)
	}
	if got.Preferences.Budget != "high" || len(got.Preferences.Interests) != 1 {
		t.Errorf("preferences = %+v", got.Preferences)
	}
}

// =====================================================
// Transactions and maintenance
// =====================================================

// TestWithTx_Rollback verifies an error inside fn discards every write.
func TestWithTx_Rollback(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx *Tx) error {
		if err := tx.Itineraries().CreateItinerary(ctx, &models.ItineraryItem{ID: "i1", UserID: "u", DestinationID: "d", DestinationName: "n"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}

	n, err := store.CountRows(ctx, "itineraries")
	if err != nil {
		t.Fatalf("CountRows() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("itineraries = %d after rollback, want 0", n)
	}
}

func TestWithTx_PanicRollsBack(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("WithTx() swallowed the panic")
			}
		}()
		store.WithTx(ctx, func(tx *Tx) error {
			if err := tx.Itineraries().CreateItinerary(ctx, &models.ItineraryItem{ID: "i1", UserID: "u", DestinationID: "d", DestinationName: "n"}); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	// The single connection is free again and the insert is gone
	done := make(chan int64, 1)
	go func() {
		n, err := store.CountRows(ctx, "itineraries")
		if err != nil {
			t.Errorf("CountRows() failed: %v", err)
		}
		done <- n
	}()
	select {
	case n := <-done:
		if n != 0 {
			t.Errorf("itineraries = %d after panic, want 0", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("database still held by the panicked transaction")
	}
}

// TestMaintenance verifies expiry, queue purge, size and table whitelist.
func TestMaintenance(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := t0
	store.SetClock(func() time.Time { return clock })

	store.Destinations().CacheDestinations(ctx, sampleDestinations()[:2])
	store.Weather().CacheWeather(ctx, &models.WeatherData{CityName: "Aqaba", Temperature: 30})

	clock = t0.Add(8 * 24 * time.Hour)
	store.Destinations().CacheDestinations(ctx, sampleDestinations()[2:])

	removed, err := store.ClearExpiredCache(ctx, 0)
	if err != nil {
		t.Fatalf("ClearExpiredCache() failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	if n, _ := store.CountRows(ctx, "destinations"); n != 1 {
		t.Errorf("destinations left = %d, want 1", n)
	}

	store.DB().Exec(`INSERT INTO sync_queue (id, action, endpoint, created_at, synced) VALUES ('a', 'CREATE', '/x', 1, 1), ('b', 'CREATE', '/x', 2, 0)`)
	purged, err := store.PurgeSyncedQueue(ctx)
	if err != nil || purged != 1 {
		t.Errorf("PurgeSyncedQueue() = %d, %v, want 1", purged, err)
	}

	if err := store.Vacuum(ctx); err != nil {
		t.Errorf("Vacuum() failed: %v", err)
	}
	size, err := store.DatabaseSize(ctx)
	if err != nil || size <= 0 {
		t.Errorf("DatabaseSize() = %d, %v", size, err)
	}

	if _, err := store.CountRows(ctx, "sqlite_master"); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("CountRows(sqlite_master) error = %v", err)
	}
	if err := store.Truncate(ctx, "users; --"); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Truncate(injection) error = %v", err)
	}
	if err := store.Truncate(ctx, "destinations"); err != nil {
		t.Errorf("Truncate(destinations) failed: %v", err)
	}
}
