// Package sync tests for sync engine functionality.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttourjo/core/internal/auth"
	"github.com/smarttourjo/core/internal/db"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
	"github.com/smarttourjo/core/internal/storage"
	"github.com/smarttourjo/core/internal/sync/queue"
)

type call struct {
	Method   string
	Endpoint string
	Body     string
}

// fakeRemote records requests and fails the endpoints listed in fail.
type fakeRemote struct {
	mu    stdsync.Mutex
	calls []call
	fail  map[string]error

	// When set, the first request signals entered and waits on release.
	entered chan struct{}
	release chan struct{}

	destinations []models.Destination
	itineraries  []models.ItineraryItem
	profile      *models.UserProfile
	itinErr      error

	weather      *models.WeatherData
	weatherCalls int
}

func (f *fakeRemote) Request(_ context.Context, method, endpoint string, body, _ interface{}) error {
	var encoded string
	if body != nil {
		b, _ := json.Marshal(body)
		encoded = string(b)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call{method, endpoint, encoded})
	first := len(f.calls) == 1
	err := f.fail[endpoint]
	f.mu.Unlock()

	if first && f.entered != nil {
		close(f.entered)
		<-f.release
	}
	return err
}

func (f *fakeRemote) GetDestinations(context.Context, string, string) ([]models.Destination, error) {
	return f.destinations, nil
}

func (f *fakeRemote) GetItineraries(context.Context) ([]models.ItineraryItem, error) {
	return f.itineraries, f.itinErr
}

func (f *fakeRemote) GetProfile(context.Context) (*models.UserProfile, error) {
	if f.profile == nil {
		return nil, apperrors.New(apperrors.ErrAuthFailed, "Not authenticated")
	}
	return f.profile, nil
}

func (f *fakeRemote) CurrentWeather(_ context.Context, lat, lon float64, _ string) (*models.WeatherData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weatherCalls++
	if f.weather == nil {
		return nil, apperrors.New(apperrors.ErrNetwork, "Network connection error")
	}
	w := *f.weather
	return &w, nil
}

func (f *fakeRemote) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type testEnv struct {
	engine *SyncEngine
	store  *db.Store
	queue  *queue.Queue
	kv     *storage.Store
	remote *fakeRemote
	now    *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.OpenAndMigrate(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := db.NewStore(database)
	store.SetClock(func() time.Time { return now })
	t.Cleanup(func() {
		store.Close()
		database.Close()
	})

	q := queue.New(store)
	kv := storage.New(database)
	remote := &fakeRemote{fail: map[string]error{}}
	engine := NewSyncEngine(store, q, kv, remote, Options{Metrics: NewMetrics("test")})
	return &testEnv{engine: engine, store: store, queue: q, kv: kv, remote: remote, now: &now}
}

func (env *testEnv) enqueue(t *testing.T, typ models.ActionType, endpoint string, data interface{}) models.OfflineAction {
	t.Helper()
	a, err := env.queue.Enqueue(context.Background(), queue.Intent{Type: typ, Endpoint: endpoint, Data: data})
	require.NoError(t, err)
	return *a
}

// =====================================================
// Drain
// =====================================================

func TestDrain_ReplaysInEnqueueOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueue(t, models.ActionCreate, "/itineraries", map[string]string{"destination_id": "petra"})
	env.enqueue(t, models.ActionUpdate, "/itineraries/a", map[string]string{"status": "visited"})
	env.enqueue(t, models.ActionDelete, "/itineraries/b", map[string]string{"id": "b"})
	env.enqueue(t, models.ActionUpdate, "/profile", nil)

	pending, err := env.queue.Pending(ctx)
	require.NoError(t, err)

	results := env.engine.Drain(ctx, pending)
	assert.Equal(t, []bool{true, true, true, true}, results)
	assert.Equal(t, []call{
		{"POST", "/itineraries", `{"destination_id":"petra"}`},
		{"PUT", "/itineraries/a", `{"status":"visited"}`},
		{"DELETE", "/itineraries/b", ""},
		{"PUT", "/profile", ""},
	}, env.remote.recorded())

	left, _ := env.queue.Pending(ctx)
	assert.Empty(t, left, "replayed actions are marked synced")
}

func TestDrain_PartialFailureIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enqueue(t, models.ActionCreate, "/itineraries", nil)
	failing := env.enqueue(t, models.ActionUpdate, "/itineraries/x", nil)
	env.enqueue(t, models.ActionDelete, "/itineraries/y", nil)
	env.remote.fail["/itineraries/x"] = errors.New("Server error: 500")

	pending, _ := env.queue.Pending(ctx)
	results := env.engine.Drain(ctx, pending)
	assert.Equal(t, []bool{true, false, true}, results)
	assert.Len(t, env.remote.recorded(), 3)

	left, _ := env.queue.Pending(ctx)
	require.Len(t, left, 1)
	assert.Equal(t, failing.ID, left[0].ID)

	rows, _ := env.queue.Rows(ctx, false)
	assert.Equal(t, 1, rows[0].Attempts)
	assert.Equal(t, "Server error: 500", rows[0].LastError)
}

func TestDrain_UnknownTypeFails(t *testing.T) {
	env := newTestEnv(t)
	actions := []models.OfflineAction{
		{ID: "offline_1", Type: "PATCH", Endpoint: "/profile"},
		{ID: "offline_2", Type: models.ActionDelete, Endpoint: "/itineraries/1"},
	}

	results := env.engine.Drain(context.Background(), actions)
	assert.Equal(t, []bool{false, true}, results)
	assert.Equal(t, []call{{"DELETE", "/itineraries/1", ""}}, env.remote.recorded())
}

func TestDrain_ConcurrentDrainSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.remote.entered = make(chan struct{})
	env.remote.release = make(chan struct{})

	env.enqueue(t, models.ActionCreate, "/itineraries", nil)
	env.enqueue(t, models.ActionCreate, "/itineraries", nil)
	pending, _ := env.queue.Pending(ctx)

	done := make(chan []bool)
	go func() { done <- env.engine.Drain(ctx, pending) }()
	<-env.remote.entered

	second := env.engine.Drain(ctx, pending)
	assert.Equal(t, []bool{false, false}, second)
	assert.Len(t, env.remote.recorded(), 1, "second drain must not call the API")

	res, err := env.engine.SyncPending(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(env.remote.release)
	assert.Equal(t, []bool{true, true}, <-done)
	assert.Len(t, env.remote.recorded(), 2)
	assert.False(t, env.queue.Draining())
}

func TestDrain_CancelledContext(t *testing.T) {
	env := newTestEnv(t)
	env.enqueue(t, models.ActionCreate, "/itineraries", nil)
	env.enqueue(t, models.ActionCreate, "/itineraries", nil)
	pending, _ := env.queue.Pending(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := env.engine.Drain(ctx, pending)
	assert.Equal(t, []bool{false, false}, results)
	assert.Empty(t, env.remote.recorded())
}

// =====================================================
// SyncPending
// =====================================================

func TestSyncPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var events []string
	env.engine.SetEventHandler(func(ev SyncEvent) { events = append(events, ev.Type) })

	res, err := env.engine.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted)
	_, ok := env.engine.LastSync(ctx)
	assert.False(t, ok, "empty queue does not record a sync")

	env.enqueue(t, models.ActionCreate, "/itineraries", nil)
	env.enqueue(t, models.ActionUpdate, "/profile", nil)
	env.remote.fail["/profile"] = errors.New("Network connection error")

	res, err = env.engine.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.Skipped)

	rows, _ := env.queue.Rows(ctx, true)
	require.Len(t, rows, 1, "successful action cleared")
	assert.Equal(t, "/profile", rows[0].Endpoint)

	last, ok := env.engine.LastSync(ctx)
	require.True(t, ok)
	assert.True(t, last.Equal(*env.now))

	assert.Equal(t, []string{EventSyncStarted, EventSyncProgress, EventSyncProgress, EventSyncCompleted}, events)

	// Failed action is retried on the next run
	delete(env.remote.fail, "/profile")
	res, err = env.engine.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	n, _ := env.engine.PendingCount(ctx)
	assert.Zero(t, n)
}

// =====================================================
// Offline mutations
// =====================================================

func TestCreateItineraryOffline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := &models.ItineraryItem{UserID: "u1", DestinationID: "petra", DestinationName: "Petra"}
	action, err := env.engine.CreateItineraryOffline(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreate, action.Type)
	assert.Equal(t, "/itineraries", action.Endpoint)

	stored, err := env.store.Itineraries().GetItinerary(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, stored.Synced)
	assert.Equal(t, models.StatusPlanned, stored.Status)

	rows, _ := env.queue.Rows(ctx, false)
	require.Len(t, rows, 1)
	assert.Equal(t, "itineraries", rows[0].TableName)

	var queued models.ItineraryItem
	require.NoError(t, json.Unmarshal(rows[0].Data, &queued))
	assert.Equal(t, item.ID, queued.ID)
}

func TestCreateItineraryOffline_StampsSessionUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tokens := auth.NewStore(env.kv, nil)
	env.engine.opts.Session = tokens

	// Signed out: the item is rejected for lack of a user
	_, err := env.engine.CreateItineraryOffline(ctx, &models.ItineraryItem{DestinationID: "petra", DestinationName: "Petra"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-99"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	require.NoError(t, tokens.SaveToken(ctx, &auth.Token{AccessToken: access}))

	item := &models.ItineraryItem{DestinationID: "petra", DestinationName: "Petra"}
	_, err = env.engine.CreateItineraryOffline(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, "user-99", item.UserID)

	stored, err := env.store.Itineraries().GetItinerary(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-99", stored.UserID)

	// An explicit user is kept
	other := &models.ItineraryItem{UserID: "u1", DestinationID: "jerash", DestinationName: "Jerash"}
	_, err = env.engine.CreateItineraryOffline(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, "u1", other.UserID)
}

func TestCreateItineraryOffline_InvalidRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.CreateItineraryOffline(ctx, &models.ItineraryItem{UserID: "u1"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))

	n, _ := env.queue.Count(ctx)
	assert.Zero(t, n)
}

func TestUpdateAndDeleteItineraryOffline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := &models.ItineraryItem{ID: "it-1", UserID: "u1", DestinationID: "wadi-rum", DestinationName: "Wadi Rum"}
	_, err := env.engine.CreateItineraryOffline(ctx, item)
	require.NoError(t, err)

	status := models.StatusVisited
	action, err := env.engine.UpdateItineraryOffline(ctx, "it-1", models.ItineraryUpdate{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "/itineraries/it-1", action.Endpoint)
	assert.JSONEq(t, `{"status":"visited"}`, string(action.Data))

	stored, _ := env.store.Itineraries().GetItinerary(ctx, "it-1")
	assert.Equal(t, models.StatusVisited, stored.Status)

	_, err = env.engine.UpdateItineraryOffline(ctx, "missing", models.ItineraryUpdate{Status: &status})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = env.engine.UpdateItineraryOffline(ctx, "it-1", models.ItineraryUpdate{})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))

	action, err = env.engine.DeleteItineraryOffline(ctx, "it-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActionDelete, action.Type)

	_, err = env.store.Itineraries().GetItinerary(ctx, "it-1")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	pending, _ := env.queue.Pending(ctx)
	require.Len(t, pending, 3)
	assert.Equal(t, []models.ActionType{models.ActionCreate, models.ActionUpdate, models.ActionDelete},
		[]models.ActionType{pending[0].Type, pending[1].Type, pending[2].Type})
}

func TestUpdateProfileOfflineAndChat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	profile := &models.UserProfile{ID: "u1", Preferences: models.DefaultPreferences()}
	profile.Preferences.Language = "ar"
	action, err := env.engine.UpdateProfileOffline(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, "/profile", action.Endpoint)
	assert.Equal(t, models.ActionUpdate, action.Type)

	stored, err := env.store.Profiles().GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ar", stored.Preferences.Language)

	msg := &models.ChatMessage{ID: "m1", Text: "Is Petra open today?", Type: models.ChatUser, Timestamp: 1}
	require.NoError(t, env.engine.SaveChatMessageOffline(ctx, msg))

	n, _ := env.queue.Count(ctx)
	assert.Equal(t, 1, n, "chat messages are not queued")
	msgs, _ := env.store.Chat().ListChatMessages(ctx, 10)
	assert.Len(t, msgs, 1)
}

// =====================================================
// Offline data
// =====================================================

func TestDownloadOfflineData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.False(t, env.engine.IsOfflineDataAvailable(ctx))

	env.remote.destinations = []models.Destination{{ID: "petra", Name: "Petra", IsActive: true}}
	env.remote.itinErr = apperrors.New(apperrors.ErrAuthFailed, "Not authenticated")
	require.NoError(t, env.engine.DownloadOfflineData(ctx))

	assert.True(t, env.engine.IsOfflineDataAvailable(ctx))

	var prefs models.UserPreferences
	found, _ := env.kv.GetObject(ctx, storage.KeyUserPreferences, &prefs)
	assert.False(t, found, "profile skipped when signed out")

	env.remote.itinErr = nil
	env.remote.itineraries = []models.ItineraryItem{{ID: "srv-1", UserID: "u1", DestinationID: "petra", DestinationName: "Petra"}}
	env.remote.profile = &models.UserProfile{ID: "u1", Preferences: models.DefaultPreferences()}
	require.NoError(t, env.engine.DownloadOfflineData(ctx))

	item, err := env.store.Itineraries().GetItinerary(ctx, "srv-1")
	require.NoError(t, err)
	assert.True(t, item.Synced)
	found, _ = env.kv.GetObject(ctx, storage.KeyUserPreferences, &prefs)
	assert.True(t, found)
	assert.Equal(t, "medium", prefs.Budget)

	// Stale after seven days
	*env.now = env.now.Add(DefaultOfflineDataMaxAge + time.Minute)
	assert.False(t, env.engine.IsOfflineDataAvailable(ctx))
}

func TestClearOfflineDataAndStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Destinations().CacheDestinations(ctx, []models.Destination{{ID: "jerash", Name: "Jerash"}}))
	_, err := env.engine.CreateItineraryOffline(ctx, &models.ItineraryItem{UserID: "u1", DestinationID: "jerash", DestinationName: "Jerash"})
	require.NoError(t, err)
	require.NoError(t, env.kv.SetInt64(ctx, storage.KeyLastSync, env.now.UnixMilli()))
	require.NoError(t, env.kv.Set(ctx, storage.KeyLanguage, "ar"))

	stats, err := env.engine.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Destinations)
	assert.EqualValues(t, 1, stats.Itineraries)
	assert.Equal(t, 1, stats.PendingActions)
	assert.Positive(t, stats.DatabaseSize)

	require.NoError(t, env.engine.ClearOfflineData(ctx))

	stats, err = env.engine.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Destinations)
	assert.Zero(t, stats.Itineraries)
	assert.Zero(t, stats.PendingActions)

	_, ok := env.engine.LastSync(ctx)
	assert.False(t, ok)
	lang, ok, _ := env.kv.Get(ctx, storage.KeyLanguage)
	assert.True(t, ok, "unrelated keys survive")
	assert.Equal(t, "ar", lang)
}

func TestPerformMaintenance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Destinations().CacheDestinations(ctx, []models.Destination{{ID: "old", Name: "Old"}}))
	a := env.enqueue(t, models.ActionCreate, "/itineraries", nil)
	require.NoError(t, env.queue.MarkSynced(ctx, a.ID))
	env.enqueue(t, models.ActionCreate, "/itineraries", nil)

	*env.now = env.now.Add(8 * 24 * time.Hour)
	require.NoError(t, env.engine.PerformMaintenance(ctx))

	n, _ := env.store.CountRows(ctx, "destinations")
	assert.Zero(t, n)
	rows, _ := env.queue.Rows(ctx, true)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Synced)
}

// =====================================================
// Weather
// =====================================================

func TestCurrentWeather_ReadThrough(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.remote.weather = &models.WeatherData{CityName: "Amman", Temperature: 24, Description: "clear"}

	w, err := env.engine.CurrentWeather(ctx, 31.95, 35.93, "en")
	require.NoError(t, err)
	assert.Equal(t, "Amman", w.CityName)
	assert.Equal(t, 1, env.remote.weatherCalls)

	// Inside the window the cache answers
	*env.now = env.now.Add(29 * time.Minute)
	w, err = env.engine.CurrentWeather(ctx, 31.95, 35.93, "en")
	require.NoError(t, err)
	assert.Equal(t, "Amman", w.CityName)
	assert.Equal(t, 1, env.remote.weatherCalls)

	// Another location misses
	_, err = env.engine.CurrentWeather(ctx, 29.53, 35.0, "en")
	require.NoError(t, err)
	assert.Equal(t, 2, env.remote.weatherCalls)

	// Past the window the API is asked again
	*env.now = env.now.Add(2 * time.Minute)
	_, err = env.engine.CurrentWeather(ctx, 31.95, 35.93, "en")
	require.NoError(t, err)
	assert.Equal(t, 3, env.remote.weatherCalls)
}

func TestCurrentWeather_RemoteFailure(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.CurrentWeather(context.Background(), 31.95, 35.93, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrNetwork))

	n, err := env.store.CountRows(context.Background(), "weather_cache")
	require.NoError(t, err)
	assert.Zero(t, n)
}
