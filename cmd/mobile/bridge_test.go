package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttourjo/core/internal/api"
	"github.com/smarttourjo/core/internal/app"
	"github.com/smarttourjo/core/internal/auth"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
)

func setupCore(t *testing.T, opts ...app.Option) {
	t.Helper()
	coreOptions = append([]app.Option{app.WithLogOutput(io.Discard)}, opts...)
	require.NoError(t, initCore(t.TempDir(), ""))
	t.Cleanup(func() {
		require.NoError(t, cleanupCore())
		coreOptions = nil
	})
}

func TestNotInitialized(t *testing.T) {
	_, err := pendingActions()
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInternal, apperrors.CodeOf(err))
}

func TestInitTwiceAndCleanupTwice(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, initCore(dir, ""))
	require.NoError(t, initCore(dir, ""))
	require.NoError(t, cleanupCore())
	require.NoError(t, cleanupCore())
}

func TestLastError(t *testing.T) {
	setLastError(apperrors.New(apperrors.ErrInvalid, "bad input"))
	var e bridgeError
	require.NoError(t, json.Unmarshal([]byte(getLastError()), &e))
	assert.Equal(t, "INVALID_INPUT", e.Code)
	assert.Equal(t, "bad input", e.Message)

	setLastError(nil)
	assert.Empty(t, getLastError())
}

func TestEnqueueAndPending(t *testing.T) {
	setupCore(t)

	out, err := enqueueAction(`{"type":"UPDATE","endpoint":"/profile","data":{"budget":"low"}}`)
	require.NoError(t, err)
	var action models.OfflineAction
	require.NoError(t, json.Unmarshal([]byte(out), &action))
	assert.Equal(t, models.ActionUpdate, action.Type)
	assert.JSONEq(t, `{"budget":"low"}`, string(action.Data))

	_, err = enqueueAction(`{"type":"PATCH","endpoint":"/profile"}`)
	assert.Equal(t, apperrors.ErrInvalid, apperrors.CodeOf(err))

	_, err = enqueueAction(`not json`)
	assert.Equal(t, apperrors.ErrInvalid, apperrors.CodeOf(err))

	out, err = pendingActions()
	require.NoError(t, err)
	var actions []models.OfflineAction
	require.NoError(t, json.Unmarshal([]byte(out), &actions))
	require.Len(t, actions, 1)
	assert.Equal(t, action.ID, actions[0].ID)
}

func TestItineraryAndStats(t *testing.T) {
	setupCore(t)

	out, err := itineraryCreate(`{"user_id":"u1","destination_id":"aqaba","destination_name":"Aqaba"}`)
	require.NoError(t, err)
	var item models.ItineraryItem
	require.NoError(t, json.Unmarshal([]byte(out), &item))
	require.NotEmpty(t, item.ID)

	_, err = itineraryUpdate(item.ID, `{"status":"visited"}`)
	require.NoError(t, err)
	_, err = itineraryDelete(item.ID)
	require.NoError(t, err)

	out, err = offlineStats()
	require.NoError(t, err)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 3, stats["pendingActions"])
	assert.EqualValues(t, 0, stats["itineraries"])
}

func TestStorage(t *testing.T) {
	setupCore(t)

	out, err := storageGet("language")
	require.NoError(t, err)
	assert.Equal(t, "null", out)

	_, err = storageSet("language", "ar")
	require.NoError(t, err)
	out, err = storageGet("language")
	require.NoError(t, err)
	assert.Equal(t, `"ar"`, out)
}

func TestBookingDispatch(t *testing.T) {
	setupCore(t)

	steps := []string{
		`{"op":"setTrip","payload":{"title":"Dana","price":30}}`,
		`{"op":"updateOptions","payload":{"selectedDate":"2025-06-01","numberOfGuests":2}}`,
		`{"op":"next"}`,
	}
	var out string
	var err error
	for _, s := range steps {
		out, err = bookingDispatch(s)
		require.NoError(t, err, s)
	}
	var state map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.EqualValues(t, 2, state["currentStep"])

	out, err = bookingDispatch(`{"op":"canProceed"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":2,"canProceed":false}`, out)

	out, err = bookingDispatch(`{"op":"addGuest"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"id":2`)

	_, err = bookingDispatch(`{"op":"removeGuest","guestId":1}`)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))

	_, err = bookingDispatch(`{"op":"setTrip"}`)
	assert.Equal(t, apperrors.ErrInvalid, apperrors.CodeOf(err))

	_, err = bookingDispatch(`{"op":"fly"}`)
	assert.Equal(t, apperrors.ErrInvalid, apperrors.CodeOf(err))

	out, err = bookingDispatch(`{"op":"generateReference"}`)
	require.NoError(t, err)
	assert.Regexp(t, `"bookingReference":"STJ-[0-9A-Z]{6}"`, out)

	out, err = bookingState()
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"confirmed"`)
}

type stubProvider struct {
	signOuts []string
}

func (p *stubProvider) SignIn(_ context.Context, email, _ string) (*auth.Session, error) {
	return &auth.Session{
		Token: auth.Token{AccessToken: "sb-access", RefreshToken: "sb-refresh"},
		User:  models.User{ID: "sb-user", Email: email},
	}, nil
}

func (p *stubProvider) SignUp(_ context.Context, email, _, _ string) (*auth.Session, error) {
	return &auth.Session{User: models.User{ID: "sb-user", Email: email}}, nil
}

func (p *stubProvider) Refresh(_ context.Context, _ string) (*auth.Session, error) {
	return &auth.Session{Token: auth.Token{AccessToken: "sb-access-2"}}, nil
}

func (p *stubProvider) SignOut(_ context.Context, accessToken string) error {
	p.signOuts = append(p.signOuts, accessToken)
	return nil
}

func TestSessionThroughProvider(t *testing.T) {
	p := &stubProvider{}
	setupCore(t, app.WithAuthProvider(p))

	out, err := authLogin(`{"email":"rana@smarttour.jo","password":"pw"}`)
	require.NoError(t, err)
	var user models.User
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	assert.Equal(t, "sb-user", user.ID)

	out, err = authRefresh()
	require.NoError(t, err)
	assert.JSONEq(t, `{"refreshed":true}`, out)

	_, err = authLogout()
	require.NoError(t, err)
	assert.Equal(t, []string{"sb-access-2"}, p.signOuts)

	_, err = authRefresh()
	assert.Equal(t, apperrors.ErrAuthFailed, apperrors.CodeOf(err))

	_, err = authLogin(`{"email":"","password":""}`)
	assert.Equal(t, apperrors.ErrInvalid, apperrors.CodeOf(err))
}

func TestCurrentWeatherCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/api/weather/current", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cityName":"Aqaba","temperature":31,"description":"sunny","source":"api"}`))
	}))
	defer srv.Close()
	setupCore(t, app.WithAPIConfig(api.Config{BaseURL: srv.URL + "/api"}))

	for i := 0; i < 2; i++ {
		out, err := currentWeather(`{"lat":29.53,"lon":35.0,"lang":"ar"}`)
		require.NoError(t, err)
		assert.Contains(t, out, `"cityName":"Aqaba"`)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	_, err := currentWeather(`{"lat":`)
	assert.Equal(t, apperrors.ErrInvalid, apperrors.CodeOf(err))
}
