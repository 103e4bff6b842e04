// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libsmarttour.so (Android) / smarttour.framework (iOS).
//
// Every exported call takes and returns JSON strings. Calls return an empty
// result and record the reason for GetLastError on failure.
package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/smarttourjo/core/internal/app"
	"github.com/smarttourjo/core/internal/booking"
	"github.com/smarttourjo/core/internal/config"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/logging"
	"github.com/smarttourjo/core/internal/models"
	"github.com/smarttourjo/core/internal/sync/queue"
)

// bridge owns the core for the lifetime of the loaded library.
type bridge struct {
	mu     sync.RWMutex
	app    *app.App
	cancel context.CancelFunc
}

var core bridge

// coreOptions are applied by initCore. Tests use them to stub collaborators.
var coreOptions []app.Option

// bridgeError is the shape GetLastError returns.
type bridgeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	lastErr string
	lastMu  sync.RWMutex
)

func setLastError(err error) {
	lastMu.Lock()
	defer lastMu.Unlock()
	if err == nil {
		lastErr = ""
		return
	}
	b, _ := json.Marshal(bridgeError{Code: string(apperrors.CodeOf(err)), Message: apperrors.MessageOf(err)})
	lastErr = string(b)
}

func getLastError() string {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return lastErr
}

// initCore wires the core over dataDir and starts the background scheduler.
// configPath may be empty. Calling it again while initialized is a no-op.
func initCore(dataDir, configPath string) error {
	core.mu.Lock()
	defer core.mu.Unlock()
	if core.app != nil {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	a, err := app.New(cfg, coreOptions...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)
	core.app = a
	core.cancel = cancel
	return nil
}

// cleanupCore stops the scheduler and closes the database.
func cleanupCore() error {
	core.mu.Lock()
	defer core.mu.Unlock()
	if core.app == nil {
		return nil
	}
	core.cancel()
	err := core.app.Close()
	core.app = nil
	return err
}

// withCore runs fn against the initialized core and encodes its result.
func withCore(fn func(ctx context.Context, a *app.App) (interface{}, error)) (string, error) {
	core.mu.RLock()
	defer core.mu.RUnlock()
	if core.app == nil {
		return "", apperrors.New(apperrors.ErrInternal, "core not initialized")
	}

	result, err := fn(context.Background(), core.app)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "failed to serialize result", err)
	}
	return string(data), nil
}

func decodeArg(arg string, v interface{}) error {
	if err := json.Unmarshal([]byte(arg), v); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "invalid JSON argument", err)
	}
	return nil
}

// =====================================================
// Sync
// =====================================================

func syncPending() (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Scheduler.SyncNow(ctx)
	})
}

func syncStatus() (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Scheduler.GetStatus(ctx), nil
	})
}

func setOnline(online bool) (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		a.Scheduler.SetOnlineStatus(online)
		return map[string]bool{"online": online}, nil
	})
}

// enqueueRequest is the JSON form of a queued mutation.
type enqueueRequest struct {
	Type     models.ActionType `json:"type"`
	Endpoint string            `json:"endpoint"`
	Data     json.RawMessage   `json:"data,omitempty"`
	Table    string            `json:"table,omitempty"`
}

func enqueueAction(arg string) (string, error) {
	var req enqueueRequest
	if err := decodeArg(arg, &req); err != nil {
		return "", err
	}
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		intent := queue.Intent{Type: req.Type, Endpoint: req.Endpoint, Table: req.Table}
		if len(req.Data) > 0 {
			intent.Data = req.Data
		}
		return a.Queue.Enqueue(ctx, intent)
	})
}

func pendingActions() (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		actions, err := a.Queue.Pending(ctx)
		if actions == nil {
			actions = []models.OfflineAction{}
		}
		return actions, err
	})
}

func offlineStats() (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		stats, err := a.Engine.Stats(ctx)
		if stats != nil && err != nil {
			logging.Warn("Offline stats are partial", map[string]interface{}{"error": err.Error()})
			return stats, nil
		}
		return stats, err
	})
}

func downloadOfflineData() (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		if err := a.Engine.DownloadOfflineData(ctx); err != nil {
			return nil, err
		}
		return map[string]bool{"available": a.Engine.IsOfflineDataAvailable(ctx)}, nil
	})
}

func clearOfflineData() (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		return map[string]bool{"cleared": true}, a.Engine.ClearOfflineData(ctx)
	})
}

// =====================================================
// Itineraries
// =====================================================

func itineraryCreate(arg string) (string, error) {
	var item models.ItineraryItem
	if err := decodeArg(arg, &item); err != nil {
		return "", err
	}
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		if _, err := a.Engine.CreateItineraryOffline(ctx, &item); err != nil {
			return nil, err
		}
		return item, nil
	})
}

func itineraryUpdate(id, arg string) (string, error) {
	var update models.ItineraryUpdate
	if err := decodeArg(arg, &update); err != nil {
		return "", err
	}
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Engine.UpdateItineraryOffline(ctx, id, update)
	})
}

func itineraryDelete(id string) (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Engine.DeleteItineraryOffline(ctx, id)
	})
}

// =====================================================
// Storage
// =====================================================

func storageGet(key string) (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		value, ok, err := a.KV.Get(ctx, key)
		if err != nil || !ok {
			return nil, err
		}
		return value, nil
	})
}

func storageSet(key, value string) (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		return true, a.KV.Set(ctx, key, value)
	})
}

// =====================================================
// Session
// =====================================================

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func authLogin(arg string) (string, error) {
	var c credentials
	if err := decodeArg(arg, &c); err != nil {
		return "", err
	}
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Login(ctx, c.Email, c.Password)
	})
}

func authLogout() (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		return map[string]bool{"signedOut": true}, a.Logout(ctx)
	})
}

func authRefresh() (string, error) {
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		tok, err := a.RefreshSession(ctx)
		if err != nil {
			return nil, err
		}
		out := map[string]interface{}{"refreshed": true}
		if exp, ok := tok.ExpiresAt(); ok {
			out["expiresAt"] = exp.UnixMilli()
		}
		return out, nil
	})
}

// =====================================================
// Weather
// =====================================================

type weatherRequest struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Lang string  `json:"lang,omitempty"`
}

func currentWeather(arg string) (string, error) {
	var req weatherRequest
	if err := decodeArg(arg, &req); err != nil {
		return "", err
	}
	return withCore(func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Engine.CurrentWeather(ctx, req.Lat, req.Lon, req.Lang)
	})
}

// =====================================================
// Booking wizard
// =====================================================

// bookingCommand is one wizard operation.
type bookingCommand struct {
	Op      string          `json:"op"`
	Step    int             `json:"step,omitempty"`
	GuestID int             `json:"guestId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func bookingState() (string, error) {
	return withCore(func(_ context.Context, a *app.App) (interface{}, error) {
		return a.Booking.State(), nil
	})
}

// bookingDispatch applies cmd and returns the resulting state, or the
// operation's own result for canProceed and addGuest.
func bookingDispatch(arg string) (string, error) {
	var cmd bookingCommand
	if err := decodeArg(arg, &cmd); err != nil {
		return "", err
	}
	return withCore(func(_ context.Context, a *app.App) (interface{}, error) {
		return applyBooking(a.Booking, cmd)
	})
}

func applyBooking(s *booking.Store, cmd bookingCommand) (interface{}, error) {
	payload := func(v interface{}) error {
		if len(cmd.Payload) == 0 {
			return apperrors.New(apperrors.ErrInvalid, cmd.Op+" requires a payload")
		}
		return decodeArg(string(cmd.Payload), v)
	}

	switch cmd.Op {
	case "setStep":
		s.SetCurrentStep(cmd.Step)
	case "next":
		s.NextStep()
	case "previous":
		s.PreviousStep()
	case "canProceed":
		step := cmd.Step
		if step == 0 {
			step = s.CurrentStep()
		}
		return map[string]interface{}{"step": step, "canProceed": s.CanProceedFromStep(step)}, nil
	case "setTrip":
		var trip booking.TripDetails
		if err := payload(&trip); err != nil {
			return nil, err
		}
		s.SetTripDetails(trip)
	case "updateOptions":
		var u booking.OptionsUpdate
		if err := payload(&u); err != nil {
			return nil, err
		}
		s.UpdateBookingOptions(u)
	case "addGuest":
		return s.AddGuest(), nil
	case "updateGuest":
		var u booking.GuestUpdate
		if err := payload(&u); err != nil {
			return nil, err
		}
		if !s.UpdateGuest(cmd.GuestID, u) {
			return nil, apperrors.New(apperrors.ErrNotFound, "guest not found")
		}
	case "removeGuest":
		if !s.RemoveGuest(cmd.GuestID) {
			return nil, apperrors.New(apperrors.ErrNotFound, "guest not found or primary")
		}
	case "updatePayment":
		var u booking.PaymentUpdate
		if err := payload(&u); err != nil {
			return nil, err
		}
		s.UpdatePaymentInfo(u)
	case "generateReference":
		s.GenerateBookingReference()
	case "reset":
		s.ResetBooking()
	default:
		return nil, apperrors.New(apperrors.ErrInvalid, "unknown booking op: "+cmd.Op)
	}
	return s.State(), nil
}

func main() {
	// Required for c-shared build mode, not run when loaded as a library
}
