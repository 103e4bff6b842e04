// Package app wires the offline core from a Config. Every entrypoint
// (CLI, desktop server, mobile library) builds one App and closes it on exit.
package app

import (
	"context"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/smarttourjo/core/internal/api"
	"github.com/smarttourjo/core/internal/auth"
	"github.com/smarttourjo/core/internal/booking"
	"github.com/smarttourjo/core/internal/config"
	"github.com/smarttourjo/core/internal/crypto"
	"github.com/smarttourjo/core/internal/db"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/logging"
	"github.com/smarttourjo/core/internal/storage"
	syncpkg "github.com/smarttourjo/core/internal/sync"
	"github.com/smarttourjo/core/internal/sync/queue"
	"github.com/smarttourjo/core/internal/sync/scheduler"
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	DB        *db.DB
	Store     *db.Store
	KV        *storage.Store
	Tokens    *auth.Store
	API       *api.Client
	Queue     *queue.Queue
	Engine    *syncpkg.SyncEngine
	Scheduler *scheduler.Scheduler
	Booking   *booking.Store

	// Auth is nil unless an identity provider is configured.
	Auth *auth.Service
}

// Option customizes New.
type Option func(*options)

type options struct {
	logOut   io.Writer
	api      *api.Config
	provider auth.Provider
}

// WithLogOutput sends log lines to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOut = w }
}

// WithAPIConfig overrides the API client configuration derived from Config.
func WithAPIConfig(cfg api.Config) Option {
	return func(o *options) { o.api = &cfg }
}

// WithAuthProvider signs in through p instead of the configured Supabase project.
func WithAuthProvider(p auth.Provider) Option {
	return func(o *options) { o.provider = p }
}

// New opens the database in cfg.DataDir and wires every component.
// The scheduler is created but not started.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logOut: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	logging.Init(o.logOut, logging.ParseLevel(cfg.Log.Level))

	database, err := db.OpenAndMigrate(cfg.DataDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to open database", err)
	}

	var sealer *crypto.Sealer
	if cfg.Storage.Secret != "" {
		sealer, err = crypto.NewSealer(cfg.Storage.Secret)
		if err != nil {
			database.Close()
			return nil, err
		}
	}

	a := &App{
		Config:  cfg,
		DB:      database,
		Store:   db.NewStore(database),
		KV:      storage.New(database),
		Booking: booking.NewStore(),
	}
	a.Tokens = auth.NewStore(a.KV, sealer)

	apiCfg := apiConfig(cfg)
	if o.api != nil {
		apiCfg = *o.api
	}
	a.API = api.New(apiCfg, a.Tokens)

	a.Queue = queue.New(a.Store)
	a.Engine = syncpkg.NewSyncEngine(a.Store, a.Queue, a.KV, a.API, syncpkg.Options{
		CacheMaxAge:       cfg.Sync.CacheMaxAge,
		OfflineDataMaxAge: cfg.Sync.OfflineDataMaxAge,
		WeatherMaxAge:     cfg.Sync.WeatherMaxAge,
		Session:           a.Tokens,
	})
	a.Scheduler = scheduler.NewScheduler(a.Engine, &scheduler.SchedulerConfig{
		QueueInterval:       cfg.Sync.QueueInterval,
		MaintenanceInterval: cfg.Sync.MaintenanceInterval,
	})

	switch {
	case o.provider != nil:
		a.Auth = auth.NewService(o.provider, a.Tokens)
	case cfg.Supabase.URL != "":
		provider, err := auth.NewSupabaseProvider(cfg.Supabase.URL, cfg.Supabase.AnonKey)
		if err != nil {
			logging.Warn("Supabase auth disabled", map[string]interface{}{"error": err.Error()})
		} else {
			a.Auth = auth.NewService(provider, a.Tokens)
		}
	}

	logging.Info("Core initialized", map[string]interface{}{
		"data_dir": cfg.DataDir,
		"api_base": apiCfg.BaseURL,
	})
	return a, nil
}

func apiConfig(cfg *config.Config) api.Config {
	c := api.Config{
		BaseURL: cfg.APIBase(),
		Timeout: cfg.API.Timeout,
	}
	if b := cfg.API.Breaker; b.Enabled {
		c.Breaker = api.BreakerConfig{
			MaxRequests:  b.MaxRequests,
			Interval:     b.Interval,
			Timeout:      b.Timeout,
			FailureRatio: b.FailureRatio,
			MinRequests:  b.MinRequests,
		}
	}
	return c
}

// Start runs the background scheduler until ctx ends or Close is called.
func (a *App) Start(ctx context.Context) {
	a.Scheduler.Start(ctx)
}

// Close stops the scheduler and closes the database.
func (a *App) Close() error {
	a.Scheduler.Stop()

	var result *multierror.Error
	if err := a.Store.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.DB.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	// Syncing a terminal fails with EINVAL; nothing to report
	_ = logging.Get().Sync()
	return result.ErrorOrNil()
}
