// Package config loads the core's configuration from layered sources.
//
// Loading order, lowest to highest priority:
//  1. defaults (in code)
//  2. YAML file, when a path is given and the file exists
//  3. .env file next to the working directory, when present
//  4. SMARTTOUR_* environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/smarttourjo/core/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SMARTTOUR_"

// Config is the root configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir" validate:"required"`
	API      APIConfig      `yaml:"api"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Sync     SyncConfig     `yaml:"sync"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Desktop  DesktopConfig  `yaml:"desktop"`
}

// APIConfig configures the remote API client.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" validate:"required,url"`
	Prefix  string        `yaml:"prefix"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the API client's circuit breaker.
type BreakerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	FailureRatio float64       `yaml:"failure_ratio" validate:"gte=0,lte=1"`
	MinRequests  uint32        `yaml:"min_requests"`
}

// SupabaseConfig configures the hosted auth provider.
type SupabaseConfig struct {
	URL     string `yaml:"url" validate:"omitempty,url"`
	AnonKey string `yaml:"anon_key"`
}

// SyncConfig configures offline sync and cache freshness.
type SyncConfig struct {
	QueueInterval       time.Duration `yaml:"queue_interval" validate:"gt=0"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval" validate:"gt=0"`
	WeatherMaxAge       time.Duration `yaml:"weather_max_age" validate:"gt=0"`
	CacheMaxAge         time.Duration `yaml:"cache_max_age" validate:"gt=0"`
	OfflineDataMaxAge   time.Duration `yaml:"offline_data_max_age" validate:"gt=0"`
}

// StorageConfig configures the key/value store.
type StorageConfig struct {
	// Secret seals the persisted auth token when set.
	Secret string `yaml:"secret"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

// DesktopConfig configures the localhost server.
type DesktopConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		API: APIConfig{
			BaseURL: "http://localhost:8001",
			Prefix:  "/api",
			Timeout: 10 * time.Second,
			Breaker: BreakerConfig{
				Enabled:      true,
				MaxRequests:  5,
				Interval:     30 * time.Second,
				Timeout:      60 * time.Second,
				FailureRatio: 0.8,
				MinRequests:  5,
			},
		},
		Sync: SyncConfig{
			QueueInterval:       time.Minute,
			MaintenanceInterval: 24 * time.Hour,
			WeatherMaxAge:       30 * time.Minute,
			CacheMaxAge:         7 * 24 * time.Hour,
			OfflineDataMaxAge:   7 * 24 * time.Hour,
		},
		Log:     LogConfig{Level: "info"},
		Desktop: DesktopConfig{Addr: "127.0.0.1:8090"},
	}
}

// Load builds a Config from defaults, the YAML file at path (optional),
// a .env file (optional) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, apperrors.Wrap(apperrors.ErrConfig, fmt.Sprintf("failed to parse %s", path), err)
			}
		case !os.IsNotExist(err):
			return nil, apperrors.Wrap(apperrors.ErrConfig, fmt.Sprintf("failed to read %s", path), err)
		}
	}

	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, apperrors.Wrap(apperrors.ErrConfig, "failed to load .env", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, "configuration validation failed", err)
	}
	return nil
}

// APIBase returns the base URL joined with the versioned prefix.
func (c *Config) APIBase() string {
	return strings.TrimRight(c.API.BaseURL, "/") + "/" + strings.Trim(c.API.Prefix, "/")
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrConfig, fmt.Sprintf("invalid %s%s", EnvPrefix, name), err)
		}
		*dst = d
		return nil
	}

	str("DATA_DIR", &c.DataDir)
	str("API_BASE_URL", &c.API.BaseURL)
	str("API_PREFIX", &c.API.Prefix)
	str("SUPABASE_URL", &c.Supabase.URL)
	str("SUPABASE_ANON_KEY", &c.Supabase.AnonKey)
	str("STORAGE_SECRET", &c.Storage.Secret)
	str("LOG_LEVEL", &c.Log.Level)
	str("DESKTOP_ADDR", &c.Desktop.Addr)

	if v, ok := lookup(EnvPrefix + "API_BREAKER_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrConfig, "invalid "+EnvPrefix+"API_BREAKER_ENABLED", err)
		}
		c.API.Breaker.Enabled = b
	}

	for name, dst := range map[string]*time.Duration{
		"API_TIMEOUT":               &c.API.Timeout,
		"SYNC_QUEUE_INTERVAL":       &c.Sync.QueueInterval,
		"SYNC_MAINTENANCE_INTERVAL": &c.Sync.MaintenanceInterval,
		"SYNC_WEATHER_MAX_AGE":      &c.Sync.WeatherMaxAge,
		"SYNC_CACHE_MAX_AGE":        &c.Sync.CacheMaxAge,
	} {
		if err := dur(name, dst); err != nil {
			return err
		}
	}
	return nil
}
