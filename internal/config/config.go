// Package config loads the studio server configuration from YAML with
// STUDIO_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gabrielmiguelok/pagestudio/pkg/core"
	"github.com/gabrielmiguelok/pagestudio/pkg/logging"
	"github.com/gabrielmiguelok/pagestudio/pkg/protocol"
	"github.com/gabrielmiguelok/pagestudio/pkg/router"
	"github.com/gabrielmiguelok/pagestudio/pkg/transport"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Storage and catalog drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverHTTP     = "http"
)

var drivers = []string{DriverMemory, DriverSQLite, DriverPostgres, DriverHTTP}

// Config is the whole server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Catalog CatalogConfig `yaml:"catalog"`
	Log     LogConfig     `yaml:"log"`
	Limits  LimitsConfig  `yaml:"limits"`
}

// ServerConfig configures the HTTP and WebSocket listener.
type ServerConfig struct {
	Addr           string         `yaml:"addr"`
	DevMode        bool           `yaml:"dev_mode"`
	Codec          string         `yaml:"codec"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	Timeouts       TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig holds durations such as "30s" or "2m".
type TimeoutsConfig struct {
	Mount    time.Duration `yaml:"mount"`
	Event    time.Duration `yaml:"event"`
	Save     time.Duration `yaml:"save"`
	Read     time.Duration `yaml:"read"`
	Write    time.Duration `yaml:"write"`
	Idle     time.Duration `yaml:"idle"`
	Shutdown time.Duration `yaml:"shutdown"`
	Cleanup  time.Duration `yaml:"cleanup"`
}

// StorageConfig selects where page documents live.
type StorageConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	BaseURL string `yaml:"base_url"`
	// Seed is a YAML seed file applied at startup when set.
	Seed string `yaml:"seed"`
}

// CatalogConfig selects the catalog source. An empty driver reuses the
// storage backend.
type CatalogConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	BaseURL string `yaml:"base_url"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text or json
	Source     bool   `yaml:"source"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LimitsConfig bounds client traffic.
type LimitsConfig struct {
	EventsPerSecond   float64 `yaml:"events_per_second"`
	EventBurst        int     `yaml:"event_burst"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	RequestBurst      int     `yaml:"request_burst"`
	MaxSessions       int     `yaml:"max_sessions"`
}

// Default returns the production defaults.
func Default() *Config {
	t := core.DefaultTimeoutConfig()
	return &Config{
		Server: ServerConfig{
			Addr:  ":8080",
			Codec: protocol.DefaultCodec,
			Timeouts: TimeoutsConfig{
				Mount:    t.ComponentMount,
				Event:    t.ComponentEvent,
				Save:     t.BackgroundTask,
				Read:     t.WebSocketRead,
				Write:    t.WebSocketWrite,
				Idle:     t.SessionIdle,
				Shutdown: 15 * time.Second,
				Cleanup:  time.Minute,
			},
		},
		Storage: StorageConfig{Driver: DriverSQLite, DSN: "file:studio.db"},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Limits: LimitsConfig{
			EventsPerSecond:   20,
			EventBurst:        40,
			RequestsPerSecond: 50,
			RequestBurst:      100,
			MaxSessions:       1000,
		},
	}
}

// Development returns defaults for local work: memory storage, relaxed
// timeouts, text debug logs and no origin checks.
func Development() *Config {
	c := Default()
	t := core.RelaxedTimeoutConfig()
	c.Server.Addr = "localhost:8080"
	c.Server.DevMode = true
	c.Server.Timeouts.Mount = t.ComponentMount
	c.Server.Timeouts.Event = t.ComponentEvent
	c.Server.Timeouts.Save = t.BackgroundTask
	c.Server.Timeouts.Read = t.WebSocketRead
	c.Server.Timeouts.Write = t.WebSocketWrite
	c.Server.Timeouts.Idle = t.SessionIdle
	c.Storage = StorageConfig{Driver: DriverMemory}
	c.Log.Level = "debug"
	c.Log.Format = "text"
	return c
}

// Load starts from base, overlays the YAML file at path (when path is not
// empty), applies environment overrides and validates the result.
func Load(path string, base *Config) (*Config, error) {
	cfg := base
	if cfg == nil {
		cfg = Default()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environment overrides.
const (
	EnvAddr           = "STUDIO_ADDR"
	EnvDevMode        = "STUDIO_DEV_MODE"
	EnvCodec          = "STUDIO_CODEC"
	EnvAllowedOrigins = "STUDIO_ALLOWED_ORIGINS"
	EnvStorageDriver  = "STUDIO_STORAGE_DRIVER"
	EnvStorageDSN     = "STUDIO_STORAGE_DSN"
	EnvStorageURL     = "STUDIO_STORAGE_URL"
	EnvSeed           = "STUDIO_SEED"
	EnvCatalogDriver  = "STUDIO_CATALOG_DRIVER"
	EnvCatalogDSN     = "STUDIO_CATALOG_DSN"
	EnvCatalogURL     = "STUDIO_CATALOG_URL"
	EnvLogLevel       = "STUDIO_LOG_LEVEL"
	EnvLogFormat      = "STUDIO_LOG_FORMAT"
	EnvLogFile        = "STUDIO_LOG_FILE"
	EnvSaveTimeout    = "STUDIO_SAVE_TIMEOUT"
	EnvEventsPerSec   = "STUDIO_EVENTS_PER_SECOND"
)

// ApplyEnv applies STUDIO_* overrides found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvAddr, &c.Server.Addr)
	str(EnvCodec, &c.Server.Codec)
	str(EnvStorageDriver, &c.Storage.Driver)
	str(EnvStorageDSN, &c.Storage.DSN)
	str(EnvStorageURL, &c.Storage.BaseURL)
	str(EnvSeed, &c.Storage.Seed)
	str(EnvCatalogDriver, &c.Catalog.Driver)
	str(EnvCatalogDSN, &c.Catalog.DSN)
	str(EnvCatalogURL, &c.Catalog.BaseURL)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogFormat, &c.Log.Format)
	str(EnvLogFile, &c.Log.File)

	if v, ok := lookup(EnvAllowedOrigins); ok {
		c.Server.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, o)
			}
		}
	}
	if v, ok := lookup(EnvDevMode); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvDevMode, err)
		}
		c.Server.DevMode = b
	}
	if v, ok := lookup(EnvSaveTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvSaveTimeout, err)
		}
		c.Server.Timeouts.Save = d
	}
	if v, ok := lookup(EnvEventsPerSec); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvEventsPerSec, err)
		}
		c.Limits.EventsPerSecond = f
	}
	return nil
}

// Validate reports the first inconsistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}
	if _, err := protocol.CodecByName(c.Server.Codec); err != nil {
		return fmt.Errorf("%w: server.codec: %v", ErrInvalid, err)
	}
	if err := c.TimeoutConfig().Validate(); err != nil {
		return fmt.Errorf("%w: server.%v", ErrInvalid, err)
	}
	if err := validateBackend("storage", c.Storage.Driver, c.Storage.DSN, c.Storage.BaseURL); err != nil {
		return err
	}
	if c.Catalog.Driver != "" {
		if err := validateBackend("catalog", c.Catalog.Driver, c.Catalog.DSN, c.Catalog.BaseURL); err != nil {
			return err
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalid, c.Log.Format)
	}
	if c.Limits.EventsPerSecond < 0 || c.Limits.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalid)
	}
	return nil
}

func validateBackend(name, driver, dsn, baseURL string) error {
	if !slices.Contains(drivers, driver) {
		return fmt.Errorf("%w: %s.driver must be one of %s, got %q",
			ErrInvalid, name, strings.Join(drivers, ", "), driver)
	}
	switch driver {
	case DriverSQLite, DriverPostgres:
		if dsn == "" {
			return fmt.Errorf("%w: %s.dsn is required for %s", ErrInvalid, name, driver)
		}
	case DriverHTTP:
		if baseURL == "" {
			return fmt.Errorf("%w: %s.base_url is required for http", ErrInvalid, name)
		}
	}
	return nil
}

// CatalogBackend returns the effective catalog settings.
func (c *Config) CatalogBackend() CatalogConfig {
	if c.Catalog.Driver == "" {
		return CatalogConfig{Driver: c.Storage.Driver, DSN: c.Storage.DSN, BaseURL: c.Storage.BaseURL}
	}
	return c.Catalog
}

// TimeoutConfig converts the server timeouts.
func (c *Config) TimeoutConfig() core.TimeoutConfig {
	t := c.Server.Timeouts
	return core.TimeoutConfig{
		ComponentMount: t.Mount,
		ComponentEvent: t.Event,
		BackgroundTask: t.Save,
		WebSocketRead:  t.Read,
		WebSocketWrite: t.Write,
		SessionIdle:    t.Idle,
	}
}

// RouterConfig builds the live router configuration.
func (c *Config) RouterConfig() router.Config {
	rc := router.DefaultConfig()
	rc.Timeouts = c.TimeoutConfig()
	rc.Codec = c.Server.Codec
	rc.EventsPerSecond = c.Limits.EventsPerSecond
	rc.EventBurst = c.Limits.EventBurst

	rc.Transport.ReadTimeout = c.Server.Timeouts.Read
	rc.Transport.WriteTimeout = c.Server.Timeouts.Write
	rc.WebSocket = &transport.WebSocketConfig{
		AllowedOrigins:  c.Server.AllowedOrigins,
		InsecureDevMode: c.Server.DevMode,
	}
	if c.Limits.MaxSessions > 0 {
		rc.Sessions.MaxSessions = c.Limits.MaxSessions
	}
	if c.Server.Timeouts.Idle > 0 {
		rc.Sessions.SessionTTL = c.Server.Timeouts.Idle
	}
	return rc
}

// LoggerOptions builds pkg/logging options.
func (c *Config) LoggerOptions() []logging.LoggerOption {
	level, _ := logging.ParseLevel(c.Log.Level)
	opts := []logging.LoggerOption{logging.WithLevel(level)}
	if c.Log.Format == "json" {
		opts = append(opts, logging.WithJSON())
	}
	if c.Log.Source {
		opts = append(opts, logging.WithSource())
	}
	if c.Log.File != "" {
		opts = append(opts, logging.WithFile(logging.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   true,
		}))
	}
	return opts
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
