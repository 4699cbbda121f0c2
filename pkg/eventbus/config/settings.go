package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v10"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
	"github.com/randalmurphal/eventbus/pkg/eventbus/failures"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "EVENTBUS_"

// Section is the top-level key holding bus settings in a config file.
const Section = "eventbus"

// ErrInvalidSettings indicates a setting outside its allowed values.
var ErrInvalidSettings = errors.New("invalid eventbus settings")

// Settings configures a Bus. The zero value is not valid; start from
// DefaultSettings.
type Settings struct {
	// CacheSize bounds the number of cached listener chains.
	CacheSize int `env:"CACHE_SIZE"`

	// AsyncFailurePolicy is "stall" or "skip".
	AsyncFailurePolicy string `env:"ASYNC_FAILURE_POLICY"`

	Metrics bool `env:"METRICS"`
	Tracing bool `env:"TRACING"`

	// FailureStore selects the failure journal:
	//   ""             no journal
	//   "memory"       in-memory, default capacity
	//   "memory:N"     in-memory, N records
	//   "sqlite:PATH"  SQLite file at PATH (":memory:" allowed)
	FailureStore string `env:"FAILURE_STORE"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL"`
}

// DefaultSettings returns the settings a bus uses without configuration.
func DefaultSettings() Settings {
	return Settings{
		CacheSize:          eventbus.DefaultCacheSize,
		AsyncFailurePolicy: eventbus.AsyncFailureStall.String(),
		LogLevel:           "info",
	}
}

// SettingsFrom reads settings from the "eventbus" section of cfg, falling
// back to DefaultSettings for missing keys.
//
//	eventbus:
//	  cache_size: 1024
//	  async_failure_policy: skip
//	  metrics: true
//	  tracing: false
//	  failure_store: sqlite:/var/lib/app/failures.db
//	  log_level: debug
func SettingsFrom(cfg Config) Settings {
	sec := cfg.Section(Section)
	d := DefaultSettings()
	return Settings{
		CacheSize:          sec.Int("cache_size", d.CacheSize),
		AsyncFailurePolicy: sec.String("async_failure_policy", d.AsyncFailurePolicy),
		Metrics:            sec.Bool("metrics", d.Metrics),
		Tracing:            sec.Bool("tracing", d.Tracing),
		FailureStore:       sec.String("failure_store", d.FailureStore),
		LogLevel:           sec.String("log_level", d.LogLevel),
	}
}

// ApplyEnv overrides s with any EVENTBUS_* environment variables that are
// set. Unset variables leave the current values alone.
func (s *Settings) ApplyEnv() error {
	if err := env.ParseWithOptions(s, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// LoadSettings reads settings from the file at path, then applies
// environment overrides. An empty path uses DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path != "" {
		cfg, err := FromFile(path)
		if err != nil {
			return Settings{}, err
		}
		s = SettingsFrom(cfg)
	}
	if err := s.ApplyEnv(); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks every field.
func (s Settings) Validate() error {
	if s.CacheSize <= 0 {
		return fmt.Errorf("%w: cache_size must be positive, got %d", ErrInvalidSettings, s.CacheSize)
	}
	if _, err := s.Policy(); err != nil {
		return err
	}
	if _, err := parseLevel(s.LogLevel); err != nil {
		return err
	}
	if _, _, err := parseStore(s.FailureStore); err != nil {
		return err
	}
	return nil
}

// Policy returns the parsed async failure policy.
func (s Settings) Policy() (eventbus.AsyncFailurePolicy, error) {
	switch strings.ToLower(s.AsyncFailurePolicy) {
	case "", "stall":
		return eventbus.AsyncFailureStall, nil
	case "skip":
		return eventbus.AsyncFailureSkip, nil
	default:
		return 0, fmt.Errorf("%w: unknown async_failure_policy %q", ErrInvalidSettings, s.AsyncFailurePolicy)
	}
}

// Level returns the parsed log level, or slog.LevelInfo when invalid.
func (s Settings) Level() slog.Level {
	l, err := parseLevel(s.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: unknown log_level %q", ErrInvalidSettings, s)
	}
	return l, nil
}

func parseStore(dsn string) (kind, arg string, err error) {
	if dsn == "" {
		return "", "", nil
	}
	kind, arg, _ = strings.Cut(dsn, ":")
	switch kind {
	case "memory":
		if arg != "" {
			if n, err := strconv.Atoi(arg); err != nil || n <= 0 {
				return "", "", fmt.Errorf("%w: bad memory capacity in failure_store %q", ErrInvalidSettings, dsn)
			}
		}
	case "sqlite":
		if arg == "" {
			return "", "", fmt.Errorf("%w: failure_store %q needs a path", ErrInvalidSettings, dsn)
		}
	default:
		return "", "", fmt.Errorf("%w: unknown failure_store %q", ErrInvalidSettings, dsn)
	}
	return kind, arg, nil
}

// OpenFailureStore opens the configured failure journal. It returns nil
// when no journal is configured. The caller owns the store and closes it.
func (s Settings) OpenFailureStore() (failures.Store, error) {
	kind, arg, err := parseStore(s.FailureStore)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "memory":
		n, _ := strconv.Atoi(arg)
		return failures.NewMemoryStore(n), nil
	case "sqlite":
		store, err := failures.NewSQLiteStore(arg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}

// Options converts s into bus options. The failure store is not included;
// open it with OpenFailureStore and pass eventbus.WithFailureStore.
func (s Settings) Options() ([]eventbus.Option, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	policy, _ := s.Policy()
	return []eventbus.Option{
		eventbus.WithCacheSize(s.CacheSize),
		eventbus.WithAsyncFailurePolicy(policy),
		eventbus.WithMetrics(s.Metrics),
		eventbus.WithTracing(s.Tracing),
	}, nil
}
