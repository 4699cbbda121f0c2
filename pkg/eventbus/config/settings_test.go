package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
	"github.com/randalmurphal/eventbus/pkg/eventbus/config"
	"github.com/randalmurphal/eventbus/pkg/eventbus/failures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := config.DefaultSettings()

	require.NoError(t, s.Validate())
	assert.Equal(t, eventbus.DefaultCacheSize, s.CacheSize)
	policy, err := s.Policy()
	require.NoError(t, err)
	assert.Equal(t, eventbus.AsyncFailureStall, policy)
	assert.Equal(t, slog.LevelInfo, s.Level())

	store, err := s.OpenFailureStore()
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestSettingsFrom(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
eventbus:
  cache_size: 64
  async_failure_policy: skip
  metrics: true
  failure_store: memory:10
  log_level: debug
`))
	require.NoError(t, err)

	s := config.SettingsFrom(cfg)
	assert.Equal(t, config.Settings{
		CacheSize:          64,
		AsyncFailurePolicy: "skip",
		Metrics:            true,
		FailureStore:       "memory:10",
		LogLevel:           "debug",
	}, s)
	assert.Equal(t, slog.LevelDebug, s.Level())

	policy, err := s.Policy()
	require.NoError(t, err)
	assert.Equal(t, eventbus.AsyncFailureSkip, policy)

	opts, err := s.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 4)
}

func TestSettingsFrom_MissingSection(t *testing.T) {
	s := config.SettingsFrom(config.New(map[string]any{"other": 1}))
	assert.Equal(t, config.DefaultSettings(), s)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("EVENTBUS_CACHE_SIZE", "9")
	t.Setenv("EVENTBUS_TRACING", "true")
	t.Setenv("EVENTBUS_LOG_LEVEL", "warn")

	s := config.DefaultSettings()
	s.AsyncFailurePolicy = "skip"
	require.NoError(t, s.ApplyEnv())

	assert.Equal(t, 9, s.CacheSize)
	assert.True(t, s.Tracing)
	assert.Equal(t, "warn", s.LogLevel)
	assert.Equal(t, "skip", s.AsyncFailurePolicy, "unset variables keep current values")
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("EVENTBUS_CACHE_SIZE", "lots")

	s := config.DefaultSettings()
	assert.Error(t, s.ApplyEnv())
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("eventbus:\n  cache_size: 64\n  log_level: error\n"), 0o600))
	t.Setenv("EVENTBUS_LOG_LEVEL", "debug")

	s, err := config.LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 64, s.CacheSize, "file value survives env parsing")
	assert.Equal(t, "debug", s.LogLevel, "environment wins over the file")

	s, err = config.LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, eventbus.DefaultCacheSize, s.CacheSize)

	_, err = config.LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadSettings_Invalid(t *testing.T) {
	t.Setenv("EVENTBUS_ASYNC_FAILURE_POLICY", "retry")

	_, err := config.LoadSettings("")
	assert.ErrorIs(t, err, config.ErrInvalidSettings)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Settings)
		ok     bool
	}{
		{"defaults", func(*config.Settings) {}, true},
		{"zero cache", func(s *config.Settings) { s.CacheSize = 0 }, false},
		{"unknown policy", func(s *config.Settings) { s.AsyncFailurePolicy = "retry" }, false},
		{"policy case insensitive", func(s *config.Settings) { s.AsyncFailurePolicy = "SKIP" }, true},
		{"unknown level", func(s *config.Settings) { s.LogLevel = "loud" }, false},
		{"memory store", func(s *config.Settings) { s.FailureStore = "memory" }, true},
		{"bad memory capacity", func(s *config.Settings) { s.FailureStore = "memory:-1" }, false},
		{"sqlite without path", func(s *config.Settings) { s.FailureStore = "sqlite:" }, false},
		{"unknown store", func(s *config.Settings) { s.FailureStore = "redis:localhost" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.DefaultSettings()
			tt.modify(&s)
			err := s.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, config.ErrInvalidSettings)
				_, optErr := s.Options()
				assert.Error(t, optErr)
			}
		})
	}
}

func TestOpenFailureStore(t *testing.T) {
	s := config.DefaultSettings()

	s.FailureStore = "memory:5"
	store, err := s.OpenFailureStore()
	require.NoError(t, err)
	assert.IsType(t, &failures.MemoryStore{}, store)
	require.NoError(t, store.Close())

	s.FailureStore = "sqlite:" + filepath.Join(t.TempDir(), "failures.db")
	store, err = s.OpenFailureStore()
	require.NoError(t, err)
	assert.IsType(t, &failures.SQLiteStore{}, store)
	require.NoError(t, store.Close())

	s.FailureStore = "sqlite:/nonexistent/dir/failures.db"
	store, err = s.OpenFailureStore()
	assert.Error(t, err)
	assert.Nil(t, store)
}
