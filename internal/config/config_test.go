package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 3*time.Hour, cfg.IncognitoDefault())
	assert.Equal(t, 720*time.Hour, cfg.IncognitoMax())
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.False(t, cfg.DebugRoutes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("INCOGNITO_DEFAULT_HOURS", "0.5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("DEBUG_ROUTES", "true")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 30*time.Minute, cfg.IncognitoDefault())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.DebugRoutes)
	assert.Equal(t, 2, cfg.RedisDB)
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {"JWT_SECRET": ""},
		"bad driver":     {"STORE_DRIVER": "sqlite"},
		"bad interval":   {"SWEEP_INTERVAL": "soon"},
		"bad limit":      {"HISTORY_LIMIT": "many"},
		"max below def":  {"INCOGNITO_MAX_HOURS": "1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s3cret")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}

	t.Run("secret error is typed", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		assert.ErrorIs(t, err, ErrMissingJWTSecret)
	})
}
