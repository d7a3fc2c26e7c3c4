package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("GEOFENCE_RADIUS_METERS", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 365*24*time.Hour, cfg.Storage.SignedURLTTL)
	assert.Equal(t, 150.0, cfg.Geofence.RadiusMeters)
	assert.Equal(t, uint64(3), cfg.Retry.MaxRetries)
	assert.Nil(t, cfg.Server.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("GEOFENCE_RADIUS_METERS", "75.5")
	t.Setenv("STORE_RETRY_BASE_DELAY", "200ms")
	t.Setenv("NEW_RELIC_ENABLED", "true")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 75.5, cfg.Geofence.RadiusMeters)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.BaseDelay)
	assert.True(t, cfg.NewRelic.Enabled)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FLEETOPS_TEST_VALUE=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FLEETOPS_TEST_VALUE") })

	require.NoError(t, config.LoadEnvFile(path))

	assert.Equal(t, "from-file", os.Getenv("FLEETOPS_TEST_VALUE"))
}

func TestLoadEnvFile_MissingIsFine(t *testing.T) {
	assert.NoError(t, config.LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, config.LoadEnvFile(""))
}
