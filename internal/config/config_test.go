package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/reports")
	t.Setenv("APP_ENV", "")
	t.Setenv("AUDIENCE_POLICY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ":8080", cfg.API.Port)
	assert.Equal(t, "/api/v0", cfg.API.BasePath)
	assert.Equal(t, "X-User-Id", cfg.Auth.DevAuthHeader)
	assert.Equal(t, "regulators", cfg.Firebase.RegulatorTopic)
	assert.Equal(t, "all_clients", cfg.Notification.AudiencePolicy)
	assert.Equal(t, 0.8, cfg.Notification.RadiusKm)
	assert.Equal(t, 5*time.Second, cfg.Notification.SendTimeout)
	assert.Equal(t, 3*time.Hour, cfg.Sharing.TokenTTL)
}

func TestLoadMissingDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestLoadProductionRequiresSecret(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/reports")
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/reports")
	t.Setenv("NOTIFY_MAX_WORKERS", "many")
	t.Setenv("SHARE_TOKEN_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTIFY_MAX_WORKERS")
	assert.Contains(t, err.Error(), "SHARE_TOKEN_TTL")
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/reports")
	t.Setenv("AUDIENCE_POLICY", "everyone")

	_, err := Load()
	require.Error(t, err)
}
