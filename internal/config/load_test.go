package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the minimum environment for a loadable config.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PAPERDESK_DATABASE_URL", "postgres://localhost:5432/paperdesk")
	t.Setenv("PAPERDESK_RECOGNITION_DATALAB_URL", "https://api.datalab.example.com")
	t.Setenv("PAPERDESK_RECOGNITION_DATALAB_API_KEY", "test-key")
	t.Setenv("PAPERDESK_STORAGE_BUCKET", "paperdesk-attachments")
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults over required env", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "info", cfg.Server.LogLevel)
		assert.Equal(t, 5*time.Second, cfg.Recognition.PollInterval)
		assert.Equal(t, 15*time.Second, cfg.Recognition.PollTimeout)
		assert.Equal(t, 60*time.Second, cfg.Recognition.EstimatedDuration)

		assert.Equal(t, "postgres://localhost:5432/paperdesk", cfg.Database.URL)
		assert.Equal(t, "https://api.datalab.example.com", cfg.Recognition.DatalabURL)
		assert.Equal(t, "test-key", cfg.Recognition.DatalabAPIKey)
		assert.Equal(t, "paperdesk-attachments", cfg.Storage.Bucket)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PAPERDESK_SERVER_PORT", "9090")
		t.Setenv("PAPERDESK_SERVER_LOG_LEVEL", "debug")
		t.Setenv("PAPERDESK_RECOGNITION_POLL_INTERVAL", "2s")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Server.LogLevel)
		assert.Equal(t, 2*time.Second, cfg.Recognition.PollInterval)
	})

	t.Run("fails without the database URL", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PAPERDESK_DATABASE_URL", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fails without the API key", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PAPERDESK_RECOGNITION_DATALAB_API_KEY", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("rejects an invalid log level", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PAPERDESK_SERVER_LOG_LEVEL", "verbose")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("rejects a malformed engine URL", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PAPERDESK_RECOGNITION_DATALAB_URL", "not-a-url")

		_, err := Load()
		assert.Error(t, err)
	})
}
