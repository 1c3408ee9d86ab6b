package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("QUEUE_DRIVER", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1/assets", cfg.StorageBaseURL)
	assert.Equal(t, "file", cfg.StorageDriver)
	assert.Equal(t, "amqp", cfg.QueueDriver)
	assert.Equal(t, 4, cfg.DownloadWorkers)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 60, cfg.PollMaxAttempts)
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:1919/v1/assets", cfg.StorageBaseURL)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "x")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoadConfigValidatesDrivers(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_DRIVER", "gcs")
	t.Setenv("GCS_BUCKET", "")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "GCS_BUCKET")

	t.Setenv("STORAGE_DRIVER", "file")
	t.Setenv("QUEUE_DRIVER", "kafka")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "QUEUE_DRIVER")
}

func TestLoadConfigParsesOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("QUEUE_DRIVER", "memory")
	t.Setenv("DOWNLOAD_WORKERS", "0")
	t.Setenv("POLL_INTERVAL_SECONDS", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.QueueDriver)
	assert.Equal(t, 1, cfg.DownloadWorkers)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}
