package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.MinSendInterval)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.False(t, cfg.ImageOffloadEnabled())
}

func TestLoadFromEnv_ParsesOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("STORE_DRIVER", "Badger")
	t.Setenv("BADGER_PATH", t.TempDir())
	t.Setenv("SWEEP_INTERVAL", "2s")

	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, StoreBadger, cfg.StoreDriver)
	assert.Equal(t, 2*time.Second, cfg.SweepInterval)
}

func TestLoadFromEnv_RejectsPrivilegedPort(t *testing.T) {
	t.Setenv("PORT", "80")

	_, err := loadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromEnv_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := loadFromEnv()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoadFromEnv_ProductionPostgresRequiresDSN(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := loadFromEnv()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadFromEnv_UnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "cassandra")

	_, err := loadFromEnv()
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestLoadFromEnv_PartialS3Config(t *testing.T) {
	t.Setenv("S3_BUCKET_NAME", "images")
	t.Setenv("S3_ENDPOINT", "")
	t.Setenv("S3_ACCESS_KEY_ID", "")
	t.Setenv("S3_SECRET_ACCESS_KEY", "")

	_, err := loadFromEnv()
	assert.ErrorContains(t, err, "S3")
}

func TestLoadFromEnv_FullS3Config(t *testing.T) {
	t.Setenv("S3_BUCKET_NAME", "images")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("S3_ACCESS_KEY_ID", "key")
	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")

	cfg, err := loadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.ImageOffloadEnabled())
}
