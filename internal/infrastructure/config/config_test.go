package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "medrx-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "medrx", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.False(t, cfg.Redis.Enabled)

		assert.Equal(t, 5*time.Second, cfg.Fulfillment.LockTimeout)
		assert.Equal(t, 1, cfg.Fulfillment.MaxConflictRetries)
		assert.Equal(t, 2, cfg.Fulfillment.MaxTransientRetries)
		assert.Equal(t, 50*time.Millisecond, cfg.Fulfillment.TransientBackoff)
		assert.Equal(t, 3, cfg.Fulfillment.MaxCallerRetries)

		assert.Equal(t, 24*time.Hour, cfg.Alert.DedupWindow)
		assert.Equal(t, []string{"admin", "inventory_staff"}, cfg.Alert.Audiences)
		assert.Equal(t, "pharmacy_staff", cfg.Alert.ShortageAudience)
	})

	t.Run("loads values from environment variables with MEDRX prefix", func(t *testing.T) {
		t.Setenv("MEDRX_APP_NAME", "test-app")
		t.Setenv("MEDRX_APP_PORT", "9000")
		t.Setenv("MEDRX_DATABASE_DRIVER", "sqlite")
		t.Setenv("MEDRX_DATABASE_SQLITE_PATH", ":memory:")
		t.Setenv("MEDRX_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("MEDRX_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("MEDRX_REDIS_ENABLED", "true")
		t.Setenv("MEDRX_FULFILLMENT_LOCK_TIMEOUT", "750ms")
		t.Setenv("MEDRX_FULFILLMENT_MAX_CONFLICT_RETRIES", "0")
		t.Setenv("MEDRX_ALERT_DEDUP_WINDOW", "12h")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, ":memory:", cfg.Database.SQLitePath)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 750*time.Millisecond, cfg.Fulfillment.LockTimeout)
		assert.Equal(t, 0, cfg.Fulfillment.MaxConflictRetries)
		assert.Equal(t, 12*time.Hour, cfg.Alert.DedupWindow)
	})

	t.Run("splits comma separated lists from the environment", func(t *testing.T) {
		t.Setenv("MEDRX_ALERT_AUDIENCES", "admin,pharmacist")
		t.Setenv("MEDRX_HTTP_CORS_ALLOW_ORIGINS", "https://ward.example.org")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"admin", "pharmacist"}, cfg.Alert.Audiences)
		assert.Equal(t, []string{"https://ward.example.org"}, cfg.HTTP.CORSAllowOrigins)
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		t.Setenv("MEDRX_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("MEDRX_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("MEDRX_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects negative retry counts", func(t *testing.T) {
		t.Setenv("MEDRX_FULFILLMENT_MAX_TRANSIENT_RETRIES", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retry counts")
	})

	t.Run("rejects tiny dedup window", func(t *testing.T) {
		t.Setenv("MEDRX_ALERT_DEDUP_WINDOW", "10s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "alert.dedup_window")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("MEDRX_APP_ENV", "production")
		t.Setenv("MEDRX_DATABASE_PASSWORD", "secure-password")
		t.Setenv("MEDRX_DATABASE_SSLMODE", "require")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("MEDRX_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("MEDRX_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("refuses sqlite in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("MEDRX_DATABASE_DRIVER", "sqlite")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "pass%40word%23123")
		assert.Contains(t, dsn, "sslmode=disable")
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	r := RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", r.Addr())
}

func TestLoadFile(t *testing.T) {
	t.Run("file values sit between defaults and env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "medrx.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
[app]
port = "9100"

[fulfillment]
lock_timeout = "2s"
exclude_expired = true

[alert]
shortage_audience = "ward_manager"
`), 0o600))
		t.Setenv("MEDRX_APP_PORT", "9200")

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "9200", cfg.App.Port, "env wins over file")
		assert.Equal(t, 2*time.Second, cfg.Fulfillment.LockTimeout)
		assert.True(t, cfg.Fulfillment.ExcludeExpired)
		assert.Equal(t, "ward_manager", cfg.Alert.ShortageAudience)
		assert.Equal(t, 1, cfg.Fulfillment.MaxConflictRetries)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config file")
	})
}

func TestConfig_ValidateReportsEveryProblem(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.App.Env = "production"
	cfg.Database.Driver = "sqlite"
	cfg.Telemetry.SamplingRatio = 2
	cfg.HTTP.CORSAllowOrigins = []string{"*"}

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"sqlite is not supported in production",
		"database.password is required",
		"sampling_ratio",
		"cors_allow_origins",
	} {
		assert.Contains(t, err.Error(), want)
	}
	assert.True(t, cfg.IsProduction())
}
