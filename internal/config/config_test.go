package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the config reads so the host environment
// cannot leak into a test. t.Setenv restores the old values afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "LOG_LEVEL", "HTTP_HOST", "PORT", "TRUST_PROXY", "CORS_ORIGINS",
		"STORAGE_DRIVER", "DATABASE_URL", "LOCAL_DATABASE_URL", "STORAGE_PATH",
		"DB_POOL_MAX", "DB_IDLE_TIMEOUT", "DB_CONNECTION_TIMEOUT", "DB_TLS",
		"DB_SKIP_MIGRATE", "RATE_LIMIT_WINDOW_MS", "RATE_LIMIT_MAX",
		"REDIS_ADDR", "REDIS_PASSWORD",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOCAL_DATABASE_URL", "postgres://localhost/students")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, ":3000", cfg.HTTPServer.Addr())
	assert.Equal(t, 20, cfg.PoolMax)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout())
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, time.Minute, cfg.Window())
	assert.Equal(t, 100, cfg.Max)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "postgres://localhost/students", cfg.DSN())
	assert.False(t, cfg.UseTLS())
	assert.False(t, cfg.SkipMigrate)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
env: "prod"
http_server:
  host: "127.0.0.1"
  port: 8082
storage:
  driver: "postgres"
  database_url: "postgres://prod/students"
  local_database_url: "postgres://local/students"
  pool_max: 5
rate_limit:
  window_ms: 1000
  max: 2
`)
	t.Setenv("RATE_LIMIT_MAX", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "127.0.0.1:8082", cfg.HTTPServer.Addr())
	assert.Equal(t, "postgres://prod/students", cfg.DSN())
	assert.True(t, cfg.UseTLS(), "auto TLS is on in production")
	assert.Equal(t, 5, cfg.PoolMax)
	assert.Equal(t, time.Second, cfg.Window())
	assert.Equal(t, 7, cfg.Max)
}

func TestUseTLSModes(t *testing.T) {
	tests := []struct {
		env  string
		mode string
		want bool
	}{
		{"dev", TLSAuto, false},
		{"production", TLSAuto, true},
		{"dev", TLSRequire, true},
		{"prod", TLSDisable, false},
	}

	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.mode, func(t *testing.T) {
			cfg := Config{Env: tt.env, Storage: Storage{TLS: tt.mode}}
			assert.Equal(t, tt.want, cfg.UseTLS())
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing local dsn", map[string]string{}},
		{"missing prod dsn", map[string]string{"ENV": "prod", "LOCAL_DATABASE_URL": "x"}},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "oracle"}},
		{"bad tls", map[string]string{"LOCAL_DATABASE_URL": "x", "DB_TLS": "maybe"}},
		{"zero max", map[string]string{"LOCAL_DATABASE_URL": "x", "RATE_LIMIT_MAX": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadSQLiteNeedsNoDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_DRIVER", DriverSQLite)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "storage/students.db", cfg.Path)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "does not exist")
}
