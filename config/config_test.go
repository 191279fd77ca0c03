package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "FRONTEND_URL", "SESSION_SECRET", "APP_ENV", "GRPC_HEALTH_PORT",
	"APP_FEE_PCT", "APP_FEE_MIN", "STORE_DRIVER", "MONGODB_URI", "MONGO_DB_NAME",
	"SUPABASE_URL", "SUPABASE_SERVICE_KEY", "PI_API_KEY", "PI_API_BASE_URL",
	"PI_API_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT", "RECONCILE_INTERVAL",
	"RECONCILE_WORKERS", "RECONCILE_BATCH_SIZE",
}

// clearEnv blanks every recognized variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dopi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithMemoryDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, ":8000", cfg.Addr())
	assert.Equal(t, []string{"http://localhost:3314"}, cfg.AllowedOrigins)
	assert.Equal(t, 20*time.Second, cfg.Pi.Timeout)
	assert.False(t, cfg.Production)

	fees, err := cfg.FeePolicy()
	require.NoError(t, err)
	assert.True(t, fees.Percent.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, fees.Minimum.Equal(decimal.RequireFromString("0.01")))
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
port: 9000
session_secret: file-secret
fee:
  percent: "0.10"
  minimum: "0.05"
store:
  driver: mongo
  mongo_uri: mongodb://file
pi:
  timeout: 5s
reconcile:
  interval: 1m
`)
	t.Setenv("PORT", "9100")
	t.Setenv("FRONTEND_URL", "https://a.example, https://b.example,")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "file-secret", cfg.SessionSecret)
	assert.Equal(t, "mongodb://file", cfg.Store.MongoURI)
	assert.Equal(t, "dopi", cfg.Store.MongoDatabase)
	assert.Equal(t, 5*time.Second, cfg.Pi.Timeout)
	assert.Equal(t, time.Minute, cfg.Reconcile.Interval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Production)

	fees, err := cfg.FeePolicy()
	require.NoError(t, err)
	assert.True(t, fees.Percent.Equal(decimal.RequireFromString("0.1")))
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing mongo uri", map[string]string{"SESSION_SECRET": "s"}, "store.mongo_uri"},
		{"missing session secret", map[string]string{"MONGODB_URI": "mongodb://x"}, "session_secret"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite", "SESSION_SECRET": "s"}, "store.driver"},
		{"supabase without key", map[string]string{"STORE_DRIVER": "supabase", "SUPABASE_URL": "https://x", "SESSION_SECRET": "s"}, "store.supabase_key"},
		{"negative fee", map[string]string{"STORE_DRIVER": "memory", "APP_FEE_PCT": "-0.1"}, "fee.percent"},
		{"bad minimum", map[string]string{"STORE_DRIVER": "memory", "APP_FEE_MIN": "cheap"}, "fee.minimum"},
		{"sub-cent minimum", map[string]string{"STORE_DRIVER": "memory", "APP_FEE_MIN": "0.015"}, "fee.minimum"},
		{"bad port", map[string]string{"STORE_DRIVER": "memory", "PORT": "eighty"}, "PORT"},
		{"bad timeout", map[string]string{"STORE_DRIVER": "memory", "PI_API_TIMEOUT": "soon"}, "PI_API_TIMEOUT"},
		{"bad log level", map[string]string{"STORE_DRIVER": "memory", "LOG_LEVEL": "loud"}, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("job_id", "j1").Info("Job created")
	assert.Contains(t, buf.String(), `"job_id":"j1"`)

	text, err := newLogger(LogConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)
	assert.IsType(t, &logrus.TextFormatter{}, text.Formatter)

	_, err = newLogger(LogConfig{Level: "nope"}, &buf)
	assert.Error(t, err)
}

func TestNewSupabaseClientRequiresCredentials(t *testing.T) {
	_, err := NewSupabaseClient(StoreConfig{SupabaseURL: "https://x.supabase.co"})
	assert.Error(t, err)
}
