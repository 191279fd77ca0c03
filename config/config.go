// Package config resolves the runtime configuration of the DoPi server and
// builds the clients that depend on it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/FCJuventus/DoPi-demo/models"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverSupabase = "supabase"
	DriverMemory   = "memory"
)

// Config is the resolved runtime configuration.
type Config struct {
	Port           int             `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	SessionSecret  string          `yaml:"session_secret"`
	Production     bool            `yaml:"production"`
	GRPCHealthPort int             `yaml:"grpc_health_port"`
	Fee            FeeConfig       `yaml:"fee"`
	Store          StoreConfig     `yaml:"store"`
	Pi             PiConfig        `yaml:"pi"`
	Log            LogConfig       `yaml:"log"`
	Reconcile      ReconcileConfig `yaml:"reconcile"`
}

// FeeConfig holds the platform surcharge as decimal strings.
type FeeConfig struct {
	Percent string `yaml:"percent"`
	Minimum string `yaml:"minimum"`
}

// StoreConfig selects and addresses the persistence backend.
type StoreConfig struct {
	Driver        string `yaml:"driver"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	SupabaseURL   string `yaml:"supabase_url"`
	SupabaseKey   string `yaml:"supabase_key"`
}

// PiConfig addresses the Pi Platform API.
type PiConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig controls the logger built by NewLogger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ReconcileConfig controls the background reconciliation sweep.
// A zero Interval disables the periodic sweep in serve.
type ReconcileConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Workers   int           `yaml:"workers"`
	BatchSize int           `yaml:"batch_size"`
}

// Default returns the configuration used when neither file nor environment
// sets a value.
func Default() Config {
	return Config{
		Port:           8000,
		AllowedOrigins: []string{"http://localhost:3314"},
		Fee:            FeeConfig{Percent: "0.05", Minimum: "0.01"},
		Store:          StoreConfig{Driver: DriverMongo, MongoDatabase: "dopi"},
		Pi:             PiConfig{BaseURL: "https://api.minepi.com", Timeout: 20 * time.Second},
		Log:            LogConfig{Level: "info", Format: "json"},
		Reconcile:      ReconcileConfig{Workers: 4, BatchSize: 100},
	}
}

// Load resolves configuration in priority order: defaults, then the YAML file
// at path (skipped when path is empty), then environment variables. The
// result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	c.Port = envInt("PORT", c.Port, &errs)
	c.AllowedOrigins = envCSV("FRONTEND_URL", c.AllowedOrigins)
	c.SessionSecret = envOrDefault("SESSION_SECRET", c.SessionSecret)
	if env := os.Getenv("APP_ENV"); env != "" {
		c.Production = strings.EqualFold(env, "production")
	}
	c.GRPCHealthPort = envInt("GRPC_HEALTH_PORT", c.GRPCHealthPort, &errs)

	c.Fee.Percent = envOrDefault("APP_FEE_PCT", c.Fee.Percent)
	c.Fee.Minimum = envOrDefault("APP_FEE_MIN", c.Fee.Minimum)

	c.Store.Driver = strings.ToLower(envOrDefault("STORE_DRIVER", c.Store.Driver))
	c.Store.MongoURI = envOrDefault("MONGODB_URI", c.Store.MongoURI)
	c.Store.MongoDatabase = envOrDefault("MONGO_DB_NAME", c.Store.MongoDatabase)
	c.Store.SupabaseURL = envOrDefault("SUPABASE_URL", c.Store.SupabaseURL)
	c.Store.SupabaseKey = envOrDefault("SUPABASE_SERVICE_KEY", c.Store.SupabaseKey)

	c.Pi.APIKey = envOrDefault("PI_API_KEY", c.Pi.APIKey)
	c.Pi.BaseURL = envOrDefault("PI_API_BASE_URL", c.Pi.BaseURL)
	c.Pi.Timeout = envDuration("PI_API_TIMEOUT", c.Pi.Timeout, &errs)

	c.Log.Level = envOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault("LOG_FORMAT", c.Log.Format)

	c.Reconcile.Interval = envDuration("RECONCILE_INTERVAL", c.Reconcile.Interval, &errs)
	c.Reconcile.Workers = envInt("RECONCILE_WORKERS", c.Reconcile.Workers, &errs)
	c.Reconcile.BatchSize = envInt("RECONCILE_BATCH_SIZE", c.Reconcile.BatchSize, &errs)

	return errors.Join(errs...)
}

// Validate reports every invalid option, naming its key.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Port <= 0 || c.Port > 65535 {
		add("port: %d is out of range", c.Port)
	}
	if c.GRPCHealthPort < 0 || c.GRPCHealthPort > 65535 {
		add("grpc_health_port: %d is out of range", c.GRPCHealthPort)
	}
	if len(c.AllowedOrigins) == 0 {
		add("allowed_origins: at least one origin is required")
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			add("allowed_origins: \"*\" cannot be combined with session cookies")
		}
	}

	switch c.Store.Driver {
	case DriverMongo:
		if c.Store.MongoURI == "" {
			add("store.mongo_uri: required for the mongo driver")
		}
		if c.Store.MongoDatabase == "" {
			add("store.mongo_database: required for the mongo driver")
		}
	case DriverSupabase:
		if c.Store.SupabaseURL == "" {
			add("store.supabase_url: required for the supabase driver")
		}
		if c.Store.SupabaseKey == "" {
			add("store.supabase_key: required for the supabase driver")
		}
	case DriverMemory:
	default:
		add("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.SessionSecret == "" && c.Store.Driver != DriverMemory {
		add("session_secret: required")
	}

	if _, err := c.FeePolicy(); err != nil {
		errs = append(errs, err)
	}

	if c.Pi.Timeout <= 0 {
		add("pi.timeout: must be positive")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		add("log.format: must be json or text, got %q", c.Log.Format)
	}

	if c.Reconcile.Interval < 0 {
		add("reconcile.interval: must not be negative")
	}
	if c.Reconcile.Workers <= 0 {
		add("reconcile.workers: must be positive")
	}
	if c.Reconcile.BatchSize <= 0 {
		add("reconcile.batch_size: must be positive")
	}

	return errors.Join(errs...)
}

// FeePolicy parses the fee options.
func (c Config) FeePolicy() (models.FeePolicy, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(c.Fee.Percent))
	if err != nil {
		return models.FeePolicy{}, fmt.Errorf("fee.percent: %q is not a number", c.Fee.Percent)
	}
	minimum, err := decimal.NewFromString(strings.TrimSpace(c.Fee.Minimum))
	if err != nil {
		return models.FeePolicy{}, fmt.Errorf("fee.minimum: %q is not a number", c.Fee.Minimum)
	}
	if pct.IsNegative() {
		return models.FeePolicy{}, fmt.Errorf("fee.percent: must not be negative")
	}
	if minimum.IsNegative() {
		return models.FeePolicy{}, fmt.Errorf("fee.minimum: must not be negative")
	}
	if !minimum.Equal(minimum.Round(2)) {
		return models.FeePolicy{}, fmt.Errorf("fee.minimum: %s has more precision than a cent", minimum)
	}
	return models.FeePolicy{Percent: pct, Minimum: minimum}, nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func envOrDefault(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int, errs *[]error) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", name, raw))
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration, errs *[]error) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", name, raw))
		return fallback
	}
	return v
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
