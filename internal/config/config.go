// Package config handles loading and parsing application configuration.
// Values come from three sources, later ones overriding earlier ones:
//  1. A .env file in the working directory (optional)
//  2. A YAML file named by CONFIG_PATH or --config (optional)
//  3. Environment variables (env:"..." tags below)
//
// Without a YAML file the whole configuration is read from the environment,
// which is how containers are usually configured.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Storage drivers understood by storage/backend.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// TLS modes for the database connection.
const (
	TLSAuto    = "auto" // on in production, off elsewhere
	TLSRequire = "require"
	TLSDisable = "disable"
)

// Config is the root configuration structure.
// Every field maps to a key in the YAML file AND can be overridden
// by the corresponding environment variable (env:"...").
type Config struct {
	// Env controls log format, verbosity, and which connection string is
	// used. Valid values: "dev", "staging", "prod" ("production" is
	// accepted as an alias of "prod").
	Env string `yaml:"env" env:"ENV" env-default:"dev"`

	// LogLevel overrides the per-environment default: debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	HTTPServer `yaml:"http_server"`
	Storage    `yaml:"storage"`
	RateLimit  `yaml:"rate_limit"`
}

// HTTPServer holds settings specific to the HTTP server.
type HTTPServer struct {
	Host string `yaml:"host" env:"HTTP_HOST"`
	Port int    `yaml:"port" env:"PORT" env-default:"3000"`

	// TrustProxy makes the server take the client address from
	// X-Forwarded-For / X-Real-IP. Only enable behind a trusted proxy,
	// otherwise clients can pick their own rate-limit key.
	TrustProxy bool `yaml:"trust_proxy" env:"TRUST_PROXY" env-default:"false"`

	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
}

// Storage describes the relational store and its connection pool.
type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`

	// DatabaseURL is used in production, LocalDatabaseURL everywhere else.
	DatabaseURL      string `yaml:"database_url" env:"DATABASE_URL"`
	LocalDatabaseURL string `yaml:"local_database_url" env:"LOCAL_DATABASE_URL"`

	// Path is the SQLite .db file, only read by the sqlite driver.
	Path string `yaml:"path" env:"STORAGE_PATH" env-default:"storage/students.db"`

	PoolMax          int    `yaml:"pool_max" env:"DB_POOL_MAX" env-default:"20"`
	IdleTimeoutMs    int    `yaml:"idle_timeout_ms" env:"DB_IDLE_TIMEOUT" env-default:"30000"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms" env:"DB_CONNECTION_TIMEOUT" env-default:"2000"`
	TLS              string `yaml:"tls" env:"DB_TLS" env-default:"auto"`

	// SkipMigrate leaves table creation to cmd/migrate instead of running
	// it when the server starts.
	SkipMigrate bool `yaml:"skip_migrate" env:"DB_SKIP_MIGRATE"`
}

// RateLimit configures the fixed-window limiter in front of the router.
type RateLimit struct {
	WindowMs int `yaml:"window_ms" env:"RATE_LIMIT_WINDOW_MS" env-default:"60000"`
	Max      int `yaml:"max" env:"RATE_LIMIT_MAX" env-default:"100"`

	// RedisAddr switches the counters from process memory to Redis so that
	// every replica shares the same windows.
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

// DSN returns the connection string for the current environment.
func (c *Config) DSN() string {
	if c.IsProduction() {
		return c.DatabaseURL
	}
	return c.LocalDatabaseURL
}

// UseTLS resolves the TLS mode against the environment.
func (c *Config) UseTLS() bool {
	switch c.Storage.TLS {
	case TLSRequire:
		return true
	case TLSDisable:
		return false
	default:
		return c.IsProduction()
	}
}

// Addr is the TCP address the HTTP server listens on, e.g. ":3000".
func (s HTTPServer) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s Storage) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMs) * time.Millisecond
}

func (s Storage) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutMs) * time.Millisecond
}

func (r RateLimit) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}

// Validate rejects combinations that cannot work at runtime.
func (c *Config) Validate() error {
	var errs []error

	switch c.Driver {
	case DriverPostgres:
		if c.DSN() == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DATABASE_URL is required in production"))
			} else {
				errs = append(errs, errors.New("LOCAL_DATABASE_URL is required outside production"))
			}
		}
	case DriverSQLite:
		if c.Path == "" {
			errs = append(errs, errors.New("storage path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Driver))
	}

	switch c.Storage.TLS {
	case TLSAuto, TLSRequire, TLSDisable:
	default:
		errs = append(errs, fmt.Errorf("unknown tls mode %q", c.Storage.TLS))
	}

	if c.PoolMax <= 0 {
		errs = append(errs, errors.New("pool max must be positive"))
	}
	if c.ConnectTimeoutMs <= 0 {
		errs = append(errs, errors.New("connect timeout must be positive"))
	}
	if c.WindowMs <= 0 || c.Max <= 0 {
		errs = append(errs, errors.New("rate limit window and max must be positive"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}

	return errors.Join(errs...)
}

// Load builds the configuration. An empty path means environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		// ReadConfig reads the YAML file, then applies env overrides and
		// env-default values for anything still unset.
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad reads, validates, and returns the application config.
//
// Functions prefixed with "Must" are allowed to fatal on failure: if this
// returns, the config is valid.
func MustLoad() *Config {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("cannot read .env: %s", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		flags := flag.String("config", "", "Path to the configuration YAML file")
		flag.Parse()
		configPath = *flags
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot load config: %s", err)
	}
	return cfg
}
