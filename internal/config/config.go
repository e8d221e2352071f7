// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full process configuration shared by both binaries.
type Config struct {
	AppConfig AppConfigConfig
	Database  DatabaseConfig
	Seed      SeedSettings
	Logging   LoggingConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
}

// AppConfigConfig locates the configuration store.
type AppConfigConfig struct {
	// Connection is an App Configuration connection string or endpoint URI.
	Connection string `env:"APPCONFIG_CONNECTION"`
	// Timeout bounds each request to the store.
	Timeout time.Duration `env:"APPCONFIG_TIMEOUT,default=30s"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	DSN             string        `env:"DATABASE_DSN"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=5m"`
	PingTimeout     time.Duration `env:"DATABASE_PING_TIMEOUT,default=5s"`
}

// SeedSettings points at the seed data.
type SeedSettings struct {
	// Label overrides the label from the seed file when set.
	Label string `env:"SEED_LABEL"`
	// File is an optional YAML seed file. Empty means built-in defaults.
	File string `env:"SEED_FILE"`
}

// LoggingConfig mirrors logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL,default=info"`
	Format     string `env:"LOG_FORMAT,default=text"`
	Output     string `env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"LOG_FILE_PREFIX"`
}

// HTTPConfig configures the API service listener.
type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR,default=:8080"`
	RateLimit       int           `env:"HTTP_RATE_LIMIT,default=50"`
	RateBurst       int           `env:"HTTP_RATE_BURST,default=100"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `env:"OTEL_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME"`
}

// Load reads ./.env when present and then decodes the environment.
func Load() (*Config, error) {
	return LoadFromEnvFile(".env")
}

// LoadFromEnvFile loads path into the environment (existing variables win) and
// decodes the result. A missing file is not an error.
func LoadFromEnvFile(path string) (*Config, error) {
	if strings.TrimSpace(path) != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.AppConfig.Connection = strings.TrimSpace(cfg.AppConfig.Connection)
	cfg.Database.DSN = strings.TrimSpace(cfg.Database.DSN)
	return &cfg, nil
}

// ValidateWorker checks the settings the migration worker cannot run without.
func (c *Config) ValidateWorker() error {
	if c.AppConfig.Connection == "" {
		return fmt.Errorf("APPCONFIG_CONNECTION is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	return nil
}

// ValidateAPI checks the settings the API service cannot run without.
func (c *Config) ValidateAPI() error {
	if err := c.ValidateWorker(); err != nil {
		return err
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	if c.HTTP.RateLimit <= 0 || c.HTTP.RateBurst <= 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT and HTTP_RATE_BURST must be positive")
	}
	return nil
}

// SeedConfig resolves the seed data, applying the SEED_LABEL override.
func (c *Config) SeedConfig() (*SeedConfig, error) {
	seed, err := LoadSeedConfigOrDefault(c.Seed.File)
	if err != nil {
		return nil, err
	}
	if label := strings.TrimSpace(c.Seed.Label); label != "" {
		seed.Label = label
	}
	return seed, nil
}
