// Package config resolves the engine's runtime configuration from an
// optional YAML file overlaid with environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/services/game"
)

// ServerConfig controls the HTTP listener. Timeouts are in seconds.
type ServerConfig struct {
	Host         string `yaml:"host" env:"SERVER_HOST"`
	Port         int    `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout  int    `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout int    `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  int    `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
}

// LoggingConfig mirrors pkg/logger's settings.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// RedisConfig selects the record store. An empty addr runs the engine on the
// in-memory store.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// DatabaseConfig selects the analytics archive. An empty driver disables the
// Postgres archive; events then stay in process memory.
type DatabaseConfig struct {
	Driver          string `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"` // seconds
}

// EngineConfig carries the board and quota tunables.
type EngineConfig struct {
	IdentityPepper    string      `yaml:"identity_pepper" env:"IDENTITY_PEPPER"`
	MaxAttemptsPerDay int64       `yaml:"max_attempts_per_day" env:"MAX_ATTEMPTS_PER_DAY"`
	RefreshSchedule   string      `yaml:"refresh_schedule" env:"BOARD_REFRESH_SCHEDULE"`
	RefresherEnabled  bool        `yaml:"refresher_enabled" env:"BOARD_REFRESHER_ENABLED"`
	Game              game.Limits `yaml:"game"`
}

// CORSConfig lists origins allowed to call the API. CORS_ALLOWED_ORIGINS is
// semicolon-separated.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// RateLimitConfig bounds per-client request rates.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"`
	Burst             int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// Config is the complete runtime configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Engine    EngineConfig    `yaml:"engine"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// DefaultConfig returns the configuration the engine runs with when nothing
// else is provided: memory stores, JSON logs, permissive CORS.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15,
			WriteTimeout: 15,
			IdleTimeout:  60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Engine: EngineConfig{
			MaxAttemptsPerDay: 3,
			RefreshSchedule:   "@every 2m",
			RefresherEnabled:  true,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			Burst:             20,
		},
	}
}

// Load reads the YAML file named by CONFIG_PATH (default config.yaml, absent
// files are fine) and overlays the environment on top of it.
func Load() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if path == "" {
		path = "config.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath behaves like Load for an explicit file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment only.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Database.Driver != "" && strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required when a driver is set")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit requests per second must be positive")
	}
	if c.Engine.MaxAttemptsPerDay < 0 {
		return fmt.Errorf("max attempts per day must not be negative")
	}
	return nil
}
