package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Sale   SaleConfig
	Log    LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name     string `envconfig:"DB_NAME" default:"flash_sale_db"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int    `envconfig:"DB_MIN_CONNS" default:"5"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// RedisConfig holds Fast Coordinator (Redis) connection configuration.
type RedisConfig struct {
	Host        string `envconfig:"REDIS_HOST" default:"localhost"`
	Port        int    `envconfig:"REDIS_PORT" default:"6379"`
	Password    string `envconfig:"REDIS_PASSWORD" default:""`
	DB          int    `envconfig:"REDIS_DB" default:"0"`
	PoolSize    int    `envconfig:"REDIS_POOL_SIZE" default:"20"`
	MaxRetries  int    `envconfig:"REDIS_CONNECT_RETRIES" default:"5"`
	MarkTTLSecs int    `envconfig:"REDIS_MARK_TTL_SECONDS" default:"86400"` // 24h; should exceed the longest sale window
}

// Addr returns the host:port address for the Redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MarkTTL returns the configured user-mark TTL as a time.Duration.
func (c RedisConfig) MarkTTL() time.Duration {
	return time.Duration(c.MarkTTLSecs) * time.Second
}

// SaleConfig holds defaults applied by the admission pipeline when a request
// omits an explicit sale id, plus the (currently unenforced, carried for
// future use) admission rate-limit parameters.
type SaleConfig struct {
	DefaultSaleID      string `envconfig:"DEFAULT_SALE_ID" default:""`
	RateLimitWindowMS  int    `envconfig:"RATE_LIMIT_WINDOW_MS" default:"1000"`
	RateLimitBurst     int    `envconfig:"RATE_LIMIT_BURST" default:"0"` // not read by any code path
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load parses environment variables into the Config struct and validates them.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	// Validate server port
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil {
		return fmt.Errorf("SERVER_PORT must be a valid number: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	// Validate shutdown timeout
	if c.Server.ShutdownTimeout < 1 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be at least 1 second, got %d", c.Server.ShutdownTimeout)
	}
	if c.Server.ShutdownTimeout > 300 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must not exceed 300 seconds, got %d", c.Server.ShutdownTimeout)
	}

	// Validate DB port
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.DB.Port)
	}
	if c.DB.Host == "" {
		return fmt.Errorf("DB_HOST cannot be empty")
	}
	if c.DB.User == "" {
		return fmt.Errorf("DB_USER cannot be empty")
	}
	if c.DB.Name == "" {
		return fmt.Errorf("DB_NAME cannot be empty")
	}

	// Validate connection pool sizes
	if c.DB.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.DB.MaxConns)
	}
	if c.DB.MinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be at least 0, got %d", c.DB.MinConns)
	}
	if c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DB.MinConns, c.DB.MaxConns)
	}

	// Validate SSL mode
	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[c.DB.SSLMode] {
		return fmt.Errorf("DB_SSLMODE must be one of: disable, allow, prefer, require, verify-ca, verify-full; got %q", c.DB.SSLMode)
	}

	// Validate Redis port
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("REDIS_PORT must be between 1 and 65535, got %d", c.Redis.Port)
	}
	if c.Redis.PoolSize < 1 {
		return fmt.Errorf("REDIS_POOL_SIZE must be at least 1, got %d", c.Redis.PoolSize)
	}
	if c.Redis.MarkTTLSecs < 1 {
		return fmt.Errorf("REDIS_MARK_TTL_SECONDS must be at least 1, got %d", c.Redis.MarkTTLSecs)
	}

	if c.Sale.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 0, got %d", c.Sale.RateLimitBurst)
	}

	return nil
}

// WarnIfDefaultCredentials returns a warning for each DB credential setting
// still at its insecure development default. Intended to be logged at
// startup, not to block it.
func (c *Config) WarnIfDefaultCredentials() []string {
	var warnings []string
	if c.DB.Password == "postgres" {
		warnings = append(warnings, "DB_PASSWORD is set to the default development value; change it before deploying")
	}
	if c.DB.User == "postgres" {
		warnings = append(warnings, "DB_USER is set to the default development value; change it before deploying")
	}
	if c.DB.SSLMode == "disable" {
		warnings = append(warnings, "DB_SSLMODE is \"disable\"; use \"require\" or stronger in production")
	}
	return warnings
}
