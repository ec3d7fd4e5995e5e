// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string

	// StoreBackend selects session persistence: "memory", "sqlite", or "redis".
	StoreBackend string
	DBPath       string
	RedisAddr    string
	RedisDB      int

	AgentURL     string
	AgentTimeout time.Duration

	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		DBPath:        getEnv("DB_PATH", "./data/emergensee.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		AgentURL:      getEnv("AGENT_URL", "http://localhost:8000"),
		AgentTimeout:  getEnvDuration("AGENT_TIMEOUT", 30*time.Second),
		SessionTTL:    getEnvDuration("SESSION_TTL", 60*time.Minute),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreBackend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("STORE_BACKEND must be memory, sqlite, or redis, got %q", c.StoreBackend)
	}
	if c.StoreBackend == "sqlite" && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.StoreBackend == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR cannot be empty")
	}
	if c.AgentURL == "" {
		return fmt.Errorf("AGENT_URL cannot be empty")
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
