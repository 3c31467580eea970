// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration. Every field has a default so a
// bare environment yields a working local setup.
type Config struct {
	Port               int
	Env                string
	ProductionSafeMode bool

	DB    DBConfig
	Redis RedisConfig
	LLM   LLMConfig

	// FSAllowedPath roots all filesystem tool access.
	FSAllowedPath string
}

// DBConfig holds Postgres coordinates for the db tool family.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// DSN returns a lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

// RedisConfig holds Redis coordinates for the kv/queue tool family.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig holds the local model backend coordinates.
type LLMConfig struct {
	BaseURL       string
	Model         string
	Temperature   float64
	ContextLength int
	Timeout       time.Duration
}

// Load reads configuration from the environment, applying defaults for
// any unset key.
func Load() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	return &Config{
		Port:               envInt("PORT", 4000),
		Env:                envStr("NODE_ENV", "development"),
		ProductionSafeMode: envBool("PRODUCTION_SAFE_MODE", false),
		DB: DBConfig{
			Host:     envStr("DB_HOST", "localhost"),
			Port:     envInt("DB_PORT", 5432),
			User:     envStr("DB_USER", "postgres"),
			Password: envStr("DB_PASSWORD", "postgres"),
			Name:     envStr("DB_NAME", "agentdb"),
		},
		Redis: RedisConfig{
			Host:     envStr("REDIS_HOST", "localhost"),
			Port:     envInt("REDIS_PORT", 6379),
			Password: envStr("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		LLM: LLMConfig{
			BaseURL:       envStr("LLM_BASE_URL", "http://localhost:11434"),
			Model:         envStr("LLM_MODEL", "llama3.1"),
			Temperature:   envFloat("LLM_TEMPERATURE", 0.1),
			ContextLength: envInt("LLM_CONTEXT_LENGTH", 4096),
			Timeout:       time.Duration(envInt("LLM_TIMEOUT_MS", 60000)) * time.Millisecond,
		},
		FSAllowedPath: envStr("FS_ALLOWED_PATH", cwd),
	}
}

// Production reports whether the service runs in a production environment.
func (c *Config) Production() bool {
	return c.Env == "production"
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
