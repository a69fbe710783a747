// Package config loads service settings from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the binaries need to start.
type Config struct {
	Addr          string
	PostgresDSN   string
	MigrationsDir string
	SeedsDir      string

	RateLimitPerSec float64
	RateLimitBurst  int

	ShutdownTimeout time.Duration
}

// Load reads the environment. A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:            getEnv("KOMIR_ADDR", ":8080"),
		PostgresDSN:     os.Getenv("KOMIR_PG_DSN"),
		MigrationsDir:   getEnv("KOMIR_MIGRATIONS_DIR", "ops/migrations/sql"),
		SeedsDir:        getEnv("KOMIR_SEEDS_DIR", "ops/migrations/seeds"),
		RateLimitPerSec: getEnvFloat("KOMIR_RATE_LIMIT_PER_SEC", 50),
		RateLimitBurst:  getEnvInt("KOMIR_RATE_LIMIT_BURST", 100),
		ShutdownTimeout: getEnvDuration("KOMIR_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
