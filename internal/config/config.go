// Package config loads service configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr string
	// PostgresDSN and RedisAddr are optional; persistence and journaling
	// are skipped when unset.
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	// GameMode selects the registered rule engine.
	GameMode string
	// DefaultClockMs is each seat's starting clock budget.
	DefaultClockMs int64
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not load .env file")
	}

	cfg := Config{
		ListenAddr:    getenv("BUGHOUSE_LISTEN_ADDR", ":8080"),
		PostgresDSN:   os.Getenv("BUGHOUSE_POSTGRES_DSN"),
		RedisAddr:     os.Getenv("BUGHOUSE_REDIS_ADDR"),
		RedisPassword: os.Getenv("BUGHOUSE_REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("BUGHOUSE_JWT_SECRET"),
		GameMode:      getenv("BUGHOUSE_GAME_MODE", "bughouse"),
	}
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("config: BUGHOUSE_JWT_SECRET is required")
	}

	clockMs, err := strconv.ParseInt(getenv("BUGHOUSE_DEFAULT_CLOCK_MS", "300000"), 10, 64)
	if err != nil || clockMs <= 0 {
		return cfg, fmt.Errorf("config: invalid BUGHOUSE_DEFAULT_CLOCK_MS: %v", err)
	}
	cfg.DefaultClockMs = clockMs

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
