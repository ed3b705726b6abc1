// Package config loads the engine's environment-variable configuration,
// reading an optional .env file before falling back to the process
// environment.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the server needs.
type Config struct {
	ListenAddr         string
	RedisURL           string
	APNSPem            []byte
	APNSKeyID          string
	APNSTeamID         string
	APNSTopic          string
	MaxConcurrency     int
	WidgetTickInterval time.Duration
}

const defaultTopic = "com.sugarbridge.glucoseapp"

// Load reads .env (if present) then the process environment, applying
// production defaults for anything left unset.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file found, reading process environment")
	}

	cfg := Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		APNSKeyID:          os.Getenv("PUSH_NOTIFICATION_ID"),
		APNSTeamID:         os.Getenv("TEAM_IDENTIFIER"),
		APNSTopic:          getEnv("APNS_TOPIC", defaultTopic),
		MaxConcurrency:     getEnvInt("SCHEDULER_MAX_CONCURRENCY", 64),
		WidgetTickInterval: getEnvDuration("WIDGET_TICK_INTERVAL", 5*time.Minute),
	}

	if pem := os.Getenv("PUSH_NOTIFICATION_PEM"); pem != "" {
		cfg.APNSPem = []byte(pem)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
