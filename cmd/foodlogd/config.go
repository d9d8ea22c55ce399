// ABOUTME: foodlogd configuration loaded from the environment.
// ABOUTME: Every setting also has a command-line flag.

package main

import (
	"os"
	"time"
)

// Storage backends.
const (
	BackendPocketBase = "pocketbase"
	BackendSQLite     = "sqlite"
)

// Config holds foodlogd settings. Every field has an env var and a flag.
type Config struct {
	Addr         string
	Backend      string // "pocketbase" or "sqlite"
	PBDir        string // PocketBase data directory
	DBPath       string // SQLite path for the sqlite backend
	JWTSecret    string
	APIKey       string // empty disables the apikey check
	TokenTTL     time.Duration
	RefreshTTL   time.Duration
	TrustedProxy bool
}

// LoadConfig reads settings from the environment. Call godotenv first if a
// .env file should be honored.
func LoadConfig() Config {
	return Config{
		Addr:         getEnv("FOODLOGD_ADDR", ":8787"),
		Backend:      getEnv("FOODLOGD_BACKEND", BackendPocketBase),
		PBDir:        getEnv("FOODLOGD_PB_DIR", "pb_data"),
		DBPath:       getEnv("FOODLOGD_DB", "foodlogd.db"),
		JWTSecret:    getEnv("FOODLOGD_JWT_SECRET", ""),
		APIKey:       getEnv("FOODLOGD_API_KEY", ""),
		TokenTTL:     getDuration("FOODLOGD_TOKEN_TTL", time.Hour),
		RefreshTTL:   getDuration("FOODLOGD_REFRESH_TTL", 30*24*time.Hour),
		TrustedProxy: os.Getenv("TRUSTED_PROXY") == "1",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
