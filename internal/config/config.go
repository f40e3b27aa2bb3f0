// Package config loads driver-core configuration from the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings the driverd process needs.
type Config struct {
	DataDir       string
	APIBaseURL    string
	APIToken      string
	DriverID      string
	ProbeURL      string
	ProbeInterval time.Duration
	SyncInterval  time.Duration
	ListenAddr    string
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DataDir:       getenv("DATA_DIR", "./data"),
		APIBaseURL:    mustGetenv("API_BASE_URL"),
		APIToken:      getenv("API_TOKEN", ""),
		DriverID:      mustGetenv("DRIVER_ID"),
		ListenAddr:    getenv("LISTEN_ADDR", "localhost:8091"),
		ProbeInterval: getDuration("PROBE_INTERVAL", 30*time.Second),
		SyncInterval:  getDuration("SYNC_INTERVAL", 5*time.Minute),
	}
	cfg.ProbeURL = getenv("PROBE_URL", cfg.APIBaseURL+"/api/health")

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
