package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	APIBaseURL       string
	RedisAddr        string
	RedisPassword    string
	RealtimeSecret   string
	RealtimeIssuer   string
	RealtimeTokenTTL time.Duration
	CredentialDir    string
	TrackMinInterval time.Duration
	TrackMinDistance float64
	HTTPAddr         string
}

func Load() Config {
	return Config{
		APIBaseURL:       getenv("API_BASE_URL", "http://127.0.0.1:8080"),
		RedisAddr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		RealtimeSecret:   getenv("REALTIME_JWT_SECRET", "dev-secret"),
		RealtimeIssuer:   getenv("REALTIME_JWT_ISSUER", "busnaama-api"),
		RealtimeTokenTTL: getenvDuration("REALTIME_TOKEN_TTL", 12*time.Hour),
		CredentialDir:    getenv("CREDENTIAL_DIR", defaultCredentialDir()),
		TrackMinInterval: getenvDuration("TRACK_MIN_INTERVAL", 2*time.Second),
		TrackMinDistance: getenvFloat("TRACK_MIN_DISTANCE_M", 5),
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
	}
}

func defaultCredentialDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".busnaama"
	}
	return filepath.Join(home, ".busnaama")
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
