// Package config provides configuration loading and management for the pipeline.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// Grouping keys recognized by the breakdown and projection endpoints.
const (
	GroupByChain   = "chain"
	GroupByProject = "project"
	GroupByPool    = "pool"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Base URLs for the upstream yields API
	YieldsURL string
	ChartURL  string

	// Universe selection
	TopPools  int
	FetchDays int

	// Fetch resilience
	RetryCount int
	RetryDelay time.Duration

	// Minimum spacing between per-pool chart requests (free tier pacing)
	ChartRequestInterval time.Duration

	// Storage locations
	DBPath  string
	DataDir string

	// Chart defaults
	TopN     int
	GroupKey string

	// Publish guard thresholds
	MaxRate      float64
	MaxTVLChange float64
	MinPoolCount int

	// Sign and checksum the JSON exports. SignKey is a hex-encoded secp256k1
	// private key; when empty an ephemeral key is generated per run.
	SignExports bool
	SignKey     string

	// Telegram notifier
	TelegramAPIURL string
	TelegramToken  string
	TelegramChatID string
	SiteURL        string

	// Display-name overrides for chart labels, keyed by pool id
	DisplayNames map[string]string

	// OpenTelemetry endpoint for observability
	OtelEndpoint string
}

// Load creates a new Config from environment variables
func Load() Config {
	displayNames := map[string]string{}
	if raw := os.Getenv("DISPLAY_NAMES"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &displayNames)
	}

	return Config{
		Port:                 GetEnvOrDefault("PORT", "8080"),
		YieldsURL:            GetEnvOrDefault("YIELDS_URL", "https://yields.llama.fi/pools"),
		ChartURL:             GetEnvOrDefault("CHART_URL", "https://yields.llama.fi/chart/"),
		TopPools:             GetEnvAsInt("TOP_POOLS", 100),
		FetchDays:            GetEnvAsInt("FETCH_DAYS", 360),
		RetryCount:           GetEnvAsInt("RETRY_COUNT", 3),
		RetryDelay:           GetEnvAsDuration("RETRY_DELAY", time.Second),
		ChartRequestInterval: GetEnvAsDuration("CHART_REQUEST_INTERVAL", 2*time.Second),
		DBPath:               GetEnvOrDefault("DB_PATH", "data/prime_rate.db"),
		DataDir:              GetEnvOrDefault("DATA_DIR", "data"),
		TopN:                 GetEnvAsInt("TOP_N", 5),
		GroupKey:             strings.ToLower(GetEnvOrDefault("GROUP_KEY", GroupByProject)),
		MaxRate:              GetEnvAsFloat("MAX_RATE", 50.0),
		MaxTVLChange:         GetEnvAsFloat("MAX_TVL_CHANGE", 0.5), // 50% day-over-day swing
		MinPoolCount:         GetEnvAsInt("MIN_POOL_COUNT", 2),
		SignExports:          GetEnvAsBool("SIGN_EXPORTS", false),
		SignKey:              os.Getenv("EXPORT_SIGN_KEY"),
		TelegramAPIURL:       GetEnvOrDefault("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:       os.Getenv("TELEGRAM_CHAT_ID"),
		SiteURL:              GetEnvOrDefault("SITE_URL", "https://512m.io"),
		DisplayNames:         displayNames,
		OtelEndpoint:         GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
