// internal/config/config.go
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	API       APIConfig
	Telemetry TelemetryConfig
	Chaos     ChaosConfig
}

type ServerConfig struct {
	Port  string
	Env   string
	Debug bool // log at debug level
	// SessionIdleTTL evicts a user's session state after this long without
	// a request. Zero keeps sessions until they are dropped explicitly.
	SessionIdleTTL time.Duration
}

type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	RateBurst int
}

type TelemetryConfig struct {
	ServiceName    string
	OTLPEndpoint   string        // empty disables trace and metric export
	MetricInterval time.Duration // metric export period
}

type ChaosConfig struct {
	BookingFailureRate float64 // share of POST /bookings rejected with 409
}

// Load reads an optional .env file and returns configuration from environment
// variables. Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return FromEnv(), nil
}

// FromEnv returns configuration from environment variables only.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            getEnv("ENV", "development"),
			Debug:          getEnvBool("DEBUG", false),
			SessionIdleTTL: getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
		},
		API: APIConfig{
			BaseURL:   getEnv("API_BASE_URL", "http://localhost:8000"),
			Timeout:   getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
			RateLimit: getEnvFloat("RATE_LIMIT_RPS", 20),
			RateBurst: getEnvInt("RATE_LIMIT_BURST", 10),
		},
		Telemetry: TelemetryConfig{
			ServiceName:    getEnv("SERVICE_NAME", "bookshare"),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			MetricInterval: getEnvDuration("OTEL_METRIC_EXPORT_INTERVAL", 30*time.Second),
		},
		Chaos: ChaosConfig{
			BookingFailureRate: getEnvFloat("CHAOS_BOOKING_FAILURE_RATE", 0),
		},
	}
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15s") or a plain number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
