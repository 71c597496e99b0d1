package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// BackendConfig holds the hosted backend (auth + table API) configuration
type BackendConfig struct {
	URL       string
	AnonKey   string
	JWTSecret string
	Timeout   time.Duration
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port    string
	Env     string
	BaseURL string
}

// SessionConfig holds portal session configuration
type SessionConfig struct {
	TTL          time.Duration
	DBPath       string
	CookieSecure bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// Config holds all configuration
type Config struct {
	Backend BackendConfig
	Server  ServerConfig
	Session SessionConfig
	Log     LogConfig
	Metrics MetricsConfig
}

// ErrBackendCredentials indicates the backend URL or anon key is missing.
// This is a fatal startup condition, not a recoverable error.
var ErrBackendCredentials = errors.New("BACKEND_URL and BACKEND_ANON_KEY must be set")

// Load loads configuration from a .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		Backend: BackendConfig{
			URL:       strings.TrimRight(getEnv("BACKEND_URL", ""), "/"),
			AnonKey:   getEnv("BACKEND_ANON_KEY", ""),
			JWTSecret: getEnv("BACKEND_JWT_SECRET", ""),
			Timeout:   getEnvAsDuration("BACKEND_TIMEOUT", 10*time.Second),
		},
		Server: ServerConfig{
			Port:    getEnv("SERVER_PORT", "8080"),
			Env:     getEnv("APP_ENV", "development"),
			BaseURL: strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
		},
		Session: SessionConfig{
			TTL:          getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			DBPath:       getEnv("SESSION_DB_PATH", "sessions.db"),
			CookieSecure: getEnvAsBool("COOKIE_SECURE", true),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "portal"),
		},
	}

	if config.Backend.URL == "" || config.Backend.AnonKey == "" {
		return nil, ErrBackendCredentials
	}

	return config, nil
}

// LogConfig returns the configuration as zap logger fields
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("backend_url", c.Backend.URL),
		zap.String("server_port", c.Server.Port),
		zap.String("base_url", c.Server.BaseURL),
		zap.Duration("session_ttl", c.Session.TTL),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as booleans
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
