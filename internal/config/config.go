// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Event store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreNATS     = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Event store
	EventStore    string
	DatabaseURL   string
	MigrationsDir string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string
	// NATSStreamMaxBytes caps the events stream when it is first created
	NATSStreamMaxBytes int

	// Status cache; disabled when RedisURL is empty
	RedisURL       string
	StatusCacheTTL time.Duration

	// SSE
	StreamPollInterval time.Duration

	// JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests      int
	RateLimitWindow        time.Duration
	WriteRateLimitRequests int

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),

		// Event store
		EventStore:    getEnv("EVENT_STORE", StoreMemory),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "./db/migrations"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		NATSStreamMaxBytes: getIntEnv("NATS_STREAM_MAX_BYTES", 100*1024*1024*1024),

		// Status cache
		RedisURL:       getEnv("REDIS_URL", ""),
		StatusCacheTTL: getDurationEnv("STATUS_CACHE_TTL", 10*time.Minute),

		// SSE
		StreamPollInterval: getDurationEnv("STREAM_POLL_INTERVAL", 2*time.Second),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests:      getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:        getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		WriteRateLimitRequests: getIntEnv("WRITE_RATE_LIMIT_REQUESTS", 60),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.EventStore {
	case StoreMemory, StoreNATS:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when EVENT_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown EVENT_STORE %q (want memory, postgres or nats)", c.EventStore)
	}

	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.StreamPollInterval <= 0 {
		return errors.New("STREAM_POLL_INTERVAL must be positive")
	}
	if c.RateLimitRequests <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS must be positive")
	}
	if c.WriteRateLimitRequests <= 0 {
		return errors.New("WRITE_RATE_LIMIT_REQUESTS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
