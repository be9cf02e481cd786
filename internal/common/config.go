package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Pipeline  PipelineConfig
	Discovery DiscoveryConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// PipelineConfig holds worker pool and tier-loop configuration
type PipelineConfig struct {
	Workers           int
	QueueSize         int
	ParseTimeout      time.Duration
	StorageMaxRetries int
	DLQMaxAttempts    int
	DLQRetryAfter     time.Duration
}

// DiscoveryConfig holds EDGAR feed configuration
type DiscoveryConfig struct {
	BaseURL       string
	UserAgent     string
	RatePerSecond float64
	DropDir       string
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is applied first if present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Pipeline: PipelineConfig{
			Workers:           getEnvAsInt("WORKER_COUNT", 4),
			QueueSize:         getEnvAsInt("QUEUE_SIZE", 256),
			ParseTimeout:      getEnvAsDuration("PARSE_TIMEOUT", 2*time.Minute),
			StorageMaxRetries: getEnvAsInt("STORAGE_MAX_RETRIES", 3),
			DLQMaxAttempts:    getEnvAsInt("DLQ_MAX_ATTEMPTS", 5),
			DLQRetryAfter:     getEnvAsDuration("DLQ_RETRY_AFTER", 24*time.Hour),
		},
		Discovery: DiscoveryConfig{
			BaseURL:       getEnv("EDGAR_BASE_URL", "https://www.sec.gov"),
			UserAgent:     getEnv("EDGAR_USER_AGENT", ""),
			RatePerSecond: getEnvAsFloat64("EDGAR_RATE_LIMIT", 10.0),
			DropDir:       getEnv("DROP_DIR", ""),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "WORKER_COUNT must be positive", ErrInvalidInput)
	}
	if c.Pipeline.ParseTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "PARSE_TIMEOUT must be positive", ErrInvalidInput)
	}
	if c.Discovery.DropDir == "" && c.Discovery.UserAgent == "" {
		return NewAppError("CONFIG_ERROR", "EDGAR_USER_AGENT is required unless DROP_DIR is set", ErrInvalidInput)
	}
	return nil
}
