package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type CKey string

type Config struct {
	Validator *validator.Validate
	SecretKey string
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port                string
	Environment         string
	HomeCountry         string
	OpenSearchURL       string
	OpenSearchUser      string
	OpenSearchPass      string
	EnableLogging       bool
	LoggingLevel        string
	RedisURL            string
	NATSURL             string
	SQLitePath          string
	HealthCheckInterval time.Duration
	MaxRetries          int
	StateRetentionDays  int
}

var (
	instance          *Config
	appConfigInstance *AppConfig
)

func App() *Config {
	if instance == nil {
		instance = &Config{
			Validator: validator.New(),
			// the secret key will change every time the application is restarted.
			SecretKey: uuid.New().String(),
		}
	}
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:                GetEnv("APP_PORT", "9999"),
			Environment:         GetEnv("ENVIRONMENT", "development"),
			HomeCountry:         GetEnv("HOME_COUNTRY", "US"),
			OpenSearchURL:       GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser:      GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass:      GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableLogging:       GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", true),
			LoggingLevel:        GetEnv("LOGGING_LEVEL", "info"),
			RedisURL:            GetEnv("REDIS_URL", ""),
			NATSURL:             GetEnv("NATS_URL", ""),
			SQLitePath:          GetEnv("SQLITE_PATH", "paybridge.db"),
			HealthCheckInterval: time.Duration(GetIntEnv("HEALTH_CHECK_INTERVAL_SECONDS", 30)) * time.Second,
			MaxRetries:          GetIntEnv("PAYMENT_MAX_RETRIES", 3),
			StateRetentionDays:  GetIntEnv("STATE_RETENTION_DAYS", 30),
		}
	}
	return appConfigInstance
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
