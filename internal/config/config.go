package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the churn server
type Config struct {
	Port             string
	ModelPath        string
	ModelDatabaseURL string
	ModelName        string
	AllowedOrigins   []string
	RequestTimeout   time.Duration
	LogLevel         string
	ErrorSampleRate  int
	OTELEnabled      bool
	ServiceName      string
}

// Load reads configuration from environment variables with sensible defaults.
// Variables from a .env file in the working directory are loaded first and
// never override variables already set in the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	return FromEnv()
}

// FromEnv builds a Config from the current environment
func FromEnv() (*Config, error) {
	timeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: must be positive, got %s", timeout)
	}

	sampleRate, err := strconv.Atoi(getEnv("ERROR_SAMPLE_RATE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid ERROR_SAMPLE_RATE: %w", err)
	}

	port := strings.TrimPrefix(strings.TrimSpace(getEnv("PORT", "8080")), ":")
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("invalid PORT %q", port)
	}

	return &Config{
		Port:             port,
		ModelPath:        getEnv("MODEL_PATH", "models/churn_model.json"),
		ModelDatabaseURL: getEnv("MODEL_DATABASE_URL", ""),
		ModelName:        getEnv("MODEL_NAME", "churn"),
		AllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RequestTimeout:   timeout,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		ErrorSampleRate:  sampleRate,
		OTELEnabled:      strings.EqualFold(getEnv("OTEL_ENABLED", "false"), "true"),
		ServiceName:      getEnv("OTEL_SERVICE_NAME", "churn-server"),
	}, nil
}

// Address returns the HTTP listen address
func (c *Config) Address() string {
	return ":" + c.Port
}

// UseDatabase reports whether the model artifact is read from Postgres
func (c *Config) UseDatabase() bool {
	return c.ModelDatabaseURL != ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
