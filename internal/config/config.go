package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"finsync/internal/log"
)

type Config struct {
	// Local cache
	DataBackend  string
	SQLiteDBPath string

	// Remote gateway
	RemoteBackend      string
	RemoteBaseURL      string
	RemoteToken        string
	RemoteTimeout      time.Duration
	RemoteRateLimit    float64
	RemoteBurst        int
	BreakerTimeout     time.Duration
	BreakerMaxFailures int

	// Reference remote service
	Port            string
	DatabaseURL     string
	ServerRateLimit int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Observability
	LogLevel         string
	LogFormat        string
	MetricsNamespace string
}

// Load reads the configuration from the environment, falling back to
// defaults for unset keys.
func Load() *Config {
	return &Config{
		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finsync.db"),

		RemoteBackend:      getEnv("REMOTE_BACKEND", "http"),
		RemoteBaseURL:      getEnv("REMOTE_BASE_URL", "http://localhost:8081"),
		RemoteToken:        getEnv("REMOTE_TOKEN", ""),
		RemoteTimeout:      getEnvDuration("REMOTE_TIMEOUT", 10*time.Second),
		RemoteRateLimit:    getEnvFloat("REMOTE_RATE_LIMIT", 20),
		RemoteBurst:        getEnvInt("REMOTE_BURST", 10),
		BreakerTimeout:     getEnvDuration("BREAKER_TIMEOUT", 30*time.Second),
		BreakerMaxFailures: getEnvInt("BREAKER_MAX_FAILURES", 5),

		Port:            getEnv("PORT", "8081"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		ServerRateLimit: getEnvInt("SERVER_RATE_LIMIT", 600),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finsync"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "finsync_export"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "finsync"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	dataBackends := []string{"sqlite", "memory"}
	if !slices.Contains(dataBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, dataBackends))
	}
	if c.DataBackend == "sqlite" && c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
	}

	remoteBackends := []string{"http", "memory"}
	if !slices.Contains(remoteBackends, c.RemoteBackend) {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, remoteBackends))
	}
	if c.RemoteBackend == "http" {
		if u, err := url.Parse(c.RemoteBaseURL); err != nil || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid remote base URL '%s'", c.RemoteBaseURL))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid remote base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
	}

	if c.RemoteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must be positive", c.RemoteTimeout))
	}
	if c.RemoteRateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid remote rate limit %v: must not be negative", c.RemoteRateLimit))
	}
	if c.RemoteRateLimit > 0 && c.RemoteBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid remote burst %d: must be at least 1", c.RemoteBurst))
	}
	if c.BreakerMaxFailures < 1 {
		errors = append(errors, fmt.Sprintf("invalid breaker max failures %d: must be at least 1", c.BreakerMaxFailures))
	}
	if c.BreakerTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid breaker timeout %v: must be at least 1 second", c.BreakerTimeout))
	}
	if c.ServerRateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid server rate limit %d: must not be negative", c.ServerRateLimit))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided with GOOGLE_SPREADSHEET_ID")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'json' or 'console'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Logging returns the logger configuration for component.
func (c *Config) Logging(component string) log.Config {
	return log.Config{Level: c.LogLevel, Format: c.LogFormat, Component: component}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
