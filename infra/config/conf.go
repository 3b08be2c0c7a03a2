package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// AppConfig represents the application configuration
type AppConfig struct {
	Port           string
	AppURL         string
	APIKey         string
	Environment    string
	EncryptKey     string
	OpenSearchURL  string
	OpenSearchUser string
	OpenSearchPass string
	EnableLogging  bool
	LoggingLevel   string

	DatabaseURL string
	SQLitePath  string
	CacheDriver string

	InvoiceTTL         time.Duration
	PubKeyTTL          time.Duration
	WebhookDiagnostics bool
	RateLimitPerMinute int
	WebhookRatePerSec  float64
	WebhookBurst       int
	TrustedProxies     []string
}

var (
	instance          *validator.Validate
	appConfigInstance *AppConfig
)

// Validator returns the shared validator instance
func Validator() *validator.Validate {
	if instance == nil {
		instance = validator.New()
	}
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:               GetEnv("APP_PORT", "9999"),
			AppURL:             strings.TrimRight(GetEnv("APP_URL", "http://localhost:9999"), "/"),
			APIKey:             GetEnv("API_KEY", ""),
			Environment:        GetEnv("ENVIRONMENT", "development"),
			EncryptKey:         GetEnv("APP_ENCRYPT_KEY", ""),
			OpenSearchURL:      GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser:     GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass:     GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableLogging:      GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
			LoggingLevel:       GetEnv("LOGGING_LEVEL", "info"),
			DatabaseURL:        GetEnv("DATABASE_URL", ""),
			SQLitePath:         GetEnv("SQLITE_PATH", "./data/monopay.db"),
			CacheDriver:        GetEnv("CACHE_DRIVER", "memory"),
			InvoiceTTL:         GetDurationEnv("INVOICE_MAPPING_TTL", 24*time.Hour),
			PubKeyTTL:          GetDurationEnv("MONOPAY_PUBKEY_TTL", 0),
			WebhookDiagnostics: GetBoolEnv("MONOPAY_WEBHOOK_DIAGNOSTICS", false),
			RateLimitPerMinute: GetIntEnv("RATE_LIMIT_PER_MINUTE", 100),
			WebhookRatePerSec:  GetFloatEnv("WEBHOOK_RATE_PER_SECOND", 5),
			WebhookBurst:       GetIntEnv("WEBHOOK_BURST", 20),
			TrustedProxies:     GetListEnv("TRUSTED_PROXIES"),
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

// GetFloatEnv returns the float value of an environment variable or a default value
func GetFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv parses values like "90s" or "24h"
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetListEnv splits a comma separated environment variable, dropping empty items
func GetListEnv(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
