// Package config provides SDK configuration loading from environment
// variables and .env files. It uses viper for flexible configuration
// management with sensible defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the SDK runtime settings loaded from environment variables or
// a .env file. Priority: environment variables > .env file > defaults.
type Config struct {
	BaseURL          string // Flag service base URL
	APIKey           string // Client API key sent as bearer auth
	ResolveTimeoutMs int    // Budget for a blocking flag fetch before fallback
	FreshnessSec     int    // How long a fetched entry is fresh
	CheckRateLimit   int    // Max check events per flag key per minute
	StorageDir       string // Directory for the durable completion store
	LogLevel         string // zerolog level (debug, info, warn, error)
}

// Load reads configuration from environment variables and .env (if present).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env") // Optional; silently ignored if file doesn't exist
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	setDefaults(v)

	return &Config{
		BaseURL:          v.GetString("FLAGSDK_BASE_URL"),
		APIKey:           v.GetString("FLAGSDK_API_KEY"),
		ResolveTimeoutMs: v.GetInt("FLAGSDK_RESOLVE_TIMEOUT_MS"),
		FreshnessSec:     v.GetInt("FLAGSDK_FRESHNESS_SEC"),
		CheckRateLimit:   v.GetInt("FLAGSDK_CHECK_RATE_LIMIT"),
		StorageDir:       v.GetString("FLAGSDK_STORAGE_DIR"),
		LogLevel:         v.GetString("FLAGSDK_LOG_LEVEL"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("FLAGSDK_BASE_URL", "http://localhost:8080")
	v.SetDefault("FLAGSDK_API_KEY", "")
	v.SetDefault("FLAGSDK_RESOLVE_TIMEOUT_MS", 4000)
	v.SetDefault("FLAGSDK_FRESHNESS_SEC", 30)
	v.SetDefault("FLAGSDK_CHECK_RATE_LIMIT", 60)
	v.SetDefault("FLAGSDK_STORAGE_DIR", ".flagsdk")
	v.SetDefault("FLAGSDK_LOG_LEVEL", "info")
}

// ResolveTimeout returns the resolve budget as a duration.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.ResolveTimeoutMs) * time.Millisecond
}

// Freshness returns the cache freshness window as a duration.
func (c *Config) Freshness() time.Duration {
	return time.Duration(c.FreshnessSec) * time.Second
}

// ValidationError describes a configuration constraint violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed [%s]: %s", e.Field, e.Message)
}

// Validate checks that the configuration is usable. Call at startup to fail
// fast on misconfiguration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ValidationError{Field: "FLAGSDK_BASE_URL", Message: "base URL cannot be empty"}
	}
	if c.ResolveTimeoutMs <= 0 {
		return ValidationError{Field: "FLAGSDK_RESOLVE_TIMEOUT_MS", Message: "resolve timeout must be positive"}
	}
	if c.FreshnessSec <= 0 {
		return ValidationError{Field: "FLAGSDK_FRESHNESS_SEC", Message: "freshness window must be positive"}
	}
	if c.CheckRateLimit <= 0 {
		return ValidationError{Field: "FLAGSDK_CHECK_RATE_LIMIT", Message: "rate limit must be positive"}
	}
	return nil
}
