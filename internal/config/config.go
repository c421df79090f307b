// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// ExtractionURL is the parameter-extraction service endpoint.
	ExtractionURL     string
	ExtractionTimeout time.Duration

	// RecommendationURL is the recommendation gateway endpoint.
	RecommendationURL     string
	RecommendationTimeout time.Duration

	// SessionWindow is how long an idle chat session stays reusable.
	SessionWindow time.Duration

	// MaxClarificationAttempts bounds the clarification loop.
	MaxClarificationAttempts int

	// MaxResults caps vehicles returned per recommendation turn.
	MaxResults int

	RateLimit RateLimitConfig

	// MaxRequestBodySize caps inbound chat request bodies in bytes.
	MaxRequestBodySize int64
}

// RateLimitConfig controls the per-user chat rate limiter.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                     getEnv("PORT", "8080"),
		FrontendURL:              getEnv("FRONTEND_URL", ""),
		DBPath:                   getEnv("DB_PATH", "./data/autotrader.db"),
		ExtractionURL:            getEnv("EXTRACTION_URL", "http://localhost:5006/extract_parameters"),
		ExtractionTimeout:        getEnvDuration("EXTRACTION_TIMEOUT", 5*time.Second),
		RecommendationURL:        getEnv("RECOMMENDATION_URL", "http://localhost:5050/recommendations"),
		RecommendationTimeout:    getEnvDuration("RECOMMENDATION_TIMEOUT", 5*time.Second),
		SessionWindow:            time.Duration(getEnvInt("SESSION_WINDOW_MINUTES", 30)) * time.Minute,
		MaxClarificationAttempts: getEnvInt("MAX_CLARIFICATION_ATTEMPTS", 3),
		MaxResults:               getEnvInt("MAX_RESULTS", 5),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ExtractionURL == "" {
		return fmt.Errorf("EXTRACTION_URL cannot be empty")
	}
	if c.RecommendationURL == "" {
		return fmt.Errorf("RECOMMENDATION_URL cannot be empty")
	}
	if c.SessionWindow <= 0 {
		return fmt.Errorf("SESSION_WINDOW_MINUTES must be > 0")
	}
	if c.MaxClarificationAttempts <= 0 {
		return fmt.Errorf("MAX_CLARIFICATION_ATTEMPTS must be > 0")
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("MAX_RESULTS must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
