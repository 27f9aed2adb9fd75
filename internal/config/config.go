// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Inference providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Provider defaults applied when INFERENCE_BASE_URL / INFERENCE_MODEL are unset.
var providerDefaults = map[string]struct{ BaseURL, Model string }{
	ProviderGemini: {"https://generativelanguage.googleapis.com/v1beta", "gemini-1.5-flash"},
	ProviderOpenAI: {"https://api.openai.com/v1", "gpt-4o-mini"},
}

// Config holds the API process configuration.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development" validate:"oneof=development staging production"`
	AppPort int    `env:"APP_PORT" envDefault:"8000" validate:"min=1,max=65535"`

	// Local SQLite database file
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/dermascan.db" validate:"required"`

	// Optional Redis, enables rate limiting of /analyze
	RedisURL string `env:"REDIS_URL" validate:"omitempty,url"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`

	// Server timeouts. WriteTimeout must exceed INFERENCE_TIMEOUT, which
	// bounds the whole model call including retries.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"90s" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s" validate:"gt=0"`

	Inference InferenceConfig `envPrefix:"INFERENCE_"`

	// Sessions
	SessionSecret string        `env:"SESSION_SECRET,required" validate:"min=16"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h" validate:"gt=0"`

	// Upload limits. The body limit must leave room for base64 JSON payloads.
	MaxImageBytes      int64 `env:"MAX_IMAGE_BYTES" envDefault:"5242880" validate:"gt=0"`
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"8388608" validate:"gtefield=MaxImageBytes"`

	// Rate limiting (requires REDIS_URL)
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPM     int  `env:"RATE_LIMIT_RPM" envDefault:"10" validate:"gt=0"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"3" validate:"gt=0"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "http://localhost:8501")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Optional S3-compatible archive for uploaded images
	S3 S3Config `envPrefix:"S3_"`
}

// InferenceConfig configures the external model.
type InferenceConfig struct {
	Provider string `env:"PROVIDER" envDefault:"gemini" validate:"oneof=gemini openai"`
	APIKey   string `env:"API_KEY" validate:"required_if=Provider gemini"`
	BaseURL  string `env:"BASE_URL" validate:"omitempty,url"`
	Model    string `env:"MODEL"`
	// Total budget for one analysis, retries included
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s" validate:"gt=0"`
	// Retries of rate-limited or overloaded model calls
	MaxRetries int `env:"MAX_RETRIES" envDefault:"2" validate:"min=0,max=5"`
}

// S3Config configures the image archive. Archiving is off when Bucket is empty.
type S3Config struct {
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"ENDPOINT" validate:"omitempty,url"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
}

// Enabled reports whether an archive bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// WebConfig holds the UI process configuration.
type WebConfig struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development" validate:"oneof=development staging production"`
	WebPort int    `env:"WEB_PORT" envDefault:"8501" validate:"min=1,max=65535"`

	// Base URL of the API process
	APIBaseURL string        `env:"API_BASE_URL" envDefault:"http://localhost:8000" validate:"url"`
	APITimeout time.Duration `env:"API_TIMEOUT" envDefault:"60s" validate:"gt=0"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=json text"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"90s" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"5242880" validate:"gt=0"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// IsDevelopment returns true if running in development mode.
func (c *WebConfig) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// RateLimitActive reports whether /analyze is rate limited.
func (c *Config) RateLimitActive() bool {
	return c.RateLimitEnabled && c.RedisURL != ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load parses environment variables and returns the API Config.
// Returns an error if required variables are missing or values are invalid.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if d, ok := providerDefaults[cfg.Inference.Provider]; ok {
		if cfg.Inference.BaseURL == "" {
			cfg.Inference.BaseURL = d.BaseURL
		}
		if cfg.Inference.Model == "" {
			cfg.Inference.Model = d.Model
		}
	}
	cfg.Inference.BaseURL = strings.TrimSuffix(cfg.Inference.BaseURL, "/")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.WriteTimeout <= cfg.Inference.Timeout {
		return nil, fmt.Errorf("invalid config: WRITE_TIMEOUT (%s) must exceed INFERENCE_TIMEOUT (%s)",
			cfg.WriteTimeout, cfg.Inference.Timeout)
	}
	return cfg, nil
}

// LoadWeb parses environment variables and returns the UI WebConfig.
func LoadWeb() (*WebConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &WebConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimSuffix(cfg.APIBaseURL, "/")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv reads .env without overriding variables already set.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}
