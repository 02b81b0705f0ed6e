package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mapadna/oracle-funnel-go/internal/constants"
)

type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Oracle    OracleConfig
	Session   SessionConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigin  string
	Environment    string
	DebugEndpoints bool
}

type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	MaxRequests   int
	Window        time.Duration
	SweepInterval time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type OracleConfig struct {
	RevealDelay time.Duration
}

type SessionConfig struct {
	IdleTTL time.Duration
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 3002),
			AllowedOrigin:  getEnv("ALLOWED_ORIGIN", ""),
			Environment:    getEnv("ENVIRONMENT", "development"),
			DebugEndpoints: getEnvBool("DEBUG_ENDPOINTS", false),
		},
		OpenAI: OpenAIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Model:       getEnv("OPENAI_MODEL", constants.UpstreamConfig.DefaultModel),
			Temperature: getEnvFloat("OPENAI_TEMPERATURE", constants.UpstreamConfig.Temperature),
			MaxTokens:   getEnvInt("OPENAI_MAX_TOKENS", constants.UpstreamConfig.MaxTokens),
			Timeout:     time.Duration(getEnvInt("OPENAI_TIMEOUT_SECONDS", int(constants.UpstreamConfig.Timeout.Seconds()))) * time.Second,
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", constants.UpstreamConfig.GeminiModel),
		},
		Webhook: WebhookConfig{
			URL:     getEnv("WEBHOOK_URL", constants.WebhookConfig.DefaultURL),
			Timeout: time.Duration(getEnvInt("WEBHOOK_TIMEOUT_SECONDS", int(constants.WebhookConfig.Timeout.Seconds()))) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvBool("RATE_LIMIT_ENABLED", true),
			MaxRequests:   getEnvInt("RATE_LIMIT_MAX_REQUESTS", constants.RateLimitDefaults.MaxRequests),
			Window:        time.Duration(getEnvInt("RATE_LIMIT_WINDOW_MINUTES", int(constants.RateLimitDefaults.Window.Minutes()))) * time.Minute,
			SweepInterval: constants.RateLimitDefaults.SweepInterval,
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Oracle: OracleConfig{
			RevealDelay: time.Duration(getEnvInt("ORACLE_REVEAL_DELAY_SECONDS", 0)) * time.Second,
		},
		Session: SessionConfig{
			IdleTTL: time.Duration(getEnvInt("SESSION_TTL_MINUTES", int(constants.SessionConfig.IdleTTL.Minutes()))) * time.Minute,
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be a valid port number")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MINUTES must be positive")
	}
	if c.Webhook.URL == "" {
		return fmt.Errorf("WEBHOOK_URL is required")
	}
	return nil
}

// OfflineMode reports whether the pipeline should skip the upstream call
// entirely. An absent credential or a known sentinel test key both mean the
// deployment runs on fallback synthesis alone.
func (c *Config) OfflineMode() bool {
	if c.OpenAI.APIKey == "" {
		return true
	}
	for _, sentinel := range constants.UpstreamConfig.SentinelKeys {
		if c.OpenAI.APIKey == sentinel {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
