package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	TestnetBaseURL   = "https://api.testnet.extended.exchange/api/v1"
	MainnetBaseURL   = "https://api.extended.exchange/api/v1"
	TestnetStreamURL = "wss://api.testnet.extended.exchange/stream.extended.exchange/v1"
	MainnetStreamURL = "wss://api.extended.exchange/stream.extended.exchange/v1"

	// PlaceholderAPIKey is the value shipped in example env files; treated as unset.
	PlaceholderAPIKey = "your-extended-api-key-here"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Exchange ExchangeConfig
	Stark    StarkConfig
	Rewards  RewardsConfig
	Stream   StreamConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	Env             string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects Postgres when URL is set, sqlite at Path otherwise
type DatabaseConfig struct {
	URL  string
	Path string
}

type AuthConfig struct {
	JWTSecret       string
	TokenTTL        time.Duration
	AllowHeaderAuth bool
}

// ExchangeConfig holds Extended Exchange connection settings
type ExchangeConfig struct {
	APIKey            string
	APISecret         string
	Environment       string
	BaseURL           string
	StreamURL         string
	Timeout           time.Duration
	MaxAttempts       int
	RetryDeadline     time.Duration
	DefaultRetryAfter time.Duration
	MarketRefresh     string
}

type StarkConfig struct {
	PrivateKey    string
	PublicKey     string
	VaultID       string
	Domain        string
	EncryptionKey string
}

type RewardsConfig struct {
	File string
}

type StreamConfig struct {
	PollInterval time.Duration
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load reads configuration from the environment, after loading .env if present
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	env := getEnv("ENV", "development")
	exchangeEnv := strings.ToLower(getEnv("EXTENDED_ENVIRONMENT", "testnet"))

	baseURL, streamURL := TestnetBaseURL, TestnetStreamURL
	switch exchangeEnv {
	case "testnet":
	case "mainnet":
		baseURL, streamURL = MainnetBaseURL, MainnetStreamURL
	default:
		return nil, fmt.Errorf("invalid EXTENDED_ENVIRONMENT %q: must be testnet or mainnet", exchangeEnv)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", []string{"*"}),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			URL:  getEnv("DATABASE_URL", ""),
			Path: getEnv("DATABASE_PATH", "astrade.db"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", "astrade-secret-key"),
			TokenTTL:        getEnvDuration("JWT_TTL", 24*time.Hour),
			AllowHeaderAuth: getEnvBool("ALLOW_HEADER_AUTH", env != "production"),
		},
		Exchange: ExchangeConfig{
			APIKey:            getEnv("EXTENDED_API_KEY", ""),
			APISecret:         getEnv("EXTENDED_SECRET_KEY", ""),
			Environment:       exchangeEnv,
			BaseURL:           getEnv("EXTENDED_BASE_URL", baseURL),
			StreamURL:         getEnv("EXTENDED_STREAM_URL", streamURL),
			Timeout:           getEnvDuration("EXTENDED_TIMEOUT", 30*time.Second),
			MaxAttempts:       getEnvInt("EXTENDED_MAX_ATTEMPTS", 3),
			RetryDeadline:     getEnvDuration("EXTENDED_RETRY_DEADLINE", 2*time.Minute),
			DefaultRetryAfter: getEnvDuration("EXTENDED_DEFAULT_RETRY_AFTER", 60*time.Second),
			MarketRefresh:     getEnv("MARKET_REFRESH_SCHEDULE", "@every 5m"),
		},
		Stark: StarkConfig{
			PrivateKey:    getEnv("EXTENDED_STARK_PRIVATE_KEY", ""),
			PublicKey:     getEnv("EXTENDED_STARK_PUBLIC_KEY", ""),
			VaultID:       getEnv("EXTENDED_VAULT_ID", ""),
			Domain:        getEnv("EXTENDED_SIGNING_DOMAIN", "x10.exchange"),
			EncryptionKey: getEnv("STARK_ENCRYPTION_KEY", ""),
		},
		Rewards: RewardsConfig{
			File: getEnv("REWARDS_CONFIG_FILE", ""),
		},
		Stream: StreamConfig{
			PollInterval: getEnvDuration("STREAM_POLL_INTERVAL", time.Second),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
	}

	if getEnvBool("DEBUG", false) {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.IsProduction() && c.Auth.JWTSecret == "astrade-secret-key" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.Exchange.MaxAttempts < 1 {
		return fmt.Errorf("EXTENDED_MAX_ATTEMPTS must be at least 1, got %d", c.Exchange.MaxAttempts)
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("STREAM_POLL_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// MockMode reports whether the exchange client should serve synthetic data
func (e ExchangeConfig) MockMode() bool {
	return e.APIKey == "" || e.APIKey == PlaceholderAPIKey
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
