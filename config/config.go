// Package config provides configuration management for agent-relay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"agent-relay/rest"
)

// Config holds the application configuration
type Config struct {
	// Messaging platform bot credentials
	BotID             string // LW_API_BOT_ID
	BotSecret         string // LW_API_BOT_SECRET, keys the webhook signature
	ClientID          string // CLIENT_ID of the platform app
	ClientSecret      string // CLIENT_SECRET of the platform app
	ServiceAccount    string // LW_API_SERVICE_ACCOUNT, JWT subject
	PrivateKeyPath    string // LW_API_PRIVATEKEY_PATH, PEM file for assertion signing
	Scope             string // OAuth scope for the platform token
	SignatureMode     string // strict, warn or skip
	APIID             string // LW_API_ID

	// Agent backend credentials
	AgentBaseURL      string // SF_BASE_URL, org domain for the token exchange
	AgentClientID     string // SF_CLIENT_ID
	AgentClientSecret string // SF_CLIENT_SECRET
	AgentAPIVersion   string // SF_API_VERSION
	AgentID           string // SF_AGENT_ID

	// Generative assistant
	AnthropicAPIKey string
	AnthropicModel  string

	// Cache store
	RedisHost string
	RedisPort string
	RedisDB   int

	// Service
	Port               string
	LogLevel           string
	RelayTimeout       time.Duration
	SessionTTL         time.Duration
	TerminationPhrases []string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		APIID:          getEnv("LW_API_ID", ""),
		BotID:          getEnv("LW_API_BOT_ID", ""),
		BotSecret:      getEnv("LW_API_BOT_SECRET", ""),
		ClientID:       getEnv("CLIENT_ID", ""),
		ClientSecret:   getEnv("CLIENT_SECRET", ""),
		ServiceAccount: getEnv("LW_API_SERVICE_ACCOUNT", ""),
		PrivateKeyPath: getEnv("LW_API_PRIVATEKEY_PATH", ""),
		Scope:          getEnv("SCOPE", "bot"),
		SignatureMode:  getEnv("SIGNATURE_VERIFICATION_MODE", rest.SignatureModeStrict),

		AgentBaseURL:      getEnv("SF_BASE_URL", ""),
		AgentClientID:     getEnv("SF_CLIENT_ID", ""),
		AgentClientSecret: getEnv("SF_CLIENT_SECRET", ""),
		AgentAPIVersion:   getEnv("SF_API_VERSION", "v1"),
		AgentID:           getEnv("SF_AGENT_ID", ""),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", ""),

		RedisHost: getEnv("REDIS_HOST", "localhost"),
		RedisPort: getEnv("REDIS_PORT", "6379"),

		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		RelayTimeout: 60 * time.Second,
		SessionTTL:   time.Hour,
	}

	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB format: %w", err)
		}
		config.RedisDB = db
	}

	if timeoutStr := os.Getenv("RELAY_TIMEOUT"); timeoutStr != "" {
		duration, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_TIMEOUT format: %w", err)
		}
		config.RelayTimeout = duration
	}

	if ttlStr := os.Getenv("SESSION_TTL"); ttlStr != "" {
		duration, err := time.ParseDuration(ttlStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TTL format: %w", err)
		}
		config.SessionTTL = duration
	}

	if phrases := getEnv("TERMINATION_PHRASES", ""); phrases != "" {
		for _, p := range strings.Split(phrases, ",") {
			if p = strings.TrimSpace(p); p != "" {
				config.TerminationPhrases = append(config.TerminationPhrases, p)
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	required := map[string]string{
		"LW_API_BOT_ID":          c.BotID,
		"LW_API_BOT_SECRET":      c.BotSecret,
		"CLIENT_ID":              c.ClientID,
		"CLIENT_SECRET":          c.ClientSecret,
		"LW_API_SERVICE_ACCOUNT": c.ServiceAccount,
		"LW_API_PRIVATEKEY_PATH": c.PrivateKeyPath,
		"SF_BASE_URL":            c.AgentBaseURL,
		"SF_CLIENT_ID":           c.AgentClientID,
		"SF_CLIENT_SECRET":       c.AgentClientSecret,
		"SF_AGENT_ID":            c.AgentID,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
	}

	switch c.SignatureMode {
	case rest.SignatureModeStrict, rest.SignatureModeWarn, rest.SignatureModeSkip:
	default:
		return fmt.Errorf("invalid SIGNATURE_VERIFICATION_MODE: %q", c.SignatureMode)
	}

	if c.RelayTimeout <= 0 {
		return fmt.Errorf("RELAY_TIMEOUT must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	return nil
}

// RedisAddr returns the host:port address of the cache store.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// getEnv retrieves an environment variable or returns a fallback value
func getEnv(key, fallback string) string {
	// Check for _FILE suffix
	if fileValue := os.Getenv(key + "_FILE"); fileValue != "" {
		content, err := os.ReadFile(fileValue)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
