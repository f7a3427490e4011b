// Package config loads service configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all service configuration
type Config struct {
	Server  ServerConfig
	Chain   ChainConfig
	Signer  SignerConfig
	Tracker TrackerConfig
	Notify  NotifyConfig
	Redis   RedisConfig
	Cache   CacheConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

// ChainConfig holds node and contract configuration
type ChainConfig struct {
	RPCURL          string
	WSURL           string // empty: events are subscribed over RPCURL
	ContractAddress string
	ChainID         uint64 // expected deployment chain, 0 disables the check
}

// SignerConfig holds the server-side signing key. Empty means no signing provider.
type SignerConfig struct {
	PrivateKey string
}

// TrackerConfig holds transaction wait settings
type TrackerConfig struct {
	Horizon      time.Duration
	PollInterval time.Duration
}

// NotifyConfig holds notification settings
type NotifyConfig struct {
	DismissAfter time.Duration
}

// RedisConfig holds Redis configuration. Empty Addr selects the in-memory cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig holds listing cache configuration
type CacheConfig struct {
	ListingTTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Chain: ChainConfig{
			RPCURL:          getEnv("RPC_URL", ""),
			WSURL:           getEnv("RPC_WS_URL", ""),
			ContractAddress: getEnv("CONTRACT_ADDRESS", ""),
			ChainID:         getEnvAsUint64("CHAIN_ID", 11155111),
		},
		Signer: SignerConfig{
			PrivateKey: getEnv("SIGNER_PRIVATE_KEY", ""),
		},
		Tracker: TrackerConfig{
			Horizon:      getEnvAsDuration("TX_WAIT_HORIZON", 3*time.Minute),
			PollInterval: getEnvAsDuration("TX_POLL_INTERVAL", 2*time.Second),
		},
		Notify: NotifyConfig{
			DismissAfter: getEnvAsDuration("NOTIFY_DISMISS_AFTER", 3*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			ListingTTL: getEnvAsDuration("LISTING_CACHE_TTL", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	return config, nil
}

// Validate reports every missing or malformed required setting
func (c *Config) Validate() error {
	var errs []error
	if c.Chain.RPCURL == "" {
		errs = append(errs, errors.New("RPC_URL is required"))
	}
	if c.Chain.ContractAddress == "" {
		errs = append(errs, errors.New("CONTRACT_ADDRESS is required"))
	} else if !common.IsHexAddress(c.Chain.ContractAddress) {
		errs = append(errs, fmt.Errorf("CONTRACT_ADDRESS %q is not a hex address", c.Chain.ContractAddress))
	}
	if c.Tracker.Horizon <= c.Tracker.PollInterval {
		errs = append(errs, fmt.Errorf("TX_WAIT_HORIZON (%s) must exceed TX_POLL_INTERVAL (%s)", c.Tracker.Horizon, c.Tracker.PollInterval))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be text or json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
