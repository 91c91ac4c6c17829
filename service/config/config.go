package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Bitcoin node configuration
	BitcoinRPCHost    string
	BitcoinRPCUser    string
	BitcoinRPCPass    string
	BitcoinNetwork    string
	BitcoinDisableTLS bool

	// Confidence model configuration
	AdversaryHashRatio float64
	DefaultConfidence  float64

	// Shutdown configuration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Bitcoin node configuration
	cfg.BitcoinRPCHost = getEnvOrDefault("BTC_RPC_HOST", "localhost:8332")

	cfg.BitcoinRPCUser = os.Getenv("BTC_RPC_USER")
	if cfg.BitcoinRPCUser == "" {
		errs = append(errs, fmt.Errorf("BTC_RPC_USER is required"))
	}

	cfg.BitcoinRPCPass = os.Getenv("BTC_RPC_PASS")
	if cfg.BitcoinRPCPass == "" {
		errs = append(errs, fmt.Errorf("BTC_RPC_PASS is required"))
	}

	cfg.BitcoinNetwork = getEnvOrDefault("BTC_NETWORK", "mainnet")
	if _, err := ParseNetwork(cfg.BitcoinNetwork); err != nil {
		errs = append(errs, err)
	}

	disableTLS, err := parseBool("BTC_RPC_DISABLE_TLS", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.BitcoinDisableTLS = disableTLS
	}

	// Confidence model configuration
	ratio, err := parseFloat("ADVERSARY_HASH_RATIO", 0.1)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.AdversaryHashRatio = ratio
	}

	confidence, err := parseFloat("DEFAULT_CONFIDENCE", 0.99)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultConfidence = confidence
	}

	shutdown, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ShutdownTimeout = shutdown
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.BitcoinRPCUser == "" {
		errs = append(errs, fmt.Errorf("BitcoinRPCUser is required"))
	}

	if c.BitcoinRPCPass == "" {
		errs = append(errs, fmt.Errorf("BitcoinRPCPass is required"))
	}

	if _, err := ParseNetwork(c.BitcoinNetwork); err != nil {
		errs = append(errs, err)
	}

	if c.AdversaryHashRatio <= 0 || c.AdversaryHashRatio >= 0.5 {
		errs = append(errs, fmt.Errorf("AdversaryHashRatio must be in (0, 0.5), got %v", c.AdversaryHashRatio))
	}

	if c.DefaultConfidence < 0 || c.DefaultConfidence >= 1 {
		errs = append(errs, fmt.Errorf("DefaultConfidence must be in [0, 1), got %v", c.DefaultConfidence))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// ChainParams returns the address-encoding parameters for the configured
// network. Call Validate first; an unknown network falls back to mainnet.
func (c *Config) ChainParams() *chaincfg.Params {
	params, err := ParseNetwork(c.BitcoinNetwork)
	if err != nil {
		return &chaincfg.MainNetParams
	}
	return params
}

// ParseNetwork maps a network name to its chain parameters.
func ParseNetwork(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("BTC_NETWORK: unknown network %q", name)
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
