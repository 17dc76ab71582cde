package config

import (
	"errors"
	"strconv"

	"os"

	"github.com/rs/zerolog/log"
)

// Config holds all runtime configuration loaded from environment variables.
// It is built once at startup by LoadConfig and passed by value; nothing
// mutates it afterwards.
type Config struct {
	// RegistryPath is the path to the vault registry YAML file.
	RegistryPath string

	// MorphoEndpoint is the GraphQL endpoint of the vault data provider.
	MorphoEndpoint string
	// MorphoMaxRequestsPerMinute caps outbound data-provider requests.
	MorphoMaxRequestsPerMinute int

	// AgentEndpoint is the HTTP endpoint of the transaction execution agent.
	AgentEndpoint string

	// DailySchedule is the cron expression for the full daily rebalancing run (UTC).
	DailySchedule string
	// DriftCheckSchedule is the cron expression for the non-executing drift check (UTC).
	DriftCheckSchedule string
	// SyncSchedule is the cron expression for the daily vault data sync (UTC).
	SyncSchedule string

	// MaxRebalanceFrequencyHours is the per-user cooldown between rebalance jobs.
	MaxRebalanceFrequencyHours int

	// WebPort is the port for the operator HTTP API.
	WebPort string
	// LogLevel controls zerolog verbosity.
	LogLevel string

	// Database connection parameters.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
}

// LoadConfig loads configuration from environment variables. Endpoint and
// database settings are required; scheduling knobs have sane defaults.
func LoadConfig() (Config, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	var cfg Config
	var err error

	cfg.RegistryPath, err = getEnv("VAULT_REGISTRY_PATH")
	if err != nil {
		return Config{}, err
	}

	cfg.MorphoEndpoint, err = getEnv("MORPHO_GRAPHQL_ENDPOINT")
	if err != nil {
		return Config{}, err
	}

	cfg.AgentEndpoint, err = getEnv("TX_AGENT_ENDPOINT")
	if err != nil {
		return Config{}, err
	}

	cfg.DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return Config{}, err
	}
	cfg.DBUser, err = getEnv("DB_USER")
	if err != nil {
		return Config{}, err
	}
	cfg.DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return Config{}, err
	}
	cfg.DBName, err = getEnv("DB_NAME")
	if err != nil {
		return Config{}, err
	}

	cfg.DBPort = getEnvAsIntDefault("DB_PORT", 5432)
	cfg.DBSSLMode = getEnvDefault("DB_SSLMODE", "disable")

	cfg.MorphoMaxRequestsPerMinute = getEnvAsIntDefault("MORPHO_MAX_RPM", 30)
	cfg.DailySchedule = getEnvDefault("DAILY_REBALANCE_SCHEDULE", "0 2 * * *")
	cfg.DriftCheckSchedule = getEnvDefault("DRIFT_CHECK_SCHEDULE", "0 */4 * * *")
	cfg.SyncSchedule = getEnvDefault("VAULT_SYNC_SCHEDULE", "30 1 * * *")
	cfg.MaxRebalanceFrequencyHours = getEnvAsIntDefault("MAX_REBALANCE_FREQUENCY_HOURS", 24)
	cfg.WebPort = getEnvDefault("WEB_PORT", "8080")
	cfg.LogLevel = getEnvDefault("LOG_LEVEL", "info")

	log.Debug().
		Str("registryPath", cfg.RegistryPath).
		Str("morphoEndpoint", cfg.MorphoEndpoint).
		Str("dailySchedule", cfg.DailySchedule).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvDefault retrieves a string environment variable with a fallback.
func getEnvDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsIntDefault retrieves an int environment variable with a fallback.
func getEnvAsIntDefault(key string, fallback int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid integer environment variable, using default")
		return fallback
	}
	return value
}
