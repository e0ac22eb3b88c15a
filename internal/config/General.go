package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Network selects the address book, e.g. "local", "testnet", "mainnet".
	Network string

	// DeploymentDir holds the <network>_addresses.json address books.
	DeploymentDir string

	// FarmsFile is the YAML file describing adapters and farms to bring up.
	FarmsFile string

	// HarvestInterval is how often the harvester pulls revenue for every farm.
	HarvestInterval time.Duration

	// WebPort is the port the read-only API listens on.
	WebPort string

	// LogLevel and LogFile configure the global logger.
	LogLevel string
	LogFile  string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// FARMD_NETWORK and FARMD_FARMS_FILE are required, everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Network, err = getEnv("FARMD_NETWORK")
	if err != nil {
		return err
	}

	FarmsFile, err = getEnv("FARMD_FARMS_FILE")
	if err != nil {
		return err
	}

	DeploymentDir = getEnvOrDefault("FARMD_DEPLOYMENT_DIR", "deployment")

	HarvestInterval, err = getEnvAsDuration("FARMD_HARVEST_INTERVAL", 10*time.Minute)
	if err != nil {
		return err
	}

	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	// Expand the tilde (~) in paths to the user's home directory.
	if DeploymentDir, err = expandHome(DeploymentDir); err != nil {
		return err
	}
	if FarmsFile, err = expandHome(FarmsFile); err != nil {
		return err
	}

	log.Debug().
		Str("Network", Network).
		Str("FarmsFile", FarmsFile).
		Dur("HarvestInterval", HarvestInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration, falling back when unset.
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	if value <= 0 {
		return 0, errors.New("environment variable " + key + " must be positive, got: " + valueStr)
	}
	return value, nil
}

// DBPort returns DB_PORT, or 5432 when unset.
func DBPort() (int, error) {
	if _, exists := os.LookupEnv("DB_PORT"); !exists {
		return 5432, nil
	}
	port, err := getEnvAsUint64("DB_PORT")
	if err != nil {
		return 0, err
	}
	return int(port), nil
}
