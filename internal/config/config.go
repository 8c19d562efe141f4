package config

import (
	"os"
	"strconv"

	"urnlab/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Export     ExportConfig
	Experiment ExperimentConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port      string
	AdminPort string
	GinMode   string
}

// DatabaseConfig holds database connection settings. URL is optional: when
// empty the service keeps sessions in memory only.
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// ExportConfig holds settings for writing result files
type ExportConfig struct {
	DataDir string
}

// ExperimentConfig holds randomness settings. Seed zero means seed from the
// clock per session, non-zero makes runs reproducible.
type ExperimentConfig struct {
	Seed int64
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:      getEnvOrDefault("PORT", "8080"),
			AdminPort: getEnvOrDefault("ADMIN_PORT", "8081"),
			GinMode:   getEnvOrDefault("GIN_MODE", "debug"),
		},
		Database: DatabaseConfig{
			URL:     getEnvOrDefault("DATABASE_URL", ""),
			SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
		},
		Export: ExportConfig{
			DataDir: getEnvOrDefault("DATA_DIR", "experiment_data"),
		},
		Experiment: ExperimentConfig{
			Seed: getEnvInt64OrDefault("SEED", 0),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Server.Port == config.Server.AdminPort {
		return errors.ConfigInvalid("PORT and ADMIN_PORT must differ")
	}
	if config.Export.DataDir == "" {
		return errors.ConfigInvalid("data directory is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
