package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"eegprep/internal"
	"eegprep/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Ledger   LedgerConfig
	Server   ServerConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
}

// LedgerConfig selects the run ledger backend. An empty DSN keeps runs in memory.
type LedgerConfig struct {
	DSN string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// PipelineConfig holds processing settings shared by the commands
type PipelineConfig struct {
	FilterWorkers int
	ReportDir     string
	ParamsFile    string
}

// LoggingConfig holds the log verbosity
type LoggingConfig struct {
	Level internal.LogLevel
}

// Load reads .env (if present) and the environment, then validates.
func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	config := &Config{
		Ledger: LedgerConfig{
			DSN: getEnvOrDefault("LEDGER_DSN", ""),
		},
		Server: ServerConfig{
			Port:    getEnvOrDefault("API_PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "release"),
		},
		Pipeline: PipelineConfig{
			FilterWorkers: getEnvIntOrDefault("FILTER_WORKERS", 4),
			ReportDir:     getEnvOrDefault("REPORT_DIR", "reports"),
			ParamsFile:    getEnvOrDefault("PARAMS_FILE", ""),
		},
	}

	levelName := getEnvOrDefault("LOG_LEVEL", "INFO")
	level, ok := internal.ParseLogLevel(levelName)
	if !ok {
		return nil, errors.ConfigInvalid(fmt.Sprintf("LOG_LEVEL %q is not one of ERROR, WARN, INFO, DEBUG, TRACE", levelName))
	}
	config.Logging.Level = level

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Pipeline.FilterWorkers < 1 {
		return errors.ConfigInvalid("FILTER_WORKERS must be at least 1")
	}
	if _, err := strconv.Atoi(strings.TrimPrefix(config.Server.Port, ":")); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("API_PORT %q is not a port number", config.Server.Port))
	}
	switch config.Server.GinMode {
	case "debug", "release", "test":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("GIN_MODE %q is not debug, release or test", config.Server.GinMode))
	}
	return nil
}

// Addr is the listen address for the API server.
func (s ServerConfig) Addr() string {
	return ":" + strings.TrimPrefix(s.Port, ":")
}

// LoadYAML decodes a YAML file into dst. Unknown keys are rejected.
func LoadYAML(path string, dst interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("parse %s: %w", path, err))
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

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
