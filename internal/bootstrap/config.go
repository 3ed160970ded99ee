package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/target/intake-pipeline/config"
)

// logLevel is shared by the default logger so the configured LOG_LEVEL can be
// applied after the logger already exists.
var logLevel = new(slog.LevelVar)

// InitLogger initializes the structured logger at info level.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// ApplyLogLevel switches the logger created by InitLogger to the configured level.
func ApplyLogLevel(cfg config.ObservabilityConfig) {
	logLevel.Set(cfg.SlogLevel())
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig validates SERVICES and the settings the enabled services depend on.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	if len(services) == 0 {
		return errors.New("no services enabled")
	}

	if services[config.ServiceModeNewsletterSync] && !cfg.CRM.Enabled() && !cfg.IsDev {
		return errors.New("newsletter-sync requires CRM_BASE_URL outside development")
	}
	if services[config.ServiceModeAssessmentScoring] && !cfg.IsDev {
		if !cfg.Email.Enabled {
			return errors.New("assessment-scoring requires SES_ENABLED outside development")
		}
		if !cfg.Storage.Enabled() {
			return errors.New("assessment-scoring requires S3_BUCKET outside development")
		}
	}

	return nil
}

// GetEnabledServices returns the enabled service names in a stable order.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		// Return empty list on error - validation will catch this
		return []string{}
	}

	enabledServices := make([]string, 0, len(services))
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			enabledServices = append(enabledServices, string(mode))
		}
	}

	return enabledServices
}
