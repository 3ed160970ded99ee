package config

import (
	"log/slog"
	"strings"
)

// ObservabilityConfig controls logging and metrics.
type ObservabilityConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// MetricsEnabled exposes /metrics with the Prometheus collectors.
	MetricsEnabled bool `env:"OBSERVABILITY_METRICS_ENABLED" envDefault:"true"`
	// MetricsPath is where the Prometheus handler is mounted.
	MetricsPath string `env:"OBSERVABILITY_METRICS_PATH"    envDefault:"/metrics"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
	}
	c.MetricsPath = strings.TrimSpace(c.MetricsPath)
	if !strings.HasPrefix(c.MetricsPath, "/") {
		c.MetricsPath = "/metrics"
	}
}

// SlogLevel maps LogLevel onto slog.
func (c *ObservabilityConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
