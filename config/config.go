// Package config defines the environment-driven configuration of the intake service.
package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Admin API authentication
//   - database.go: Database, Redis and status cache configuration
//   - http.go: HTTP server configuration
//   - services.go: Service modes, runners, queue and reaper configuration
//   - intake.go: Intake rules
//   - integrations.go: CRM, AWS, email, storage and report settings
//   - observability.go: Logging and metrics
type AppConfig struct {
	// IsDev controls development mode behavior. Set DEV=true or APP_ENV=development.
	IsDev bool `env:"DEV" envDefault:"false"`

	Admin AdminAuthConfig

	Postgres    DBConfig          `envPrefix:"DB_"`
	Redis       RedisConfig       `envPrefix:"REDIS_"`
	StatusCache StatusCacheConfig `envPrefix:"STATUS_CACHE_"`

	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled services.
	Services string `env:"SERVICES" envDefault:"http,newsletter-sync,assessment-scoring,reaper"`

	NewsletterSync    RunnerConfig `envPrefix:"NEWSLETTER_SYNC_"`
	AssessmentScoring RunnerConfig `envPrefix:"ASSESSMENT_SCORING_"`
	Queue             QueueConfig  `envPrefix:"QUEUE_"`
	Reaper            ReaperConfig `envPrefix:"REAPER_"`

	Intake IntakeConfig `envPrefix:"INTAKE_"`

	CRM     CRMConfig     `envPrefix:"CRM_"`
	AWS     AWSConfig     `envPrefix:"AWS_"`
	Email   EmailConfig   `envPrefix:"SES_"`
	Storage StorageConfig `envPrefix:"S3_"`
	Report  ReportConfig  `envPrefix:"REPORT_"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Postgres.Sanitize()
	c.StatusCache.Sanitize()
	c.NewsletterSync.Sanitize()
	c.AssessmentScoring.Sanitize()
	c.Queue.Sanitize()
	c.Reaper.Sanitize()
	c.Intake.Sanitize()
	c.CRM.Sanitize()
	c.Email.Sanitize()
	c.Storage.Sanitize()
	c.Report.Sanitize()
	c.Observability.Sanitize()
	c.Admin.Sanitize()

	c.detectDevMode()
}

// detectDevMode falls back to APP_ENV when DEV is unset.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsServiceEnabled reports whether mode is listed in SERVICES. An invalid list enables nothing.
func (c *AppConfig) IsServiceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
