package config

import (
	"strings"
	"time"
)

// CRMConfig configures the marketing CRM client.
type CRMConfig struct {
	// BaseURL of the CRM contacts API. Empty selects the logging client.
	BaseURL  string        `env:"BASE_URL"`
	APIToken string        `env:"API_TOKEN"`
	Timeout  time.Duration `env:"TIMEOUT"     envDefault:"10s"`
	// MaxRetries is the number of in-call retries for retryable HTTP statuses.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"2"`
}

// Sanitize applies guardrails to CRM configuration values.
func (c *CRMConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.APIToken = strings.TrimSpace(c.APIToken)
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries > 5 {
		c.MaxRetries = 5
	}
}

// Enabled reports whether a real CRM endpoint is configured.
func (c *CRMConfig) Enabled() bool { return c.BaseURL != "" }

// AWSConfig holds shared AWS SDK settings.
type AWSConfig struct {
	Region string `env:"REGION" envDefault:"us-east-1"`
	// Endpoint overrides the service endpoint (LocalStack, MinIO).
	Endpoint        string `env:"ENDPOINT_URL"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
}

// StaticCredentials reports whether explicit keys were supplied.
func (a *AWSConfig) StaticCredentials() bool {
	return a.AccessKeyID != "" && a.SecretAccessKey != ""
}

// EmailConfig configures SES delivery.
type EmailConfig struct {
	// Enabled sends through SES. When false, emails are logged.
	Enabled          bool          `env:"ENABLED"           envDefault:"false"`
	From             string        `env:"FROM"              envDefault:"no-reply@example.com"`
	ConfigurationSet string        `env:"CONFIGURATION_SET"`
	Timeout          time.Duration `env:"TIMEOUT"           envDefault:"10s"`
	// TemplateCacheSize bounds the parsed-template cache.
	TemplateCacheSize int `env:"TEMPLATE_CACHE_SIZE" envDefault:"32"`
}

// Sanitize applies guardrails to email configuration values.
func (e *EmailConfig) Sanitize() {
	e.From = strings.TrimSpace(e.From)
	if e.From == "" {
		e.Enabled = false
	}
	if e.Timeout <= 0 {
		e.Timeout = 10 * time.Second
	}
	if e.TemplateCacheSize < 1 {
		e.TemplateCacheSize = 32
	}
}

// StorageConfig configures the S3 report store.
type StorageConfig struct {
	Bucket string `env:"BUCKET"`
	Prefix string `env:"PREFIX" envDefault:"assessments/"`
	// PublicBaseURL builds plain URLs when set. Otherwise URLs are presigned.
	PublicBaseURL string        `env:"PUBLIC_BASE_URL"`
	PresignTTL    time.Duration `env:"PRESIGN_TTL"     envDefault:"168h"`
	UsePathStyle  bool          `env:"USE_PATH_STYLE"  envDefault:"false"`
	Timeout       time.Duration `env:"TIMEOUT"         envDefault:"15s"`
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	s.Bucket = strings.TrimSpace(s.Bucket)
	s.Prefix = strings.TrimLeft(strings.TrimSpace(s.Prefix), "/")
	if s.Prefix != "" && !strings.HasSuffix(s.Prefix, "/") {
		s.Prefix += "/"
	}
	s.PublicBaseURL = strings.TrimRight(strings.TrimSpace(s.PublicBaseURL), "/")
	// SigV4 presigned URLs are valid for at most seven days.
	if s.PresignTTL <= 0 || s.PresignTTL > 7*24*time.Hour {
		s.PresignTTL = 7 * 24 * time.Hour
	}
	if s.Timeout <= 0 {
		s.Timeout = 15 * time.Second
	}
}

// Enabled reports whether S3 storage is configured.
func (s *StorageConfig) Enabled() bool { return s.Bucket != "" }

// ReportConfig configures report generation.
type ReportConfig struct {
	// Timeout bounds rendering plus upload of one report.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
	// LocalDir stores reports on disk when S3 is not configured.
	LocalDir string `env:"LOCAL_DIR" envDefault:"./reports"`
	// LocalBaseURL is the URL prefix returned for locally stored reports.
	LocalBaseURL string `env:"LOCAL_BASE_URL" envDefault:"file://./reports"`
}

// Sanitize applies guardrails to report configuration values.
func (r *ReportConfig) Sanitize() {
	if r.Timeout <= 0 {
		r.Timeout = 30 * time.Second
	}
	r.LocalDir = strings.TrimSpace(r.LocalDir)
	if r.LocalDir == "" {
		r.LocalDir = "./reports"
	}
	r.LocalBaseURL = strings.TrimRight(strings.TrimSpace(r.LocalBaseURL), "/")
}
