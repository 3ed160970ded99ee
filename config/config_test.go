package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/intake-pipeline/internal/domain/model"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "single service - newsletter-sync",
			input:    "newsletter-sync",
			expected: map[ServiceMode]bool{ServiceModeNewsletterSync: true},
		},
		{
			name:  "workers only",
			input: "newsletter-sync,assessment-scoring",
			expected: map[ServiceMode]bool{
				ServiceModeNewsletterSync:    true,
				ServiceModeAssessmentScoring: true,
			},
		},
		{
			name:  "all services with spaces and mixed case",
			input: " HTTP , newsletter-sync , assessment-scoring, reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:              true,
				ServiceModeNewsletterSync:    true,
				ServiceModeAssessmentScoring: true,
				ServiceModeReaper:            true,
			},
		},
		{
			name:     "duplicate services",
			input:    "reaper,reaper",
			expected: map[ServiceMode]bool{ServiceModeReaper: true},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ", ,",
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "http,scheduler",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("ParseServices(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	cfg := &AppConfig{Services: "http,reaper"}

	assert.True(t, cfg.IsServiceEnabled(ServiceModeHTTP))
	assert.True(t, cfg.IsServiceEnabled(ServiceModeReaper))
	assert.False(t, cfg.IsServiceEnabled(ServiceModeNewsletterSync))
	assert.False(t, cfg.IsServiceEnabled(ServiceModeAssessmentScoring))

	invalid := &AppConfig{Services: "nope"}
	for _, mode := range ValidServiceModes() {
		assert.False(t, invalid.IsServiceEnabled(mode), "invalid SERVICES enables nothing (%s)", mode)
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	assert.Len(t, modes, 4)
	for _, m := range modes {
		_, err := ParseServices(string(m))
		assert.NoError(t, err, "mode %s should parse", m)
	}
}

func TestAppConfig_EnvDefaults(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("QUEUE_NEWSLETTER_MAX_ATTEMPTS", "7")
	t.Setenv("NEWSLETTER_SYNC_CONCURRENCY", "3")
	t.Setenv("INTAKE_RATE_LIMIT_WINDOW", "12h")
	t.Setenv("HTTP_CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("ADMIN_API_TOKEN", "  secret  ")
	t.Setenv("LOG_LEVEL", "DEBUG")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 7, cfg.Queue.MaxAttempts(model.JobKindNewsletterSync))
	assert.Equal(t, 3, cfg.Queue.MaxAttempts(model.JobKindAssessmentScore))
	assert.Equal(t, 3, cfg.NewsletterSync.Concurrency)
	assert.Equal(t, 4, cfg.AssessmentScoring.Concurrency)
	assert.Equal(t, 12*time.Hour, cfg.Intake.RateLimitWindow)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSAllowedOrigins)
	assert.Equal(t, "secret", cfg.Admin.APIToken)
	assert.True(t, cfg.Admin.Enabled())
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, 10*time.Minute, cfg.StatusCache.TTL)
	assert.False(t, cfg.CRM.Enabled())
	assert.False(t, cfg.Storage.Enabled())
}

func TestQueueConfig_Sanitize(t *testing.T) {
	q := QueueConfig{BackoffBase: 0, BackoffCap: time.Second, NewsletterMaxAttempts: 0}
	q.Sanitize()

	assert.Equal(t, 5*time.Second, q.BackoffBase)
	assert.Equal(t, 5*time.Second, q.BackoffCap, "cap is raised to base")
	assert.Equal(t, 1, q.NewsletterMaxAttempts)
	assert.Equal(t, 0, q.MaxAttempts("unknown"))
}

func TestRunnerConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name string
		in   RunnerConfig
		want RunnerConfig
	}{
		{
			name: "zero values",
			in:   RunnerConfig{},
			want: RunnerConfig{Concurrency: 1, JobLease: time.Minute, HandlerTimeout: 2 * time.Minute},
		},
		{
			name: "too many workers",
			in:   RunnerConfig{Concurrency: 500, JobLease: 5 * time.Second, HandlerTimeout: time.Second, DrainTimeout: -1},
			want: RunnerConfig{Concurrency: 64, JobLease: 5 * time.Second, HandlerTimeout: time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			got.Sanitize()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStorageConfig_Sanitize(t *testing.T) {
	s := StorageConfig{Bucket: " reports ", Prefix: "/a/b", PublicBaseURL: "https://cdn.example/", PresignTTL: 30 * 24 * time.Hour}
	s.Sanitize()

	assert.Equal(t, "reports", s.Bucket)
	assert.Equal(t, "a/b/", s.Prefix)
	assert.Equal(t, "https://cdn.example", s.PublicBaseURL)
	assert.Equal(t, 7*24*time.Hour, s.PresignTTL)
	assert.True(t, s.Enabled())
}

func TestEmailConfig_SanitizeDisablesWithoutFrom(t *testing.T) {
	e := EmailConfig{Enabled: true, From: "  "}
	e.Sanitize()
	assert.False(t, e.Enabled)
	assert.Equal(t, 32, e.TemplateCacheSize)
}

func TestStatusCacheConfig_Sanitize(t *testing.T) {
	c := StatusCacheConfig{Enabled: true, TTL: 0}
	c.Sanitize()
	assert.False(t, c.Enabled)
}

func TestObservabilityConfig_Sanitize(t *testing.T) {
	c := ObservabilityConfig{LogLevel: "verbose", MetricsPath: "metrics"}
	c.Sanitize()
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "/metrics", c.MetricsPath)
}

func TestAppConfig_DetectDevMode(t *testing.T) {
	t.Setenv("APP_ENV", "Development")
	cfg := AppConfig{Services: "http"}
	cfg.Sanitize()
	assert.True(t, cfg.IsDev)
}
