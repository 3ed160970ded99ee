package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/intake-pipeline/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the public and admin HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeNewsletterSync runs the newsletter CRM sync worker.
	ServiceModeNewsletterSync ServiceMode = "newsletter-sync"
	// ServiceModeAssessmentScoring runs the assessment scoring worker.
	ServiceModeAssessmentScoring ServiceMode = "assessment-scoring"
	// ServiceModeReaper runs queue housekeeping.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeNewsletterSync,
		ServiceModeAssessmentScoring,
		ServiceModeReaper,
	}
}

func validServiceNames() string {
	modes := ValidServiceModes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.ToLower(strings.TrimSpace(part))
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeNewsletterSync, ServiceModeAssessmentScoring, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: %s)", serviceName, validServiceNames())
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// RunnerConfig sizes one worker pool.
type RunnerConfig struct {
	// Concurrency is the number of jobs processed in parallel.
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`
	// JobLease is how long a reservation is held before it may be redelivered.
	// Heartbeats extend it while the handler runs.
	JobLease time.Duration `env:"JOB_LEASE" envDefault:"60s"`
	// HandlerTimeout bounds a single job attempt.
	HandlerTimeout time.Duration `env:"HANDLER_TIMEOUT" envDefault:"2m"`
	// DrainTimeout is how long in-flight jobs may run after shutdown is requested.
	DrainTimeout time.Duration `env:"DRAIN_TIMEOUT" envDefault:"20s"`
}

// Sanitize applies guardrails to runner configuration values.
func (r *RunnerConfig) Sanitize() {
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.Concurrency > 64 {
		r.Concurrency = 64
	}
	if r.JobLease < time.Second {
		r.JobLease = 60 * time.Second
	}
	if r.HandlerTimeout <= 0 {
		r.HandlerTimeout = 2 * time.Minute
	}
	if r.DrainTimeout < 0 {
		r.DrainTimeout = 0
	}
}

// QueueConfig contains retry and wake-up settings of the job queue.
type QueueConfig struct {
	NewsletterMaxAttempts int `env:"NEWSLETTER_MAX_ATTEMPTS" envDefault:"5"`
	AssessmentMaxAttempts int `env:"ASSESSMENT_MAX_ATTEMPTS" envDefault:"3"`

	BackoffBase time.Duration `env:"BACKOFF_BASE" envDefault:"5s"`
	BackoffCap  time.Duration `env:"BACKOFF_CAP"  envDefault:"10m"`
	// BackoffJitter draws each delay uniformly from [0, computed]. Off by default so retries are predictable.
	BackoffJitter bool `env:"BACKOFF_JITTER" envDefault:"false"`

	// NotifyWaitWindow bounds one LISTEN wait so delayed retries are polled.
	NotifyWaitWindow time.Duration `env:"NOTIFY_WAIT_WINDOW" envDefault:"5s"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	if q.NewsletterMaxAttempts < 1 {
		q.NewsletterMaxAttempts = 1
	}
	if q.AssessmentMaxAttempts < 1 {
		q.AssessmentMaxAttempts = 1
	}
	if q.BackoffBase <= 0 {
		q.BackoffBase = 5 * time.Second
	}
	if q.BackoffCap < q.BackoffBase {
		q.BackoffCap = q.BackoffBase
	}
	if q.NotifyWaitWindow <= 0 {
		q.NotifyWaitWindow = 5 * time.Second
	}
}

// MaxAttempts returns the attempt budget for kind.
func (q *QueueConfig) MaxAttempts(kind model.JobKind) int {
	switch kind {
	case model.JobKindNewsletterSync:
		return q.NewsletterMaxAttempts
	case model.JobKindAssessmentScore:
		return q.AssessmentMaxAttempts
	default:
		return 0
	}
}

// ReaperConfig contains reaper service configuration for queue housekeeping.
type ReaperConfig struct {
	// Interval is how often the reaper runs.
	Interval time.Duration `env:"INTERVAL" envDefault:"1m"`

	// CompletedMaxAge is how long completed jobs are kept before deletion.
	CompletedMaxAge time.Duration `env:"COMPLETED_MAX_AGE" envDefault:"168h"`

	// DeadMaxAge is how long dead jobs are kept for inspection and manual retry.
	DeadMaxAge time.Duration `env:"DEAD_MAX_AGE" envDefault:"720h"`

	// BatchSize is the maximum number of rows touched per statement.
	BatchSize int `env:"BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < time.Second {
		r.Interval = time.Minute
	}
	if r.CompletedMaxAge <= 0 {
		r.CompletedMaxAge = 7 * 24 * time.Hour
	}
	if r.DeadMaxAge <= 0 {
		r.DeadMaxAge = 30 * 24 * time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1000
	}
	if r.BatchSize > 50_000 {
		r.BatchSize = 50_000
	}
}
