package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/intake-pipeline/internal/core"
	domainjob "github.com/target/intake-pipeline/internal/domain/job"
	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

// maxErrorLength caps error text stored on jobs and records.
const maxErrorLength = 2000

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	DefaultLease    time.Duration             // Required: default lease duration for jobs
	Backoff         *domainjob.BackoffPolicy  // Required: retry delay policy
	Logger          *slog.Logger              // Optional: structured logger
	LeasePolicy     *domainjob.LeasePolicy    // Optional: override default lease policy
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
}

// JobService wraps the queue with lease resolution, retry policy and wake-up fan-out.
type JobService struct {
	repo        core.JobRepository
	leasePolicy *domainjob.LeasePolicy
	backoff     *domainjob.BackoffPolicy
	notifier    domainjob.Notifier
	logger      *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Backoff == nil {
		return nil, errors.New("BackoffPolicy is required")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized",
			"default_lease", leasePolicy.Default(),
			"backoff_base", opts.Backoff.Base,
			"backoff_cap", opts.Backoff.Cap,
		)
	}

	return &JobService{
		repo:        opts.Repo,
		leasePolicy: leasePolicy,
		backoff:     opts.Backoff,
		notifier:    notifier,
		logger:      logger,
	}, nil
}

// Enqueue adds a job outside any caller transaction.
func (s *JobService) Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Job, error) {
	job, err := s.repo.Enqueue(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	if s.logger != nil {
		s.logger.DebugContext(ctx, "job enqueued", "id", job.ID, "kind", job.Kind, "subject_id", job.SubjectID)
	}
	return job, nil
}

// ReserveNext reserves the next available job of the given kind for processing.
func (s *JobService) ReserveNext(ctx context.Context, kind model.JobKind, lease time.Duration) (*model.Job, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped lease duration",
			"requested_duration", decision.Requested,
			"kind", kind)
	}

	job, err := s.repo.ReserveNext(ctx, kind, decision.Seconds)
	if err != nil {
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(ctx, "job reserved",
			"id", job.ID,
			"kind", kind,
			"attempt", job.Attempt,
			"lease_seconds", decision.Seconds,
		)
	}
	return job, nil
}

// Subscribe creates a subscription for job notifications of the given kind.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *JobService) Subscribe(kind model.JobKind) (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe(kind)
}

// Heartbeat extends the lease on a running job.
func (s *JobService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	decision := s.leasePolicy.Resolve(extend)
	updated, err := s.repo.Heartbeat(ctx, id, decision.Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}
	if s.logger != nil && updated {
		s.logger.DebugContext(ctx, "job heartbeat updated", "id", id, "extend_seconds", decision.Seconds)
	}
	return updated, nil
}

// Ack marks a job as completed successfully.
func (s *JobService) Ack(ctx context.Context, id string) (bool, error) {
	acked, err := s.repo.Ack(ctx, id)
	if err != nil {
		return false, fmt.Errorf("ack job %s: %w", id, err)
	}
	if s.logger != nil && acked {
		s.logger.DebugContext(ctx, "job completed", "id", id)
	}
	return acked, nil
}

// FailOutcome reports what Fail did with a job.
type FailOutcome struct {
	// Applied is false when the job was no longer running (lease lost).
	Applied bool
	// Dead means the job will not be retried.
	Dead bool
	// Retryable is the classification of the handler error.
	Retryable  bool
	Attempt    int
	RetryDelay time.Duration
}

// Fail records a failed attempt. Retryable errors are nacked with backoff and
// dead-lettered once attempts run out; other errors are dead-lettered at once.
func (s *JobService) Fail(ctx context.Context, job *model.Job, cause error) (FailOutcome, error) {
	if job == nil {
		return FailOutcome{}, errors.New("job is required")
	}
	if cause == nil {
		return FailOutcome{}, errors.New("failure cause is required")
	}
	msg := TruncateError(cause.Error())

	if !apperrors.Retryable(cause) {
		ok, err := s.repo.DeadLetter(ctx, job.ID, msg)
		if err != nil {
			return FailOutcome{}, fmt.Errorf("dead-letter job %s: %w", job.ID, err)
		}
		if s.logger != nil && ok {
			s.logger.WarnContext(ctx, "job dead-lettered", "id", job.ID, "kind", job.Kind, "error", msg)
		}
		return FailOutcome{Applied: ok, Dead: true, Attempt: job.Attempt + 1}, nil
	}

	delay := s.backoff.Delay(job.Attempt + 1)
	out, err := s.repo.Nack(ctx, core.NackParams{ID: job.ID, Err: msg, RetryDelay: delay})
	if err != nil {
		return FailOutcome{}, fmt.Errorf("nack job %s: %w", job.ID, err)
	}
	res := FailOutcome{
		Applied:   out.Found,
		Dead:      out.Dead,
		Retryable: true,
		Attempt:   out.Attempt,
	}
	if !out.Dead {
		res.RetryDelay = delay
	}
	if s.logger != nil && out.Found {
		level := slog.LevelInfo
		if out.Dead {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "job attempt failed",
			"id", job.ID,
			"kind", job.Kind,
			"attempt", out.Attempt,
			"max_attempts", job.MaxAttempts,
			"dead", out.Dead,
			"retry_in", res.RetryDelay,
			"error", msg,
		)
	}
	return res, nil
}

// Release returns a running job to pending without charging an attempt.
func (s *JobService) Release(ctx context.Context, id string) (bool, error) {
	released, err := s.repo.Release(ctx, id)
	if err != nil {
		return false, fmt.Errorf("release job %s: %w", id, err)
	}
	return released, nil
}

// Stats returns job counts per state. An empty kind aggregates all kinds.
func (s *JobService) Stats(ctx context.Context, kind model.JobKind) (*model.JobStats, error) {
	if kind != "" && !kind.Valid() {
		return nil, apperrors.ValidationField("kind", "unknown job kind")
	}
	stats, err := s.repo.Stats(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("get job stats for kind %q: %w", kind, err)
	}
	return stats, nil
}

// ListDead returns dead-lettered jobs, newest first.
func (s *JobService) ListDead(ctx context.Context, opts model.ListDeadJobsOptions) ([]*model.Job, error) {
	if opts.Kind != "" && !opts.Kind.Valid() {
		return nil, apperrors.ValidationField("kind", "unknown job kind")
	}
	jobs, err := s.repo.ListDead(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list dead jobs: %w", err)
	}
	return jobs, nil
}

// GetByID returns a job by its ID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// Requeue moves a dead job back to pending with a fresh attempt budget.
func (s *JobService) Requeue(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.Requeue(ctx, id)
	if err != nil {
		return false, fmt.Errorf("requeue job %s: %w", id, err)
	}
	if s.logger != nil && ok {
		s.logger.InfoContext(ctx, "dead job requeued", "id", id)
	}
	return ok, nil
}

// StopAllListeners stops all active job notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *JobService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all job listeners")
	}
	if s.notifier != nil {
		s.notifier.StopAll()
	}
}

// TruncateError trims whitespace and caps stored error text.
func TruncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) <= maxErrorLength {
		return msg
	}
	return strings.ToValidUTF8(msg[:maxErrorLength], "")
}
