package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/intake-pipeline/config"
	"github.com/target/intake-pipeline/internal/core"
	"github.com/target/intake-pipeline/internal/domain/model"
	"github.com/target/intake-pipeline/internal/observability/metrics"
)

// Reaper task labels used in logs and metrics.
const (
	ReaperTaskRequeueLeases   = "requeue_expired_leases"
	ReaperTaskFailOrphans     = "fail_orphaned_submissions"
	ReaperTaskDeleteCompleted = "delete_completed"
	ReaperTaskDeleteDead      = "delete_dead"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required: reaper repository
	Config  config.ReaperConfig   // Required: reaper configuration
	Logger  *slog.Logger          // Optional: structured logger
	Metrics *metrics.Recorder     // Optional
}

// ReaperService keeps the queue healthy.
//
// Each pass:
//   - returns jobs with lapsed leases to pending,
//   - marks records FAILED when their last job is dead and nothing live remains,
//   - deletes completed jobs past retention,
//   - deletes dead jobs past retention.
type ReaperService struct {
	repo    core.ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}
	opts.Config.Sanitize()

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"dead_max_age", opts.Config.DeadMaxAge,
		)
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Spread instances that start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// waitWithJitter sleeps for up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

type cleanupStep struct {
	task string
	fn   func(context.Context) (int64, error)
}

// RunOnce performs one housekeeping pass. Steps run in order and a failing
// step does not stop the later ones.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	steps := []cleanupStep{
		{task: ReaperTaskRequeueLeases, fn: s.requeueExpiredLeases},
		{task: ReaperTaskFailOrphans, fn: s.failOrphanedSubmissions},
		{task: ReaperTaskDeleteCompleted, fn: s.deleteOld(model.JobStatusCompleted, s.config.CompletedMaxAge)},
		{task: ReaperTaskDeleteDead, fn: s.deleteOld(model.JobStatusDead, s.config.DeadMaxAge)},
	}

	var (
		errs        []error
		allCanceled = true
	)
	for _, step := range steps {
		count, err := step.fn(ctx)
		s.metrics.ReaperRows(step.task, count)
		if count > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "reaper task touched rows", "task", step.task, "count", count)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.task, err))
			allCanceled = allCanceled && isContextCancellation(err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	if allCanceled {
		return context.Canceled
	}
	return fmt.Errorf("cleanup failed: %w", joined)
}

// drain repeats a batched statement until it touches no rows.
func drain(ctx context.Context, fn func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		count, err := fn(ctx)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

func (s *ReaperService) requeueExpiredLeases(ctx context.Context) (int64, error) {
	return drain(ctx, func(ctx context.Context) (int64, error) {
		return s.repo.RequeueExpiredLeases(ctx, s.config.BatchSize)
	})
}

func (s *ReaperService) failOrphanedSubmissions(ctx context.Context) (int64, error) {
	return drain(ctx, func(ctx context.Context) (int64, error) {
		return s.repo.FailOrphanedSubmissions(ctx, s.config.BatchSize)
	})
}

func (s *ReaperService) deleteOld(status model.JobStatus, maxAge time.Duration) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		return drain(ctx, func(ctx context.Context) (int64, error) {
			return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				Status:    status,
				MaxAge:    maxAge,
				BatchSize: s.config.BatchSize,
			})
		})
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
