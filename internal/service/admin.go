package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/intake-pipeline/internal/core"
	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

// AdminServiceOptions groups dependencies for AdminService.
type AdminServiceOptions struct {
	Subscriptions core.SubscriptionRepository // Required
	Assessments   core.AssessmentRepository   // Required
	Jobs          *JobService                 // Required
	Status        *StatusService              // Optional: cache invalidation on retry
	Logger        *slog.Logger                // Optional
}

// AdminService backs the operator API.
type AdminService struct {
	subscriptions core.SubscriptionRepository
	assessments   core.AssessmentRepository
	jobs          *JobService
	status        *StatusService
	logger        *slog.Logger
}

// NewAdminService constructs an AdminService.
func NewAdminService(opts AdminServiceOptions) (*AdminService, error) {
	switch {
	case opts.Subscriptions == nil:
		return nil, errors.New("SubscriptionRepository is required")
	case opts.Assessments == nil:
		return nil, errors.New("AssessmentRepository is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{
		subscriptions: opts.Subscriptions,
		assessments:   opts.Assessments,
		jobs:          opts.Jobs,
		status:        opts.Status,
		logger:        logger.With("component", "admin_service"),
	}, nil
}

// NewsletterStats returns subscription counts by outcome.
func (s *AdminService) NewsletterStats(ctx context.Context) (*model.SubmissionStats, error) {
	return s.subscriptions.Stats(ctx)
}

// AssessmentStats returns submission counts by outcome.
func (s *AdminService) AssessmentStats(ctx context.Context) (*model.SubmissionStats, error) {
	return s.assessments.Stats(ctx)
}

// RecentSubscriptions lists the newest subscriptions, optionally filtered by status.
func (s *AdminService) RecentSubscriptions(
	ctx context.Context,
	opts model.ListRecentOptions,
) ([]*model.Subscription, error) {
	opts.Status = strings.ToUpper(strings.TrimSpace(opts.Status))
	return s.subscriptions.ListRecent(ctx, opts)
}

// RecentAssessments lists the newest submissions, optionally filtered by status.
func (s *AdminService) RecentAssessments(
	ctx context.Context,
	opts model.ListRecentOptions,
) ([]*model.AssessmentSubmission, error) {
	opts.Status = strings.ToUpper(strings.TrimSpace(opts.Status))
	return s.assessments.ListRecent(ctx, opts)
}

// GetSubscription returns the full subscription record including sync error detail.
func (s *AdminService) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	return s.subscriptions.GetByID(ctx, id)
}

// GetAssessment returns the full submission record including processing error detail.
func (s *AdminService) GetAssessment(ctx context.Context, id string) (*model.AssessmentSubmission, error) {
	return s.assessments.GetByID(ctx, id)
}

// JobStats returns queue counts, for one kind or all kinds.
func (s *AdminService) JobStats(ctx context.Context, kind model.JobKind) (*model.JobStats, error) {
	return s.jobs.Stats(ctx, kind)
}

// DeadJobs lists dead-lettered jobs.
func (s *AdminService) DeadJobs(ctx context.Context, opts model.ListDeadJobsOptions) ([]*model.Job, error) {
	return s.jobs.ListDead(ctx, opts)
}

// RetryJob requeues a dead job. The owning record is first moved back to its
// in-progress state so polling reflects the retry.
func (s *AdminService) RetryJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusDead {
		return nil, apperrors.Conflict("only dead jobs can be retried")
	}

	var kind model.SubmissionKind
	switch job.Kind {
	case model.JobKindNewsletterSync:
		kind = model.SubmissionKindNewsletter
		if _, err := s.subscriptions.ResetPending(ctx, job.SubjectID); err != nil {
			return nil, fmt.Errorf("reset subscription %s: %w", job.SubjectID, err)
		}
	case model.JobKindAssessmentScore:
		kind = model.SubmissionKindAssessment
		if _, err := s.assessments.ResetForRetry(ctx, job.SubjectID); err != nil {
			return nil, fmt.Errorf("reset submission %s: %w", job.SubjectID, err)
		}
	default:
		return nil, apperrors.Validationf("unknown job kind %q", job.Kind)
	}

	ok, err := s.jobs.Requeue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Conflict("job is no longer dead")
	}
	if s.status != nil {
		s.status.Invalidate(ctx, kind, job.SubjectID)
	}

	s.logger.InfoContext(ctx, "dead job retried by operator", "job_id", id, "kind", job.Kind, "subject_id", job.SubjectID)
	job.Status = model.JobStatusPending
	job.Attempt = 0
	job.LastError = nil
	return job, nil
}
