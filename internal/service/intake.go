package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/intake-pipeline/internal/core"
	"github.com/target/intake-pipeline/internal/data"
	"github.com/target/intake-pipeline/internal/domain/intake"
	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
	"github.com/target/intake-pipeline/internal/observability/metrics"
)

// Intake form labels used in metrics and logs.
const (
	FormNewsletter = "newsletter"
	FormAssessment = "assessment"
)

// IntakeServiceOptions groups dependencies for IntakeService.
type IntakeServiceOptions struct {
	Locker        core.EmailLocker            // Required: per-email serialization
	Subscriptions core.SubscriptionRepository // Required
	Assessments   core.AssessmentRepository   // Required
	Jobs          core.JobRepositoryTx        // Required: transactional enqueue

	// MaxAttempts returns the attempt budget per job kind. Zero uses the queue default.
	MaxAttempts func(model.JobKind) int

	RateLimitWindow     time.Duration     // Optional: defaults to 24h
	Emails              core.EmailSender  // Optional: confirmation emails are skipped when nil
	ConfirmationTimeout time.Duration     // Optional: defaults to 5s
	TimeProvider        data.TimeProvider // Optional: defaults to real time
	Metrics             *metrics.Recorder // Optional
	Logger              *slog.Logger      // Optional
}

// IntakeService validates form submissions and records them with their job in one transaction.
type IntakeService struct {
	locker        core.EmailLocker
	subscriptions core.SubscriptionRepository
	assessments   core.AssessmentRepository
	jobs          core.JobRepositoryTx
	maxAttempts   func(model.JobKind) int
	window        time.Duration
	emails        core.EmailSender
	emailTimeout  time.Duration
	timeProvider  data.TimeProvider
	metrics       *metrics.Recorder
	logger        *slog.Logger
}

// NewIntakeService constructs a new IntakeService.
func NewIntakeService(opts IntakeServiceOptions) (*IntakeService, error) {
	switch {
	case opts.Locker == nil:
		return nil, errors.New("EmailLocker is required")
	case opts.Subscriptions == nil:
		return nil, errors.New("SubscriptionRepository is required")
	case opts.Assessments == nil:
		return nil, errors.New("AssessmentRepository is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobRepositoryTx is required")
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = 24 * time.Hour
	}
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = 5 * time.Second
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.MaxAttempts == nil {
		opts.MaxAttempts = func(model.JobKind) int { return 0 }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IntakeService{
		locker:        opts.Locker,
		subscriptions: opts.Subscriptions,
		assessments:   opts.Assessments,
		jobs:          opts.Jobs,
		maxAttempts:   opts.MaxAttempts,
		window:        opts.RateLimitWindow,
		emails:        opts.Emails,
		emailTimeout:  opts.ConfirmationTimeout,
		timeProvider:  opts.TimeProvider,
		metrics:       opts.Metrics,
		logger:        logger.With("component", "intake_service"),
	}, nil
}

// SubmitNewsletter records a newsletter sign-up and queues its CRM sync.
// An already confirmed email is a successful no-op.
func (s *IntakeService) SubmitNewsletter(
	ctx context.Context,
	req model.NewsletterRequest,
	meta model.ClientMeta,
) (*model.NewsletterResult, error) {
	if err := intake.ValidateNewsletter(&req); err != nil {
		s.metrics.IntakeOutcome(FormNewsletter, string(apperrors.ErrCodeValidation))
		return nil, err
	}

	var result *model.NewsletterResult
	err := s.locker.WithEmailLock(ctx, req.Email, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		result, err = s.newsletterInTx(ctx, tx, req, meta)
		return err
	})
	if err != nil {
		s.metrics.IntakeOutcome(FormNewsletter, outcomeLabel(err))
		return nil, fmt.Errorf("submit newsletter: %w", err)
	}

	s.metrics.IntakeOutcome(FormNewsletter, string(result.Outcome))
	s.logger.InfoContext(ctx, "newsletter submission accepted",
		"subscription_id", result.SubscriptionID,
		"outcome", result.Outcome,
		"job_id", result.JobID,
		"email", RedactEmail(req.Email),
	)
	return result, nil
}

func (s *IntakeService) newsletterInTx(
	ctx context.Context,
	tx *sql.Tx,
	req model.NewsletterRequest,
	meta model.ClientMeta,
) (*model.NewsletterResult, error) {
	existing, err := s.subscriptions.GetByEmailTx(ctx, tx, req.Email)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}

	var sub *model.Subscription
	outcome := model.OutcomeCreated
	switch {
	case existing == nil:
		sub, err = s.subscriptions.CreateTx(ctx, tx, model.CreateSubscriptionParams{
			Email:  req.Email,
			Source: req.Source,
			Meta:   meta,
		})
		if err != nil {
			return nil, err
		}
	case existing.Status == model.SubscriptionConfirmed:
		return &model.NewsletterResult{SubscriptionID: existing.ID, Outcome: model.OutcomeAlreadyConfirmed}, nil
	case existing.Status == model.SubscriptionFailed:
		if err := s.subscriptions.ResetPendingTx(ctx, tx, existing.ID); err != nil {
			return nil, err
		}
		sub, outcome = existing, model.OutcomeResubmitted
	default:
		sub, outcome = existing, model.OutcomeResubmitted
	}

	job, err := s.jobs.EnqueueInTx(ctx, tx, &model.EnqueueRequest{
		Kind:      model.JobKindNewsletterSync,
		SubjectID: sub.ID,
		Payload: model.NewsletterSyncPayload{
			SubscriptionID: sub.ID,
			Email:          sub.Email,
			Source:         sub.Source,
		},
		MaxAttempts: s.maxAttempts(model.JobKindNewsletterSync),
	})
	if err != nil {
		return nil, err
	}
	return &model.NewsletterResult{SubscriptionID: sub.ID, Outcome: outcome, JobID: job.ID}, nil
}

// SubmitAssessment records an assessment and queues its scoring. A non-failed
// submission from the same email inside the rate-limit window is rejected.
func (s *IntakeService) SubmitAssessment(
	ctx context.Context,
	req model.AssessmentRequest,
	meta model.ClientMeta,
) (*model.AssessmentResult, error) {
	if err := intake.ValidateAssessment(&req); err != nil {
		s.metrics.IntakeOutcome(FormAssessment, string(apperrors.ErrCodeValidation))
		return nil, err
	}

	var (
		result *model.AssessmentResult
		sub    *model.AssessmentSubmission
	)
	err := s.locker.WithEmailLock(ctx, req.Email, func(ctx context.Context, tx *sql.Tx) error {
		now := s.timeProvider.Now()
		recent, err := s.assessments.LatestActiveSinceTx(ctx, tx, req.Email, now.Add(-s.window))
		if err != nil {
			return err
		}
		if recent != nil {
			retryAfter := recent.CreatedAt.Add(s.window).Sub(now)
			return apperrors.RateLimited(
				"an assessment for this email was already submitted recently; please try again later",
				max(retryAfter, 0),
			)
		}

		sub, err = s.assessments.CreateTx(ctx, tx, model.CreateAssessmentParams{Request: req, Meta: meta})
		if err != nil {
			return err
		}
		job, err := s.jobs.EnqueueInTx(ctx, tx, &model.EnqueueRequest{
			Kind:        model.JobKindAssessmentScore,
			SubjectID:   sub.ID,
			Payload:     model.AssessmentScorePayload{SubmissionID: sub.ID, Email: sub.Email},
			MaxAttempts: s.maxAttempts(model.JobKindAssessmentScore),
		})
		if err != nil {
			return err
		}
		result = &model.AssessmentResult{AssessmentID: sub.ID, JobID: job.ID}
		return nil
	})
	if err != nil {
		s.metrics.IntakeOutcome(FormAssessment, outcomeLabel(err))
		if apperrors.IsRateLimited(err) {
			s.logger.InfoContext(ctx, "assessment rate limited", "email", RedactEmail(req.Email))
			return nil, err
		}
		return nil, fmt.Errorf("submit assessment: %w", err)
	}

	s.metrics.IntakeOutcome(FormAssessment, string(model.OutcomeCreated))
	s.logger.InfoContext(ctx, "assessment submission accepted",
		"assessment_id", result.AssessmentID,
		"job_id", result.JobID,
		"email", RedactEmail(req.Email),
	)
	s.sendConfirmation(ctx, sub)
	return result, nil
}

// sendConfirmation delivers the "received" email. Failures are logged only.
func (s *IntakeService) sendConfirmation(ctx context.Context, sub *model.AssessmentSubmission) {
	if s.emails == nil || sub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.emailTimeout)
	defer cancel()

	err := s.emails.Send(ctx, core.TemplateAssessmentReceived, sub.Email, map[string]any{
		"assessment_id": sub.ID,
		"contact_name":  sub.ContactName,
		"company_name":  sub.CompanyName,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "confirmation email failed",
			"assessment_id", sub.ID,
			"email", RedactEmail(sub.Email),
			"error", err,
		)
	}
}

func outcomeLabel(err error) string {
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return "error"
}
