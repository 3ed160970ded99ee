package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/intake-pipeline/internal/core"
	"github.com/target/intake-pipeline/internal/data"
	"github.com/target/intake-pipeline/internal/domain/model"
	"github.com/target/intake-pipeline/internal/domain/scoring"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

// JobHandler processes jobs of one kind for the job runner.
type JobHandler interface {
	Kind() model.JobKind
	// Handle performs one attempt. Errors are classified with apperrors.Retryable.
	Handle(ctx context.Context, job *model.Job) error
	// Exhausted is called once the job is dead so the owning record can be marked FAILED.
	Exhausted(ctx context.Context, job *model.Job, errMsg string) error
}

func decodePayload[T any](job *model.Job) (T, error) {
	var payload T
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return payload, apperrors.Terminal(err, "undecodable job payload")
	}
	return payload, nil
}

// classifyCall turns a collaborator error into a queue decision. Timeouts and
// unclassified errors are transient; classified errors pass through.
func classifyCall(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Transient(err, what+" timed out")
	}
	if apperrors.GetCode(err) != "" {
		return err
	}
	return apperrors.Transient(err, what+" failed")
}

// NewsletterSyncHandlerOptions groups dependencies for NewsletterSyncHandler.
type NewsletterSyncHandlerOptions struct {
	Subscriptions core.SubscriptionRepository // Required
	CRM           core.CRMClient              // Required
	Timeout       time.Duration               // Optional: CRM call timeout, defaults to 10s
	TimeProvider  data.TimeProvider           // Optional
	Logger        *slog.Logger                // Optional
}

// NewsletterSyncHandler pushes subscriptions to the CRM and confirms them.
type NewsletterSyncHandler struct {
	subscriptions core.SubscriptionRepository
	crm           core.CRMClient
	timeout       time.Duration
	timeProvider  data.TimeProvider
	logger        *slog.Logger
}

// NewNewsletterSyncHandler constructs a NewsletterSyncHandler.
func NewNewsletterSyncHandler(opts NewsletterSyncHandlerOptions) (*NewsletterSyncHandler, error) {
	if opts.Subscriptions == nil {
		return nil, errors.New("SubscriptionRepository is required")
	}
	if opts.CRM == nil {
		return nil, errors.New("CRMClient is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NewsletterSyncHandler{
		subscriptions: opts.Subscriptions,
		crm:           opts.CRM,
		timeout:       opts.Timeout,
		timeProvider:  opts.TimeProvider,
		logger:        logger.With("component", "newsletter_sync"),
	}, nil
}

// Kind implements JobHandler.
func (h *NewsletterSyncHandler) Kind() model.JobKind { return model.JobKindNewsletterSync }

// CRMExternalID is the stable CRM identity and idempotency key of a subscription.
func CRMExternalID(subscriptionID string) string { return "newsletter-" + subscriptionID }

// Handle implements JobHandler.
func (h *NewsletterSyncHandler) Handle(ctx context.Context, job *model.Job) error {
	payload, err := decodePayload[model.NewsletterSyncPayload](job)
	if err != nil {
		return err
	}
	if payload.SubscriptionID == "" {
		return apperrors.Terminal(nil, "job payload has no subscription id")
	}

	sub, err := h.subscriptions.GetByID(ctx, payload.SubscriptionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.Terminal(err, "subscription not found")
		}
		return classifyCall(err, "load subscription")
	}
	if sub.Status == model.SubscriptionConfirmed {
		h.logger.DebugContext(ctx, "subscription already confirmed", "subscription_id", sub.ID, "job_id", job.ID)
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	err = h.crm.UpsertContact(callCtx, core.ContactUpsert{
		ExternalID: CRMExternalID(sub.ID),
		Email:      sub.Email,
		Attributes: map[string]string{"source": sub.Source},
	})
	cancel()
	if err != nil {
		return classifyCall(err, "crm upsert")
	}

	confirmed, err := h.subscriptions.Confirm(ctx, model.ConfirmSubscriptionParams{
		ID:       sub.ID,
		SyncedAt: h.timeProvider.Now(),
	})
	if err != nil {
		return classifyCall(err, "confirm subscription")
	}
	if !confirmed {
		h.logger.WarnContext(ctx, "subscription left its pending state during sync", "subscription_id", sub.ID)
		return nil
	}
	h.logger.InfoContext(ctx, "subscription confirmed",
		"subscription_id", sub.ID,
		"attempt", job.Attempt+1,
		"email", RedactEmail(sub.Email),
	)
	return nil
}

// Exhausted implements JobHandler.
func (h *NewsletterSyncHandler) Exhausted(ctx context.Context, job *model.Job, errMsg string) error {
	failed, err := h.subscriptions.MarkFailed(ctx, job.SubjectID, errMsg)
	if err != nil {
		return fmt.Errorf("mark subscription %s failed: %w", job.SubjectID, err)
	}
	if failed {
		h.logger.WarnContext(ctx, "subscription sync failed permanently", "subscription_id", job.SubjectID, "error", errMsg)
	}
	return nil
}

// AssessmentScoringHandlerOptions groups dependencies for AssessmentScoringHandler.
type AssessmentScoringHandlerOptions struct {
	Assessments   core.AssessmentRepository // Required
	Reports       core.ReportGenerator      // Required
	Emails        core.EmailSender          // Required
	ReportTimeout time.Duration             // Optional: defaults to 30s
	EmailTimeout  time.Duration             // Optional: defaults to 10s
	TimeProvider  data.TimeProvider         // Optional
	Logger        *slog.Logger              // Optional
}

// AssessmentScoringHandler scores submissions, generates the report and emails it.
type AssessmentScoringHandler struct {
	assessments   core.AssessmentRepository
	reports       core.ReportGenerator
	emails        core.EmailSender
	reportTimeout time.Duration
	emailTimeout  time.Duration
	timeProvider  data.TimeProvider
	logger        *slog.Logger
}

// NewAssessmentScoringHandler constructs an AssessmentScoringHandler.
func NewAssessmentScoringHandler(opts AssessmentScoringHandlerOptions) (*AssessmentScoringHandler, error) {
	switch {
	case opts.Assessments == nil:
		return nil, errors.New("AssessmentRepository is required")
	case opts.Reports == nil:
		return nil, errors.New("ReportGenerator is required")
	case opts.Emails == nil:
		return nil, errors.New("EmailSender is required")
	}
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = 30 * time.Second
	}
	if opts.EmailTimeout <= 0 {
		opts.EmailTimeout = 10 * time.Second
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AssessmentScoringHandler{
		assessments:   opts.Assessments,
		reports:       opts.Reports,
		emails:        opts.Emails,
		reportTimeout: opts.ReportTimeout,
		emailTimeout:  opts.EmailTimeout,
		timeProvider:  opts.TimeProvider,
		logger:        logger.With("component", "assessment_scoring"),
	}, nil
}

// Kind implements JobHandler.
func (h *AssessmentScoringHandler) Kind() model.JobKind { return model.JobKindAssessmentScore }

// Handle implements JobHandler. Each attempt recomputes scores and redoes the
// report and email, so a retry after a partial failure repeats the whole job.
func (h *AssessmentScoringHandler) Handle(ctx context.Context, job *model.Job) error {
	payload, err := decodePayload[model.AssessmentScorePayload](job)
	if err != nil {
		return err
	}
	if payload.SubmissionID == "" {
		return apperrors.Terminal(nil, "job payload has no submission id")
	}

	sub, err := h.assessments.GetByID(ctx, payload.SubmissionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.Terminal(err, "assessment submission not found")
		}
		return classifyCall(err, "load submission")
	}
	if sub.Status.Terminal() {
		h.logger.DebugContext(ctx, "submission already terminal", "submission_id", sub.ID, "status", sub.Status)
		return nil
	}

	claimed, err := h.assessments.MarkProcessing(ctx, sub.ID)
	if err != nil {
		return classifyCall(err, "claim submission")
	}
	if !claimed {
		return nil
	}
	sub.Status = model.AssessmentProcessing

	result := scoring.Compute(sub.Responses)
	if err := h.assessments.SaveScores(ctx, model.SaveScoresParams{
		ID:             sub.ID,
		OverallScore:   result.Overall,
		CategoryScores: result.Categories,
	}); err != nil {
		return classifyCall(err, "save scores")
	}
	sub.OverallScore = result.Overall
	sub.CategoryScores = result.Categories

	reportCtx, cancel := context.WithTimeout(ctx, h.reportTimeout)
	reportURL, err := h.reports.Generate(reportCtx, sub)
	cancel()
	if err != nil {
		return classifyCall(err, "generate report")
	}

	emailCtx, cancel := context.WithTimeout(ctx, h.emailTimeout)
	err = h.emails.Send(emailCtx, core.TemplateAssessmentReport, sub.Email, reportEmailData(sub, reportURL))
	cancel()
	if err != nil {
		return classifyCall(err, "send report email")
	}

	completed, err := h.assessments.Complete(ctx, model.CompleteAssessmentParams{
		ID:           sub.ID,
		ReportURL:    reportURL,
		ReportSentAt: h.timeProvider.Now(),
	})
	if err != nil {
		return classifyCall(err, "complete submission")
	}
	if !completed {
		h.logger.WarnContext(ctx, "submission left processing before completion", "submission_id", sub.ID)
		return nil
	}
	h.logger.InfoContext(ctx, "assessment completed",
		"submission_id", sub.ID,
		"overall_score", result.Overall,
		"attempt", job.Attempt+1,
	)
	return nil
}

func reportEmailData(sub *model.AssessmentSubmission, reportURL string) map[string]any {
	categories := make([]map[string]any, 0, len(sub.CategoryScores))
	for _, cs := range sub.CategoryScores {
		categories = append(categories, map[string]any{"name": cs.Category, "score": cs.Score})
	}
	return map[string]any{
		"assessment_id": sub.ID,
		"contact_name":  sub.ContactName,
		"company_name":  sub.CompanyName,
		"overall_score": sub.OverallScore,
		"categories":    categories,
		"report_url":    reportURL,
	}
}

// Exhausted implements JobHandler. Scores saved by earlier attempts are kept.
func (h *AssessmentScoringHandler) Exhausted(ctx context.Context, job *model.Job, errMsg string) error {
	failed, err := h.assessments.MarkFailed(ctx, job.SubjectID, errMsg)
	if err != nil {
		return fmt.Errorf("mark submission %s failed: %w", job.SubjectID, err)
	}
	if failed {
		h.logger.WarnContext(ctx, "assessment processing failed permanently", "submission_id", job.SubjectID, "error", errMsg)
	}
	return nil
}

var (
	_ JobHandler = (*NewsletterSyncHandler)(nil)
	_ JobHandler = (*AssessmentScoringHandler)(nil)
)
