package core

import (
	"context"

	"github.com/target/intake-pipeline/internal/domain/model"
)

// ContactUpsert is an idempotent CRM contact write.
type ContactUpsert struct {
	// ExternalID is stable per subscription and doubles as the idempotency key.
	ExternalID string
	Email      string
	Attributes map[string]string
}

// CRMClient pushes contacts to the marketing CRM.
type CRMClient interface {
	UpsertContact(ctx context.Context, req ContactUpsert) error
}

// EmailTemplate names a transactional email.
type EmailTemplate string

const (
	// TemplateAssessmentReceived acknowledges an assessment submission.
	TemplateAssessmentReceived EmailTemplate = "assessment_received"
	// TemplateAssessmentReport delivers the assessment report.
	TemplateAssessmentReport EmailTemplate = "assessment_report"
)

// EmailSender delivers transactional email.
type EmailSender interface {
	Send(ctx context.Context, template EmailTemplate, recipient string, data map[string]any) error
}

// ObjectStore persists binary artifacts and returns a retrievable URL.
type ObjectStore interface {
	Store(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// ReportGenerator renders and stores an assessment report, returning its URL.
type ReportGenerator interface {
	Generate(ctx context.Context, submission *model.AssessmentSubmission) (string, error)
}
