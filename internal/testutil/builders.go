package testutil

import (
	"time"

	"github.com/target/intake-pipeline/internal/domain/model"
)

// AssessmentRequestBuilder builds valid assessment requests with overridable fields.
type AssessmentRequestBuilder struct {
	req model.AssessmentRequest
}

// NewAssessmentRequest starts from a valid single-category request.
func NewAssessmentRequest() *AssessmentRequestBuilder {
	return &AssessmentRequestBuilder{
		req: model.AssessmentRequest{
			Email:       "owner@example.com",
			CompanyName: "Example Co",
			ContactName: "Sam Example",
			Source:      "website",
			Responses: []model.CategoryResponses{
				{
					Category: "Strategy",
					Responses: []model.QuestionResponse{
						{QuestionID: "q1", Answer: "yes", Score: Float64Ptr(80)},
						{QuestionID: "q2", Answer: "partly", Score: Float64Ptr(60)},
					},
				},
			},
		},
	}
}

// WithEmail sets the submitter email.
func (b *AssessmentRequestBuilder) WithEmail(email string) *AssessmentRequestBuilder {
	b.req.Email = email
	return b
}

// WithCategory appends a category whose questions carry the given scores in order.
func (b *AssessmentRequestBuilder) WithCategory(name string, scores ...float64) *AssessmentRequestBuilder {
	cat := model.CategoryResponses{Category: name}
	for i, s := range scores {
		cat.Responses = append(cat.Responses, model.QuestionResponse{
			QuestionID: name + "-" + string(rune('a'+i)),
			Answer:     "answer",
			Score:      Float64Ptr(s),
		})
	}
	b.req.Responses = append(b.req.Responses, cat)
	return b
}

// WithoutResponses clears all categories.
func (b *AssessmentRequestBuilder) WithoutResponses() *AssessmentRequestBuilder {
	b.req.Responses = nil
	return b
}

// Build returns a copy of the request.
func (b *AssessmentRequestBuilder) Build() model.AssessmentRequest {
	out := b.req
	out.Responses = append([]model.CategoryResponses(nil), b.req.Responses...)
	return out
}

// NewJob returns a running job of the given kind with a fresh lease, suitable for handler tests.
func NewJob(kind model.JobKind, subjectID string, payload []byte) *model.Job {
	now := TestTime()
	lease := now.Add(30 * time.Second)
	return &model.Job{
		ID:             "job-" + subjectID,
		Kind:           kind,
		Status:         model.JobStatusRunning,
		SubjectID:      subjectID,
		Payload:        payload,
		MaxAttempts:    5,
		AvailableAt:    now,
		StartedAt:      &now,
		LeaseExpiresAt: &lease,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
