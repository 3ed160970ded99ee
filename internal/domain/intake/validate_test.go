package intake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		ok    bool
	}{
		{"a@example.com", true},
		{"First.Last+tag@sub.example.co.uk", true},
		{"  padded@example.com  ", true},
		{"", false},
		{"no-at-sign", false},
		{"a@localhost", false},
		{"a@example.", false},
		{"Name <a@example.com>", false},
		{"a@@example.com", false},
		{strings.Repeat("a", 250) + "@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, "email", apperrors.GetField(err))
		})
	}
}

func TestValidateNewsletter_Normalizes(t *testing.T) {
	req := &model.NewsletterRequest{Email: "  Someone@Example.COM "}
	require.NoError(t, ValidateNewsletter(req))
	assert.Equal(t, "someone@example.com", req.Email)
	assert.Equal(t, "website", req.Source)
}

func validAssessment() *model.AssessmentRequest {
	s := 80.0
	return &model.AssessmentRequest{
		Email:       "Lead@Example.com",
		CompanyName: " Acme ",
		Responses: []model.CategoryResponses{{
			Category:  " Strategy ",
			Responses: []model.QuestionResponse{{QuestionID: "q1", Answer: "yes", Score: &s}},
		}},
	}
}

func TestValidateAssessment(t *testing.T) {
	bad := 101.0

	tests := []struct {
		name      string
		mutate    func(r *model.AssessmentRequest)
		wantField string
	}{
		{name: "valid", mutate: func(*model.AssessmentRequest) {}},
		{
			name:      "bad email",
			mutate:    func(r *model.AssessmentRequest) { r.Email = "nope" },
			wantField: "email",
		},
		{
			name:      "no categories",
			mutate:    func(r *model.AssessmentRequest) { r.Responses = nil },
			wantField: "responses",
		},
		{
			name:      "blank category",
			mutate:    func(r *model.AssessmentRequest) { r.Responses[0].Category = "  " },
			wantField: "responses[0].category",
		},
		{
			name: "repeated category",
			mutate: func(r *model.AssessmentRequest) {
				r.Responses = append(r.Responses, r.Responses[0])
			},
			wantField: "responses[1].category",
		},
		{
			name:      "empty answers",
			mutate:    func(r *model.AssessmentRequest) { r.Responses[0].Responses = nil },
			wantField: "responses[0].responses",
		},
		{
			name:      "missing question id",
			mutate:    func(r *model.AssessmentRequest) { r.Responses[0].Responses[0].QuestionID = "" },
			wantField: "responses[0].responses[0].questionId",
		},
		{
			name:      "score out of range",
			mutate:    func(r *model.AssessmentRequest) { r.Responses[0].Responses[0].Score = &bad },
			wantField: "responses[0].responses[0].score",
		},
		{
			name:      "company too long",
			mutate:    func(r *model.AssessmentRequest) { r.CompanyName = strings.Repeat("x", 201) },
			wantField: "companyName",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validAssessment()
			tt.mutate(req)
			err := ValidateAssessment(req)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, "lead@example.com", req.Email)
				assert.Equal(t, "Acme", req.CompanyName)
				assert.Equal(t, "Strategy", req.Responses[0].Category)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.wantField, apperrors.GetField(err))
		})
	}
}

func TestValidateAssessment_NilRequest(t *testing.T) {
	assert.True(t, apperrors.IsValidation(ValidateAssessment(nil)))
	assert.True(t, apperrors.IsValidation(ValidateNewsletter(nil)))
}
