// Package intake holds the input rules applied to inbound form submissions.
package intake

import (
	"math"
	"net/mail"
	"strconv"
	"strings"

	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

const (
	maxEmailLength    = 254
	maxSourceLength   = 100
	maxTextLength     = 200
	maxCategories     = 50
	maxQuestions      = 200
	maxAnswerLength   = 2000
	defaultFormSource = "website"
)

// NormalizeEmail trims and lower-cases an address for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the address against RFC 5322 addr-spec and requires a
// dotted domain. Display names are rejected.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.ValidationField("email", "email is required")
	}
	if len(email) > maxEmailLength {
		return apperrors.ValidationField("email", "email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return apperrors.ValidationField("email", "email is invalid")
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return apperrors.ValidationField("email", "email is invalid")
	}
	return nil
}

// NormalizeSource returns the trimmed form source or the default.
func NormalizeSource(source string) string {
	s := strings.TrimSpace(source)
	if s == "" {
		return defaultFormSource
	}
	return s
}

// ValidateNewsletter validates and normalizes a newsletter request in place.
func ValidateNewsletter(req *model.NewsletterRequest) error {
	if req == nil {
		return apperrors.Validation("request body is required")
	}
	if err := ValidateEmail(req.Email); err != nil {
		return err
	}
	if len(req.Source) > maxSourceLength {
		return apperrors.ValidationField("source", "source is too long")
	}
	req.Email = NormalizeEmail(req.Email)
	req.Source = NormalizeSource(req.Source)
	return nil
}

// ValidateAssessment validates and normalizes an assessment request in place.
func ValidateAssessment(req *model.AssessmentRequest) error {
	if req == nil {
		return apperrors.Validation("request body is required")
	}
	if err := ValidateEmail(req.Email); err != nil {
		return err
	}
	for field, v := range map[string]string{
		"companyName": req.CompanyName,
		"contactName": req.ContactName,
		"phone":       req.Phone,
	} {
		if len(v) > maxTextLength {
			return apperrors.ValidationField(field, field+" is too long")
		}
	}
	if len(req.Source) > maxSourceLength {
		return apperrors.ValidationField("source", "source is too long")
	}
	if err := validateResponses(req.Responses); err != nil {
		return err
	}

	req.Email = NormalizeEmail(req.Email)
	req.Source = NormalizeSource(req.Source)
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.ContactName = strings.TrimSpace(req.ContactName)
	req.Phone = strings.TrimSpace(req.Phone)
	for i := range req.Responses {
		req.Responses[i].Category = strings.TrimSpace(req.Responses[i].Category)
	}
	return nil
}

func validateResponses(blocks []model.CategoryResponses) error {
	if len(blocks) == 0 {
		return apperrors.ValidationField("responses", "at least one category is required")
	}
	if len(blocks) > maxCategories {
		return apperrors.ValidationField("responses", "too many categories")
	}
	seen := make(map[string]struct{}, len(blocks))
	for i, block := range blocks {
		field := "responses[" + strconv.Itoa(i) + "]"
		name := strings.TrimSpace(block.Category)
		if name == "" {
			return apperrors.ValidationField(field+".category", "category is required")
		}
		if _, dup := seen[name]; dup {
			return apperrors.ValidationField(field+".category", "category "+strconv.Quote(name)+" is repeated")
		}
		seen[name] = struct{}{}
		if len(block.Responses) == 0 {
			return apperrors.ValidationField(field+".responses", "at least one answer is required")
		}
		if len(block.Responses) > maxQuestions {
			return apperrors.ValidationField(field+".responses", "too many answers")
		}
		for j, q := range block.Responses {
			qField := field + ".responses[" + strconv.Itoa(j) + "]"
			if strings.TrimSpace(q.QuestionID) == "" {
				return apperrors.ValidationField(qField+".questionId", "questionId is required")
			}
			if len(q.Answer) > maxAnswerLength {
				return apperrors.ValidationField(qField+".answer", "answer is too long")
			}
			if q.Score != nil && (math.IsNaN(*q.Score) || *q.Score < 0 || *q.Score > 100) {
				return apperrors.ValidationField(qField+".score", "score must be between 0 and 100")
			}
		}
	}
	return nil
}
