package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// AssessmentStatus represents the processing state of an assessment submission.
type AssessmentStatus string

const (
	// AssessmentSubmitted means the submission is recorded and queued.
	AssessmentSubmitted AssessmentStatus = "SUBMITTED"
	// AssessmentProcessing means a worker has claimed the submission.
	AssessmentProcessing AssessmentStatus = "PROCESSING"
	// AssessmentCompleted means scores were stored and the report was sent.
	AssessmentCompleted AssessmentStatus = "COMPLETED"
	// AssessmentFailed means processing was abandoned.
	AssessmentFailed AssessmentStatus = "FAILED"
)

// Valid returns true if the status is known.
func (s AssessmentStatus) Valid() bool {
	switch s {
	case AssessmentSubmitted, AssessmentProcessing, AssessmentCompleted, AssessmentFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the submission will not be processed further.
func (s AssessmentStatus) Terminal() bool {
	return s == AssessmentCompleted || s == AssessmentFailed
}

// QuestionResponse is a single answered question. Score is nil when unanswered.
type QuestionResponse struct {
	QuestionID string   `json:"questionId"`
	Answer     string   `json:"answer"`
	Score      *float64 `json:"score,omitempty"`
}

// CategoryResponses groups the ordered answers of one category.
type CategoryResponses struct {
	Category  string             `json:"category"`
	Responses []QuestionResponse `json:"responses"`
}

// CategoryScore is the computed score of one category.
type CategoryScore struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// CategoryScores keeps category scores in submission order. It encodes as a
// JSON object whose keys follow that order.
type CategoryScores []CategoryScore

// Get returns the score for category.
func (c CategoryScores) Get(category string) (float64, bool) {
	for _, cs := range c {
		if cs.Category == category {
			return cs.Score, true
		}
	}
	return 0, false
}

// MarshalJSON implements json.Marshaler.
func (c CategoryScores) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cs := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(cs.Category)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(cs.Score)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler and preserves key order.
func (c *CategoryScores) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("category scores must be a JSON object")
	}
	out := CategoryScores{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected key token %v", keyTok)
		}
		var score float64
		if err := dec.Decode(&score); err != nil {
			return fmt.Errorf("decode score for %q: %w", key, err)
		}
		out = append(out, CategoryScore{Category: key, Score: score})
	}
	*c = out
	return nil
}

// AssessmentSubmission is a stored AI-readiness assessment.
type AssessmentSubmission struct {
	ID              string              `json:"id"`
	Email           string              `json:"email"`
	CompanyName     string              `json:"company_name,omitempty"`
	ContactName     string              `json:"contact_name,omitempty"`
	Phone           string              `json:"phone,omitempty"`
	Responses       []CategoryResponses `json:"responses"`
	OverallScore    float64             `json:"overall_score"`
	CategoryScores  CategoryScores      `json:"category_scores,omitempty"`
	Status          AssessmentStatus    `json:"status"`
	ReportGenerated bool                `json:"report_generated"`
	ReportURL       *string             `json:"report_url,omitempty"`
	ReportSentAt    *time.Time          `json:"report_sent_at,omitempty"`
	ProcessingError *string             `json:"processing_error,omitempty"`
	IPAddress       string              `json:"ip_address,omitempty"`
	UserAgent       string              `json:"user_agent,omitempty"`
	Source          string              `json:"source,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// AssessmentRequest is the inbound assessment form.
type AssessmentRequest struct {
	Email       string              `json:"email"`
	CompanyName string              `json:"companyName,omitempty"`
	ContactName string              `json:"contactName,omitempty"`
	Phone       string              `json:"phone,omitempty"`
	Responses   []CategoryResponses `json:"responses"`
	Source      string              `json:"source,omitempty"`
}

// CreateAssessmentParams holds the fields for inserting a submission.
type CreateAssessmentParams struct {
	Request AssessmentRequest
	Meta    ClientMeta
}

// AssessmentResult is returned by a successful assessment submission.
type AssessmentResult struct {
	AssessmentID string `json:"assessment_id"`
	JobID        string `json:"job_id"`
}

// CompleteAssessmentParams records a fully processed submission in one update.
type CompleteAssessmentParams struct {
	ID           string
	ReportURL    string
	ReportSentAt time.Time
}

// SaveScoresParams persists computed scores.
type SaveScoresParams struct {
	ID             string
	OverallScore   float64
	CategoryScores CategoryScores
}
