package model

import (
	"strings"
	"time"
)

// StatusQuery selects a record by id or by email. ID wins when both are set.
type StatusQuery struct {
	ID    string
	Email string
}

// Empty reports whether neither selector is present.
func (q StatusQuery) Empty() bool {
	return strings.TrimSpace(q.ID) == "" && strings.TrimSpace(q.Email) == ""
}

// StatusView is the polling view of a submission.
type StatusView struct {
	ID              string         `json:"id"`
	Status          string         `json:"status"`
	OverallScore    *float64       `json:"overallScore,omitempty"`
	CategoryScores  CategoryScores `json:"categoryScores,omitempty"`
	ReportGenerated *bool          `json:"reportGenerated,omitempty"`
	ReportSent      *bool          `json:"reportSent,omitempty"`
	ExternalSynced  *bool          `json:"externalSynced,omitempty"`
	SubmittedAt     time.Time      `json:"submittedAt"`
	Error           *string        `json:"error,omitempty"`
}

// AssessmentStatusView builds the polling view of a submission.
func AssessmentStatusView(s *AssessmentSubmission) *StatusView {
	if s == nil {
		return nil
	}
	view := &StatusView{
		ID:          s.ID,
		Status:      string(s.Status),
		SubmittedAt: s.CreatedAt,
		Error:       s.ProcessingError,
	}
	if len(s.CategoryScores) > 0 {
		overall := s.OverallScore
		view.OverallScore = &overall
		view.CategoryScores = s.CategoryScores
	}
	generated := s.ReportGenerated
	sent := s.ReportSentAt != nil
	view.ReportGenerated = &generated
	view.ReportSent = &sent
	return view
}

// SubscriptionStatusView builds the polling view of a subscription.
func SubscriptionStatusView(s *Subscription) *StatusView {
	if s == nil {
		return nil
	}
	synced := s.ExternalSynced
	return &StatusView{
		ID:             s.ID,
		Status:         string(s.Status),
		ExternalSynced: &synced,
		SubmittedAt:    s.CreatedAt,
		Error:          s.SyncError,
	}
}

// Terminal reports whether the viewed record has reached a resting state.
func (v *StatusView) Terminal() bool {
	if v == nil {
		return false
	}
	switch v.Status {
	case string(AssessmentCompleted), string(AssessmentFailed), string(SubscriptionConfirmed):
		return true
	default:
		return false
	}
}
