package model

// SubmissionKind names a table whose status counts are tracked.
type SubmissionKind string

const (
	// SubmissionKindNewsletter counts newsletter subscriptions.
	SubmissionKindNewsletter SubmissionKind = "newsletter"
	// SubmissionKindAssessment counts assessment submissions.
	SubmissionKindAssessment SubmissionKind = "assessment"
)

// SubmissionStats are the admin dashboard aggregates for one form.
type SubmissionStats struct {
	Total      int `json:"total"`
	Succeeded  int `json:"succeeded"`
	InProgress int `json:"inProgress"`
	Failed     int `json:"failed"`
}

// ListRecentOptions pages the recent-submission listings.
type ListRecentOptions struct {
	Limit  int
	Status string
}

const (
	// DefaultRecentLimit is used when no limit is given.
	DefaultRecentLimit = 20
	// MaxRecentLimit caps admin listings.
	MaxRecentLimit = 200
)

// Normalize clamps the limit to a sane range.
func (o ListRecentOptions) Normalize() ListRecentOptions {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultRecentLimit
	case o.Limit > MaxRecentLimit:
		o.Limit = MaxRecentLimit
	}
	return o
}
