// Package model defines the core data types shared by the intake pipeline.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobKind represents the kind of background work a job performs.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobKindNewsletterSync pushes a newsletter subscription to the CRM.
	JobKindNewsletterSync JobKind = "newsletter_sync"
	// JobKindAssessmentScore scores an assessment and delivers its report.
	JobKindAssessmentScore JobKind = "assessment_score"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is leased by a worker.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusDead indicates a job exhausted its attempts or failed terminally.
	JobStatusDead JobStatus = "dead"
)

// AllJobKinds lists every kind the queue accepts.
var AllJobKinds = []JobKind{JobKindNewsletterSync, JobKindAssessmentScore}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// UnmarshalText implements encoding.TextUnmarshaler for JobKind to allow env parsing.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jk := JobKind(v)
	if jk.Valid() {
		*k = jk
		return nil
	}
	return fmt.Errorf("invalid JobKind: %q", v)
}

// Valid returns true if the JobKind is known.
func (k JobKind) Valid() bool {
	return k == JobKindNewsletterSync || k == JobKindAssessmentScore
}

// Valid returns true if the JobStatus is known.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusDead
}

// Job is a unit of queued background work.
type Job struct {
	ID             string          `json:"id"`
	Kind           JobKind         `json:"kind"`
	Status         JobStatus       `json:"status"`
	SubjectID      string          `json:"subject_id"`
	Payload        json.RawMessage `json:"payload"`
	Attempt        int             `json:"attempt"`
	MaxAttempts    int             `json:"max_attempts"`
	AvailableAt    time.Time       `json:"available_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	LastError      *string         `json:"last_error,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FinalAttempt reports whether a failure of the current attempt exhausts the job.
func (j *Job) FinalAttempt() bool {
	return j.Attempt+1 >= j.MaxAttempts
}

// EnqueueRequest describes a job to add to the queue.
type EnqueueRequest struct {
	Kind        JobKind
	SubjectID   string
	Payload     any
	Delay       time.Duration
	MaxAttempts int
}

// Validate validates the EnqueueRequest fields.
func (r *EnqueueRequest) Validate() error {
	if !r.Kind.Valid() {
		return errors.New("invalid job kind")
	}
	if strings.TrimSpace(r.SubjectID) == "" {
		return errors.New("subject id is required")
	}
	if r.Payload == nil {
		return errors.New("payload is required")
	}
	if r.Delay < 0 {
		return errors.New("delay must be >= 0")
	}
	if r.MaxAttempts < 0 {
		return errors.New("max attempts must be >= 0")
	}
	return nil
}

// NackOutcome reports what happened to a job after a failed attempt.
type NackOutcome struct {
	Found       bool
	Dead        bool
	Attempt     int
	AvailableAt time.Time
}

// JobStats represents counts of jobs in each state for one kind.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Dead      int `json:"dead"`
}

// ListDeadJobsOptions filters the dead-letter listing.
type ListDeadJobsOptions struct {
	Kind  JobKind
	Limit int
}

// NewsletterSyncPayload is the payload of a newsletter_sync job.
type NewsletterSyncPayload struct {
	SubscriptionID string `json:"subscription_id"`
	Email          string `json:"email"`
	Source         string `json:"source,omitempty"`
}

// AssessmentScorePayload is the payload of an assessment_score job.
type AssessmentScorePayload struct {
	SubmissionID string `json:"submission_id"`
	Email        string `json:"email"`
}
