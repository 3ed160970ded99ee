package model

import "time"

// SubscriptionStatus represents the sync state of a newsletter subscription.
type SubscriptionStatus string

const (
	// SubscriptionPending means the CRM sync has not succeeded yet.
	SubscriptionPending SubscriptionStatus = "PENDING"
	// SubscriptionConfirmed means the contact exists in the CRM.
	SubscriptionConfirmed SubscriptionStatus = "CONFIRMED"
	// SubscriptionFailed means every sync attempt failed.
	SubscriptionFailed SubscriptionStatus = "FAILED"
)

// Valid returns true if the status is known.
func (s SubscriptionStatus) Valid() bool {
	return s == SubscriptionPending || s == SubscriptionConfirmed || s == SubscriptionFailed
}

// Terminal reports whether no further transitions are expected without a resubmission.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionConfirmed || s == SubscriptionFailed
}

// Subscription is a newsletter sign-up keyed by normalized email.
type Subscription struct {
	ID             string             `json:"id"`
	Email          string             `json:"email"`
	Source         string             `json:"source"`
	Status         SubscriptionStatus `json:"status"`
	ExternalSynced bool               `json:"external_synced"`
	SyncError      *string            `json:"sync_error,omitempty"`
	SyncedAt       *time.Time         `json:"synced_at,omitempty"`
	IPAddress      string             `json:"ip_address,omitempty"`
	UserAgent      string             `json:"user_agent,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// ClientMeta carries request metadata recorded alongside a submission.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// NewsletterRequest is the inbound newsletter form.
type NewsletterRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

// CreateSubscriptionParams holds the fields for inserting a subscription.
type CreateSubscriptionParams struct {
	Email  string
	Source string
	Meta   ClientMeta
}

// NewsletterOutcome describes how a newsletter submission was handled.
type NewsletterOutcome string

const (
	// OutcomeCreated means a new subscription was recorded.
	OutcomeCreated NewsletterOutcome = "created"
	// OutcomeResubmitted means an existing unconfirmed subscription was re-queued.
	OutcomeResubmitted NewsletterOutcome = "resubmitted"
	// OutcomeAlreadyConfirmed means the email is already subscribed; nothing was done.
	OutcomeAlreadyConfirmed NewsletterOutcome = "already_confirmed"
)

// NewsletterResult is returned by a successful newsletter submission.
type NewsletterResult struct {
	SubscriptionID string            `json:"subscription_id"`
	Outcome        NewsletterOutcome `json:"outcome"`
	JobID          string            `json:"job_id,omitempty"`
}

// ConfirmSubscriptionParams records a successful CRM sync.
type ConfirmSubscriptionParams struct {
	ID       string
	SyncedAt time.Time
}
