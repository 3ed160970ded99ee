// Package core declares the ports between the service layer and its adapters.
package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/target/intake-pipeline/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on the data package.

// JobRepository defines the durable queue operations.
type JobRepository interface {
	Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ReserveNext(ctx context.Context, kind model.JobKind, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context, kind model.JobKind) error
	Heartbeat(ctx context.Context, id string, leaseSeconds int) (bool, error)
	Ack(ctx context.Context, id string) (bool, error)
	Nack(ctx context.Context, params NackParams) (model.NackOutcome, error)
	DeadLetter(ctx context.Context, id, errMsg string) (bool, error)
	Release(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context, kind model.JobKind) (*model.JobStats, error)
	ListDead(ctx context.Context, opts model.ListDeadJobsOptions) ([]*model.Job, error)
	Requeue(ctx context.Context, id string) (bool, error)
}

// JobRepositoryTx enqueues inside a caller-owned transaction so the record
// write and the job insert commit together.
type JobRepositoryTx interface {
	EnqueueInTx(ctx context.Context, tx *sql.Tx, req *model.EnqueueRequest) (*model.Job, error)
}

// NackParams groups parameters for JobRepository.Nack.
type NackParams struct {
	ID         string
	Err        string
	RetryDelay time.Duration
}

// EmailLocker serializes intake decisions per normalized email.
type EmailLocker interface {
	// WithEmailLock runs fn inside a transaction holding an exclusive lock on email.
	WithEmailLock(ctx context.Context, email string, fn func(ctx context.Context, tx *sql.Tx) error) error
}

// SubscriptionRepository defines newsletter subscription persistence.
type SubscriptionRepository interface {
	GetByID(ctx context.Context, id string) (*model.Subscription, error)
	GetByEmail(ctx context.Context, email string) (*model.Subscription, error)
	GetByEmailTx(ctx context.Context, tx *sql.Tx, email string) (*model.Subscription, error)
	CreateTx(ctx context.Context, tx *sql.Tx, params model.CreateSubscriptionParams) (*model.Subscription, error)
	// ResetPendingTx moves a FAILED subscription back to PENDING and clears its error.
	ResetPendingTx(ctx context.Context, tx *sql.Tx, id string) error
	// ResetPending is ResetPendingTx outside a transaction; false means the record was not FAILED.
	ResetPending(ctx context.Context, id string) (bool, error)
	Confirm(ctx context.Context, params model.ConfirmSubscriptionParams) (bool, error)
	MarkFailed(ctx context.Context, id, errMsg string) (bool, error)
	Stats(ctx context.Context) (*model.SubmissionStats, error)
	ListRecent(ctx context.Context, opts model.ListRecentOptions) ([]*model.Subscription, error)
}

// AssessmentRepository defines assessment submission persistence.
type AssessmentRepository interface {
	GetByID(ctx context.Context, id string) (*model.AssessmentSubmission, error)
	GetLatestByEmail(ctx context.Context, email string) (*model.AssessmentSubmission, error)
	// LatestActiveSinceTx returns the newest non-FAILED submission for email created after since, or nil.
	LatestActiveSinceTx(
		ctx context.Context,
		tx *sql.Tx,
		email string,
		since time.Time,
	) (*model.AssessmentSubmission, error)
	CreateTx(ctx context.Context, tx *sql.Tx, params model.CreateAssessmentParams) (*model.AssessmentSubmission, error)
	// MarkProcessing claims a SUBMITTED submission. A PROCESSING one is left as is and reported claimed.
	MarkProcessing(ctx context.Context, id string) (bool, error)
	SaveScores(ctx context.Context, params model.SaveScoresParams) error
	Complete(ctx context.Context, params model.CompleteAssessmentParams) (bool, error)
	MarkFailed(ctx context.Context, id, errMsg string) (bool, error)
	// ResetForRetry moves a FAILED submission back to SUBMITTED.
	ResetForRetry(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (*model.SubmissionStats, error)
	ListRecent(ctx context.Context, opts model.ListRecentOptions) ([]*model.AssessmentSubmission, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the queue housekeeping operations.
type ReaperRepository interface {
	// RequeueExpiredLeases returns running jobs with lapsed leases to pending across all kinds.
	RequeueExpiredLeases(ctx context.Context, batchSize int) (int64, error)

	// DeleteOldJobs deletes jobs with the given status older than maxAge, up to batchSize rows.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)

	// FailOrphanedSubmissions marks non-terminal records FAILED when their latest
	// job is dead and no live job remains. Returns the number of records updated.
	FailOrphanedSubmissions(ctx context.Context, batchSize int) (int64, error)
}
