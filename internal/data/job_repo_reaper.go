package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/intake-pipeline/internal/core"
	"github.com/target/intake-pipeline/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
const (
	advisoryLockReaperMajor       = 1000
	advisoryLockReaperLeases      = 1 // minor key for RequeueExpiredLeases
	advisoryLockReaperDelete      = 2 // minor key for DeleteOldJobs
	advisoryLockReaperReconcile   = 3 // minor key for FailOrphanedSubmissions
	orphanedSubmissionErrorPrefix = "job exhausted: "
)

// withReaperLock runs fn in a transaction holding the given reaper lock. If another
// instance holds the lock, fn is skipped and zero is returned.
func (r *JobRepo) withReaperLock(ctx context.Context, minor int, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, minor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}
			n, err := fn(tx)
			rowsAffected = n
			return err
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// RequeueExpiredLeases expires lapsed leases across all kinds, oldest first, up to batchSize rows.
func (r *JobRepo) RequeueExpiredLeases(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	return r.withReaperLock(ctx, advisoryLockReaperLeases, func(tx *sql.Tx) (int64, error) {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs`+expireLeasesSet+`
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = 'running'
				  AND lease_expires_at IS NOT NULL
				  AND lease_expires_at < $1::timestamptz
				ORDER BY lease_expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
		`, r.timeProvider.Now().UTC(), batchSize)
		if err != nil {
			return 0, fmt.Errorf("requeue expired leases: %w", err)
		}
		return res.RowsAffected()
	})
}

// DeleteOldJobs deletes jobs with the given status older than maxAge.
// Processes up to batchSize jobs per call to prevent long locks and I/O spikes.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if !params.Status.Valid() {
		return 0, fmt.Errorf("invalid job status: %s", params.Status)
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	return r.withReaperLock(ctx, advisoryLockReaperDelete, func(tx *sql.Tx) (int64, error) {
		cutoff := r.timeProvider.Now().Add(-params.MaxAge).UTC()
		res, err := tx.ExecContext(ctx, `
			DELETE FROM jobs
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = $1
				  AND (completed_at < $2 OR (completed_at IS NULL AND updated_at < $2))
				ORDER BY COALESCE(completed_at, updated_at)
				LIMIT $3
			)
		`, params.Status, cutoff, params.BatchSize)
		if err != nil {
			return 0, fmt.Errorf("delete old jobs: %w", err)
		}
		return res.RowsAffected()
	})
}

// FailOrphanedSubmissions marks submissions FAILED when their newest job is dead
// and no pending or running job remains for them. This covers jobs that died by
// lease expiry, where no worker was left to record the failure.
func (r *JobRepo) FailOrphanedSubmissions(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	return r.withReaperLock(ctx, advisoryLockReaperReconcile, func(tx *sql.Tx) (int64, error) {
		now := r.timeProvider.Now().UTC()

		subs, err := tx.ExecContext(ctx, `
			WITH orphaned AS (
				SELECT s.id, lj.last_error
				FROM subscriptions s
				CROSS JOIN LATERAL (
					SELECT j.status, j.last_error FROM jobs j
					WHERE j.subject_id = s.id AND j.kind = 'newsletter_sync'
					ORDER BY j.created_at DESC
					LIMIT 1
				) lj
				WHERE s.status = 'PENDING'
				  AND lj.status = 'dead'
				  AND NOT EXISTS (
					SELECT 1 FROM jobs a
					WHERE a.subject_id = s.id AND a.status IN ('pending', 'running')
				  )
				LIMIT $1
				FOR UPDATE OF s SKIP LOCKED
			)
			UPDATE subscriptions s
			SET status = 'FAILED',
			    sync_error = $2::text || COALESCE(o.last_error, 'unknown error'),
			    updated_at = $3
			FROM orphaned o
			WHERE s.id = o.id
		`, batchSize, orphanedSubmissionErrorPrefix, now)
		if err != nil {
			return 0, fmt.Errorf("fail orphaned subscriptions: %w", err)
		}
		nSubs, err := subs.RowsAffected()
		if err != nil {
			return 0, err
		}

		assess, err := tx.ExecContext(ctx, `
			WITH orphaned AS (
				SELECT s.id, lj.last_error
				FROM assessment_submissions s
				CROSS JOIN LATERAL (
					SELECT j.status, j.last_error FROM jobs j
					WHERE j.subject_id = s.id AND j.kind = 'assessment_score'
					ORDER BY j.created_at DESC
					LIMIT 1
				) lj
				WHERE s.status IN ('SUBMITTED', 'PROCESSING')
				  AND lj.status = 'dead'
				  AND NOT EXISTS (
					SELECT 1 FROM jobs a
					WHERE a.subject_id = s.id AND a.status IN ('pending', 'running')
				  )
				LIMIT $1
				FOR UPDATE OF s SKIP LOCKED
			)
			UPDATE assessment_submissions s
			SET status = 'FAILED',
			    processing_error = $2::text || COALESCE(o.last_error, 'unknown error'),
			    updated_at = $3
			FROM orphaned o
			WHERE s.id = o.id
		`, batchSize, orphanedSubmissionErrorPrefix, now)
		if err != nil {
			return 0, fmt.Errorf("fail orphaned assessments: %w", err)
		}
		nAssess, err := assess.RowsAffected()
		if err != nil {
			return 0, err
		}
		return nSubs + nAssess, nil
	})
}
