package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/target/intake-pipeline/internal/core"
	"github.com/target/intake-pipeline/internal/data/pgxutil"
	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

const (
	defaultDeadListLimit = 50
	maxDeadListLimit     = 500

	leaseExpiredError = "lease expired"
)

const insertJobSQL = `
  INSERT INTO jobs (kind, status, subject_id, payload, attempt, max_attempts, available_at, created_at, updated_at)
  VALUES ($1, 'pending', $2, $3, 0, $4, $5, $6, $6)
  RETURNING ` + jobColumns

// SQL used by ReserveNext to atomically lease the next available job.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE kind = $1 AND status = 'pending' AND available_at <= $2
    ORDER BY available_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'running',
    started_at = $2,
    lease_expires_at = $3,
    updated_at = $2
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.kind, j.status, j.subject_id, j.payload, j.attempt, j.max_attempts, j.available_at,
    j.started_at, j.completed_at, j.last_error, j.lease_expires_at, j.created_at, j.updated_at`

// expireLeasesSet charges an attempt for a lapsed lease and dead-letters the job once attempts run out.
const expireLeasesSet = `
  SET
    attempt = attempt + 1,
    status = CASE WHEN attempt + 1 >= max_attempts THEN 'dead' ELSE 'pending' END,
    completed_at = CASE WHEN attempt + 1 >= max_attempts THEN $1::timestamptz ELSE NULL END,
    available_at = $1::timestamptz,
    last_error = '` + leaseExpiredError + `',
    lease_expires_at = NULL,
    updated_at = $1::timestamptz`

type insertJobParams struct {
	Req         *model.EnqueueRequest
	Payload     []byte
	MaxAttempts int
}

func (r *JobRepo) prepareInsert(req *model.EnqueueRequest) (*insertJobParams, error) {
	if req == nil {
		return nil, errors.New("enqueue request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.cfg.DefaultMaxAttempts
	}
	return &insertJobParams{Req: req, Payload: payload, MaxAttempts: maxAttempts}, nil
}

func (r *JobRepo) insertArgs(p *insertJobParams) []any {
	now := r.timeProvider.Now().UTC()
	return []any{
		p.Req.Kind,
		p.Req.SubjectID,
		p.Payload,
		p.MaxAttempts,
		now.Add(p.Req.Delay),
		now,
	}
}

// Enqueue inserts a pending job and wakes listeners for its kind.
func (r *JobRepo) Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Job, error) {
	p, err := r.prepareInsert(req)
	if err != nil {
		return nil, err
	}

	var job *model.Job
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			j, scanErr := scanJob(tx.QueryRow(ctx, insertJobSQL, r.insertArgs(p)...))
			if scanErr != nil {
				return fmt.Errorf("insert job: %w", scanErr)
			}
			if _, notifyErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel(j.Kind), j.ID); notifyErr != nil {
				return fmt.Errorf("send job notification: %w", notifyErr)
			}
			job = j
			return nil
		},
	}); txErr != nil {
		return nil, apperrors.MapDBError(txErr)
	}
	return job, nil
}

// EnqueueInTx inserts a job within an existing SQL transaction. The notification
// is delivered by Postgres only when the caller commits.
func (r *JobRepo) EnqueueInTx(ctx context.Context, tx *sql.Tx, req *model.EnqueueRequest) (*model.Job, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	p, err := r.prepareInsert(req)
	if err != nil {
		return nil, err
	}

	job, err := scanJob(tx.QueryRowContext(ctx, insertJobSQL, r.insertArgs(p)...))
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("insert job: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel(job.Kind), job.ID); err != nil {
		return nil, fmt.Errorf("send job notification: %w", err)
	}
	return job, nil
}

// Advisory lock namespace for per-kind lease expiry so reservers of different kinds never contend.
const advisoryLockRequeueMajor int64 = 1001

// requeueExpired expires lapsed leases of one kind and returns the number of jobs touched.
func (r *JobRepo) requeueExpired(ctx context.Context, kind model.JobKind) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockRequeueMajor, lockMinor(string(kind))).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			res, err := tx.ExecContext(ctx, `
				UPDATE jobs`+expireLeasesSet+`
				WHERE kind = $2 AND status = 'running'
				  AND lease_expires_at IS NOT NULL
				  AND lease_expires_at < $1::timestamptz
			`, r.timeProvider.Now().UTC(), kind)
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			rowsAffected, err = res.RowsAffected()
			return err
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// ReserveNext leases the next available job of the given kind. It returns
// model.ErrNoJobsAvailable when the queue is empty.
func (r *JobRepo) ReserveNext(ctx context.Context, kind model.JobKind, leaseSeconds int) (*model.Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid job kind: %s", kind)
	}
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}

	if n, err := r.requeueExpired(ctx, kind); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	} else if n > 0 {
		r.logger.WarnContext(ctx, "expired job leases", "kind", kind, "count", n)
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			leaseExpiresAt := now.Add(time.Duration(leaseSeconds) * time.Second)

			j, scanErr := scanJob(tx.QueryRow(ctx, reserveNextUpdateSQL, kind, now, leaseExpiresAt))
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if scanErr != nil {
				return fmt.Errorf("reserve job: %w", scanErr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat extends the lease on a running job. It returns false when the job is no longer running.
func (r *JobRepo) Heartbeat(ctx context.Context, id string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, id, now.Add(time.Duration(leaseSeconds)*time.Second), now)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}
	return affected(res, "heartbeat")
}

// Ack marks a running job completed.
func (r *JobRepo) Ack(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $2,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("ack job: %w", err)
	}
	return affected(res, "ack")
}

// Nack records a failed attempt. The job returns to pending after RetryDelay, or
// moves to dead when the attempt was its last.
func (r *JobRepo) Nack(ctx context.Context, params core.NackParams) (model.NackOutcome, error) {
	if params.RetryDelay < 0 {
		return model.NackOutcome{}, errors.New("retry delay must be >= 0")
	}

	now := r.timeProvider.Now().UTC()
	var (
		status      string
		out         model.NackOutcome
		availableAt time.Time
	)
	err := r.DB.QueryRowContext(ctx, `
      UPDATE jobs
      SET
        last_error = $2,
        attempt = attempt + 1,
        status = CASE WHEN attempt + 1 >= max_attempts THEN 'dead' ELSE 'pending' END,
        completed_at = CASE WHEN attempt + 1 >= max_attempts THEN $3::timestamptz ELSE NULL END,
        available_at = CASE WHEN attempt + 1 >= max_attempts THEN available_at ELSE $4::timestamptz END,
        lease_expires_at = NULL,
        updated_at = $3::timestamptz
      WHERE id = $1 AND status = 'running'
      RETURNING status, attempt, available_at
    `, params.ID, params.Err, now, now.Add(params.RetryDelay)).Scan(&status, &out.Attempt, &availableAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NackOutcome{}, nil
	}
	if err != nil {
		return model.NackOutcome{}, fmt.Errorf("nack job: %w", err)
	}

	out.Found = true
	out.Dead = model.JobStatus(status) == model.JobStatusDead
	out.AvailableAt = availableAt.UTC()
	return out, nil
}

// DeadLetter moves a running job straight to dead, charging the current attempt.
func (r *JobRepo) DeadLetter(ctx context.Context, id, errMsg string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'dead',
		    attempt = attempt + 1,
		    last_error = $2,
		    completed_at = $3,
		    lease_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, id, errMsg, now)
	if err != nil {
		return false, fmt.Errorf("dead-letter job: %w", err)
	}
	return affected(res, "dead-letter")
}

// Release returns a running job to pending without charging an attempt. Used on shutdown.
func (r *JobRepo) Release(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending',
		    available_at = $2,
		    lease_expires_at = NULL,
		    updated_at = $2
		WHERE id = $1 AND status = 'running'
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("release job: %w", err)
	}
	return affected(res, "release")
}

// Requeue gives a dead job a fresh set of attempts.
func (r *JobRepo) Requeue(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	var kind model.JobKind
	err := r.DB.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'pending',
		    attempt = 0,
		    available_at = $2,
		    started_at = NULL,
		    completed_at = NULL,
		    last_error = NULL,
		    lease_expires_at = NULL,
		    updated_at = $2
		WHERE id = $1 AND status = 'dead'
		RETURNING kind
	`, id, now).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("requeue job: %w", err)
	}

	if _, notifyErr := r.DB.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel(kind), id); notifyErr != nil {
		r.logger.WarnContext(ctx, "notify requeued job failed", "job_id", id, "error", notifyErr)
	}
	return true, nil
}

// Stats returns job counts per state. An empty kind counts every kind.
func (r *JobRepo) Stats(ctx context.Context, kind model.JobKind) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'dead')      AS dead
  FROM jobs
  WHERE ($1::text = '' OR kind = $1::text)
  `, string(kind)).Scan(&s.Pending, &s.Running, &s.Completed, &s.Dead)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

// ListDead returns dead-lettered jobs, most recently failed first.
func (r *JobRepo) ListDead(ctx context.Context, opts model.ListDeadJobsOptions) ([]*model.Job, error) {
	limit := opts.Limit
	switch {
	case limit <= 0:
		limit = defaultDeadListLimit
	case limit > maxDeadListLimit:
		limit = maxDeadListLimit
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'dead' AND ($1::text = '' OR kind = $1::text)
		ORDER BY completed_at DESC NULLS LAST, created_at DESC
		LIMIT $2
	`, string(opts.Kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list dead jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*model.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan dead job: %w", scanErr)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead jobs: %w", err)
	}
	return jobs, nil
}

// WaitForNotification blocks until a job of the given kind is enqueued or ctx ends.
func (r *JobRepo) WaitForNotification(ctx context.Context, kind model.JobKind) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	channel := notifyChannel(kind)
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		var scanErr error
		job, scanErr = scanJob(pgxConn.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get job: %w", err))
	}
	return job, nil
}

func affected(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}
