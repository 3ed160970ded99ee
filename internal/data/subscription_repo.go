package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

const subscriptionColumns = `
  id,
  email,
  source,
  status,
  external_synced,
  sync_error,
  synced_at,
  ip_address,
  user_agent,
  created_at,
  updated_at
`

// SubscriptionRepo persists newsletter subscriptions.
type SubscriptionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewSubscriptionRepo creates a SubscriptionRepo. Only Logger and TimeProvider are read from cfg.
func NewSubscriptionRepo(db *sql.DB, cfg RepoConfig) *SubscriptionRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{DB: db, timeProvider: tp, logger: logger.With("component", "subscription_repo")}
}

func scanSubscription(scanner rowScanner) (*model.Subscription, error) {
	s := &model.Subscription{}
	var (
		syncError sql.NullString
		syncedAt  sql.NullTime
	)
	if err := scanner.Scan(
		&s.ID,
		&s.Email,
		&s.Source,
		&s.Status,
		&s.ExternalSynced,
		&syncError,
		&syncedAt,
		&s.IPAddress,
		&s.UserAgent,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.SyncError = nullableString(syncError)
	s.SyncedAt = nullableTime(syncedAt)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func (r *SubscriptionRepo) getOne(ctx context.Context, q querier, where string, arg any) (*model.Subscription, error) {
	s, err := scanSubscription(q.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("subscription not found")
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get subscription: %w", err))
	}
	return s, nil
}

// GetByID returns the subscription with the given id.
func (r *SubscriptionRepo) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFound("subscription not found")
	}
	return r.getOne(ctx, r.DB, "id = $1", id)
}

// GetByEmail returns the subscription for a normalized email.
func (r *SubscriptionRepo) GetByEmail(ctx context.Context, email string) (*model.Subscription, error) {
	return r.getOne(ctx, r.DB, "email = $1", email)
}

// GetByEmailTx is GetByEmail within the caller's transaction.
func (r *SubscriptionRepo) GetByEmailTx(ctx context.Context, tx *sql.Tx, email string) (*model.Subscription, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	return r.getOne(ctx, tx, "email = $1", email)
}

// CreateTx inserts a PENDING subscription. A concurrent insert of the same email
// surfaces as a conflict from the unique index.
func (r *SubscriptionRepo) CreateTx(
	ctx context.Context,
	tx *sql.Tx,
	params model.CreateSubscriptionParams,
) (*model.Subscription, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	if strings.TrimSpace(params.Email) == "" {
		return nil, apperrors.ValidationField("email", "email is required")
	}

	now := r.timeProvider.Now().UTC()
	s, err := scanSubscription(tx.QueryRowContext(ctx, `
		INSERT INTO subscriptions (id, email, source, status, ip_address, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, 'PENDING', $4, $5, $6, $6)
		RETURNING `+subscriptionColumns,
		uuid.NewString(), params.Email, params.Source, params.Meta.IPAddress, params.Meta.UserAgent, now,
	))
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("create subscription: %w", err))
	}
	return s, nil
}

// ResetPendingTx moves a FAILED subscription back to PENDING within the caller's transaction.
func (r *SubscriptionRepo) ResetPendingTx(ctx context.Context, tx *sql.Tx, id string) error {
	if tx == nil {
		return ErrTxRequired
	}
	ok, err := r.resetPending(ctx, tx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Conflict("subscription is not in FAILED state")
	}
	return nil
}

// ResetPending moves a FAILED subscription back to PENDING. It reports false when
// the subscription was not FAILED.
func (r *SubscriptionRepo) ResetPending(ctx context.Context, id string) (bool, error) {
	return r.resetPending(ctx, r.DB, id)
}

func (r *SubscriptionRepo) resetPending(ctx context.Context, q querier, id string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = 'PENDING',
		    sync_error = NULL,
		    updated_at = $2
		WHERE id = $1 AND status = 'FAILED'
	`, id, r.timeProvider.Now().UTC())
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("reset subscription: %w", err))
	}
	return affected(res, "reset subscription")
}

// Confirm marks a PENDING subscription as synced to the CRM.
func (r *SubscriptionRepo) Confirm(ctx context.Context, params model.ConfirmSubscriptionParams) (bool, error) {
	syncedAt := params.SyncedAt
	if syncedAt.IsZero() {
		syncedAt = r.timeProvider.Now()
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = 'CONFIRMED',
		    external_synced = TRUE,
		    synced_at = $2,
		    sync_error = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'PENDING'
	`, params.ID, syncedAt.UTC(), r.timeProvider.Now().UTC())
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("confirm subscription: %w", err))
	}
	return affected(res, "confirm subscription")
}

// MarkFailed records the final sync failure on a PENDING subscription.
func (r *SubscriptionRepo) MarkFailed(ctx context.Context, id, errMsg string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = 'FAILED',
		    sync_error = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'PENDING'
	`, id, errMsg, r.timeProvider.Now().UTC())
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("mark subscription failed: %w", err))
	}
	return affected(res, "mark subscription failed")
}

// Stats returns subscription counts per outcome.
func (r *SubscriptionRepo) Stats(ctx context.Context) (*model.SubmissionStats, error) {
	return submissionStats(ctx, r.DB, model.SubmissionKindNewsletter)
}

// ListRecent returns the newest subscriptions, optionally filtered by status.
func (r *SubscriptionRepo) ListRecent(ctx context.Context, opts model.ListRecentOptions) ([]*model.Subscription, error) {
	opts = opts.Normalize()
	if opts.Status != "" && !model.SubscriptionStatus(opts.Status).Valid() {
		return nil, apperrors.ValidationField("status", "unknown subscription status")
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC
		LIMIT $2
	`, opts.Status, opts.Limit)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list subscriptions: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := make([]*model.Subscription, 0, opts.Limit)
	for rows.Next() {
		s, scanErr := scanSubscription(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan subscription: %w", scanErr)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return out, nil
}
