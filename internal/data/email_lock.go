package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/intake-pipeline/internal/data/pgxutil"
)

// Advisory lock namespace for per-email intake serialization.
const advisoryLockIntakeMajor int64 = 2001

// EmailLockRepo serializes intake decisions per email with transaction-scoped advisory locks.
type EmailLockRepo struct {
	DB *sql.DB
}

// NewEmailLockRepo creates an EmailLockRepo.
func NewEmailLockRepo(db *sql.DB) *EmailLockRepo {
	return &EmailLockRepo{DB: db}
}

// WithEmailLock runs fn inside a transaction holding an exclusive lock on email.
// The lock is released when the transaction commits or rolls back.
func (r *EmailLockRepo) WithEmailLock(
	ctx context.Context,
	email string,
	fn func(ctx context.Context, tx *sql.Tx) error,
) error {
	if email == "" {
		return errors.New("email is required")
	}
	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockIntakeMajor, lockMinor(email)); err != nil {
				return fmt.Errorf("acquire email lock: %w", err)
			}
			return fn(ctx, tx)
		},
	})
}
