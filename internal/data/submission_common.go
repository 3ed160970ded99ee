package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/target/intake-pipeline/internal/domain/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// submissionStats folds the trigger-maintained status counters for one submission kind.
func submissionStats(ctx context.Context, db *sql.DB, kind model.SubmissionKind) (*model.SubmissionStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, count
		FROM submission_status_counts
		WHERE kind = $1
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("query %s status counts: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out model.SubmissionStats
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan %s status count: %w", kind, err)
		}
		foldStatusCount(&out, kind, status, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s status counts: %w", kind, err)
	}
	return &out, nil
}

func foldStatusCount(out *model.SubmissionStats, kind model.SubmissionKind, status string, n int) {
	if n <= 0 {
		return
	}
	out.Total += n
	switch kind {
	case model.SubmissionKindNewsletter:
		switch model.SubscriptionStatus(status) {
		case model.SubscriptionConfirmed:
			out.Succeeded += n
		case model.SubscriptionPending:
			out.InProgress += n
		case model.SubscriptionFailed:
			out.Failed += n
		}
	case model.SubmissionKindAssessment:
		switch model.AssessmentStatus(status) {
		case model.AssessmentCompleted:
			out.Succeeded += n
		case model.AssessmentSubmitted, model.AssessmentProcessing:
			out.InProgress += n
		case model.AssessmentFailed:
			out.Failed += n
		}
	}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
