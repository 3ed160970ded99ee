package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

const assessmentColumns = `
  id,
  email,
  company_name,
  contact_name,
  phone,
  responses,
  overall_score,
  category_scores,
  status,
  report_generated,
  report_url,
  report_sent_at,
  processing_error,
  ip_address,
  user_agent,
  source,
  created_at,
  updated_at
`

// AssessmentRepo persists assessment submissions.
type AssessmentRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewAssessmentRepo creates an AssessmentRepo. Only Logger and TimeProvider are read from cfg.
func NewAssessmentRepo(db *sql.DB, cfg RepoConfig) *AssessmentRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AssessmentRepo{DB: db, timeProvider: tp, logger: logger.With("component", "assessment_repo")}
}

func scanAssessment(scanner rowScanner) (*model.AssessmentSubmission, error) {
	a := &model.AssessmentSubmission{}
	var (
		responses, categoryScores []byte
		reportURL, procErr        sql.NullString
		reportSentAt              sql.NullTime
	)
	if err := scanner.Scan(
		&a.ID,
		&a.Email,
		&a.CompanyName,
		&a.ContactName,
		&a.Phone,
		&responses,
		&a.OverallScore,
		&categoryScores,
		&a.Status,
		&a.ReportGenerated,
		&reportURL,
		&reportSentAt,
		&procErr,
		&a.IPAddress,
		&a.UserAgent,
		&a.Source,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &a.Responses); err != nil {
			return nil, fmt.Errorf("decode responses: %w", err)
		}
	}
	if len(categoryScores) > 0 {
		// Stored as an array so category order survives JSONB normalization.
		var scores []model.CategoryScore
		if err := json.Unmarshal(categoryScores, &scores); err != nil {
			return nil, fmt.Errorf("decode category scores: %w", err)
		}
		a.CategoryScores = model.CategoryScores(scores)
	}
	a.ReportURL = nullableString(reportURL)
	a.ReportSentAt = nullableTime(reportSentAt)
	a.ProcessingError = nullableString(procErr)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func encodeCategoryScores(c model.CategoryScores) ([]byte, error) {
	scores := []model.CategoryScore(c)
	if scores == nil {
		scores = []model.CategoryScore{}
	}
	return json.Marshal(scores)
}

func (r *AssessmentRepo) getOne(ctx context.Context, q querier, query string, args ...any) (*model.AssessmentSubmission, error) {
	a, err := scanAssessment(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("assessment not found")
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get assessment: %w", err))
	}
	return a, nil
}

// GetByID returns the submission with the given id.
func (r *AssessmentRepo) GetByID(ctx context.Context, id string) (*model.AssessmentSubmission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFound("assessment not found")
	}
	return r.getOne(ctx, r.DB, `SELECT `+assessmentColumns+` FROM assessment_submissions WHERE id = $1`, id)
}

// GetLatestByEmail returns the most recent submission for a normalized email.
func (r *AssessmentRepo) GetLatestByEmail(ctx context.Context, email string) (*model.AssessmentSubmission, error) {
	return r.getOne(ctx, r.DB, `
		SELECT `+assessmentColumns+`
		FROM assessment_submissions
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, email)
}

// LatestActiveSinceTx returns the newest non-FAILED submission for email created after since, or nil.
func (r *AssessmentRepo) LatestActiveSinceTx(
	ctx context.Context,
	tx *sql.Tx,
	email string,
	since time.Time,
) (*model.AssessmentSubmission, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	a, err := r.getOne(ctx, tx, `
		SELECT `+assessmentColumns+`
		FROM assessment_submissions
		WHERE email = $1 AND status <> 'FAILED' AND created_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`, email, since.UTC())
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	return a, err
}

// CreateTx inserts a SUBMITTED submission within the caller's transaction.
func (r *AssessmentRepo) CreateTx(
	ctx context.Context,
	tx *sql.Tx,
	params model.CreateAssessmentParams,
) (*model.AssessmentSubmission, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	req := params.Request
	responses, err := json.Marshal(req.Responses)
	if err != nil {
		return nil, fmt.Errorf("encode responses: %w", err)
	}

	now := r.timeProvider.Now().UTC()
	a, err := scanAssessment(tx.QueryRowContext(ctx, `
		INSERT INTO assessment_submissions (
			id, email, company_name, contact_name, phone, responses, status,
			ip_address, user_agent, source, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'SUBMITTED', $7, $8, $9, $10, $10)
		RETURNING `+assessmentColumns,
		uuid.NewString(), req.Email, req.CompanyName, req.ContactName, req.Phone, responses,
		params.Meta.IPAddress, params.Meta.UserAgent, req.Source, now,
	))
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("create assessment: %w", err))
	}
	return a, nil
}

func (r *AssessmentRepo) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("%s: %w", op, err))
	}
	return affected(res, op)
}

// MarkProcessing claims a SUBMITTED submission. A PROCESSING one is left as is and reported claimed.
func (r *AssessmentRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	return r.exec(ctx, "mark assessment processing", `
		UPDATE assessment_submissions
		SET status = 'PROCESSING',
		    updated_at = $2
		WHERE id = $1 AND status IN ('SUBMITTED', 'PROCESSING')
	`, id, r.timeProvider.Now().UTC())
}

// SaveScores persists computed scores on a PROCESSING submission.
func (r *AssessmentRepo) SaveScores(ctx context.Context, params model.SaveScoresParams) error {
	scores, err := encodeCategoryScores(params.CategoryScores)
	if err != nil {
		return fmt.Errorf("encode category scores: %w", err)
	}
	ok, err := r.exec(ctx, "save assessment scores", `
		UPDATE assessment_submissions
		SET overall_score = $2,
		    category_scores = $3,
		    updated_at = $4
		WHERE id = $1 AND status = 'PROCESSING'
	`, params.ID, params.OverallScore, scores, r.timeProvider.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFoundf("assessment %s is not processing", params.ID)
	}
	return nil
}

// Complete records the delivered report and moves the submission to COMPLETED in one update.
func (r *AssessmentRepo) Complete(ctx context.Context, params model.CompleteAssessmentParams) (bool, error) {
	return r.exec(ctx, "complete assessment", `
		UPDATE assessment_submissions
		SET status = 'COMPLETED',
		    report_generated = TRUE,
		    report_url = $2,
		    report_sent_at = $3,
		    processing_error = NULL,
		    updated_at = $4
		WHERE id = $1 AND status = 'PROCESSING'
	`, params.ID, params.ReportURL, nullTime(params.ReportSentAt), r.timeProvider.Now().UTC())
}

// MarkFailed records the final processing failure. Any scores already saved are kept.
func (r *AssessmentRepo) MarkFailed(ctx context.Context, id, errMsg string) (bool, error) {
	return r.exec(ctx, "mark assessment failed", `
		UPDATE assessment_submissions
		SET status = 'FAILED',
		    processing_error = $2,
		    updated_at = $3
		WHERE id = $1 AND status IN ('SUBMITTED', 'PROCESSING')
	`, id, errMsg, r.timeProvider.Now().UTC())
}

// ResetForRetry moves a FAILED submission back to SUBMITTED so a requeued job can reprocess it.
func (r *AssessmentRepo) ResetForRetry(ctx context.Context, id string) (bool, error) {
	return r.exec(ctx, "reset assessment", `
		UPDATE assessment_submissions
		SET status = 'SUBMITTED',
		    processing_error = NULL,
		    updated_at = $2
		WHERE id = $1 AND status = 'FAILED'
	`, id, r.timeProvider.Now().UTC())
}

// Stats returns assessment counts per outcome.
func (r *AssessmentRepo) Stats(ctx context.Context) (*model.SubmissionStats, error) {
	return submissionStats(ctx, r.DB, model.SubmissionKindAssessment)
}

// ListRecent returns the newest submissions, optionally filtered by status.
func (r *AssessmentRepo) ListRecent(
	ctx context.Context,
	opts model.ListRecentOptions,
) ([]*model.AssessmentSubmission, error) {
	opts = opts.Normalize()
	if opts.Status != "" && !model.AssessmentStatus(opts.Status).Valid() {
		return nil, apperrors.ValidationField("status", "unknown assessment status")
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM assessment_submissions
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC
		LIMIT $2
	`, opts.Status, opts.Limit)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list assessments: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := make([]*model.AssessmentSubmission, 0, opts.Limit)
	for rows.Next() {
		a, scanErr := scanAssessment(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan assessment: %w", scanErr)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}
	return out, nil
}
