package data

import (
	"database/sql"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"math"
	"time"

	"github.com/target/intake-pipeline/internal/domain/model"
)

// DefaultMaxAttempts is applied when an enqueue request leaves MaxAttempts at zero.
const DefaultMaxAttempts = 5

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	DefaultMaxAttempts int
	Logger             *slog.Logger
	TimeProvider       TimeProvider
}

// JobRepo provides database operations for the durable job queue.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = DefaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `
  id,
  kind,
  status,
  subject_id,
  payload,
  attempt,
  max_attempts,
  available_at,
  started_at,
  completed_at,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`

func notifyChannel(kind model.JobKind) string {
	return "job_added_" + string(kind)
}

type rowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	payload                                []byte
	lastError                              sql.NullString
	startedAt, completedAt, leaseExpiresAt sql.NullTime
}

func scanJob(scanner rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var d jobRowData
	if err := scanner.Scan(
		&job.ID,
		&job.Kind,
		&job.Status,
		&job.SubjectID,
		&d.payload,
		&job.Attempt,
		&job.MaxAttempts,
		&job.AvailableAt,
		&d.startedAt,
		&d.completedAt,
		&d.lastError,
		&d.leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Payload = cloneJSON(d.payload)
	job.LastError = nullableString(d.lastError)
	job.StartedAt = nullableTime(d.startedAt)
	job.CompletedAt = nullableTime(d.completedAt)
	job.LeaseExpiresAt = nullableTime(d.leaseExpiresAt)
	job.AvailableAt = job.AvailableAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// lockMinor hashes a string into the positive int32 range used for advisory lock minor keys.
func lockMinor(s string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum32() & uint32(math.MaxInt32))
}
