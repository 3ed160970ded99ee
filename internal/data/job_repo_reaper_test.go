package data

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/intake-pipeline/internal/core"
	"github.com/target/intake-pipeline/internal/domain/model"
)

func expectReaperLock(mock sqlmock.Sqlmock, minor int, acquired bool) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_xact_lock($1, $2)")).
		WithArgs(advisoryLockReaperMajor, minor).
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(acquired))
}

func TestJobRepo_DeleteOldJobs(t *testing.T) {
	repo, mock := newJobRepoMock(t)
	expectReaperLock(mock, advisoryLockReaperDelete, true)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM jobs")).
		WithArgs("completed", testNow.Add(-24*time.Hour), 100).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	n, err := repo.DeleteOldJobs(context.Background(), core.DeleteOldJobsParams{
		Status:    model.JobStatusCompleted,
		MaxAge:    24 * time.Hour,
		BatchSize: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_DeleteOldJobs_LockHeldElsewhere(t *testing.T) {
	repo, mock := newJobRepoMock(t)
	expectReaperLock(mock, advisoryLockReaperDelete, false)
	mock.ExpectCommit()

	n, err := repo.DeleteOldJobs(context.Background(), core.DeleteOldJobsParams{
		Status:    model.JobStatusDead,
		MaxAge:    time.Hour,
		BatchSize: 10,
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_DeleteOldJobs_InvalidParams(t *testing.T) {
	repo, _ := newJobRepoMock(t)
	ctx := context.Background()

	_, err := repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{Status: "bogus", MaxAge: time.Hour, BatchSize: 1})
	assert.Error(t, err)
	_, err = repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{Status: model.JobStatusDead, MaxAge: time.Hour})
	assert.Error(t, err)
	_, err = repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{Status: model.JobStatusDead, BatchSize: 1})
	assert.Error(t, err)
}

func TestJobRepo_RequeueExpiredLeases(t *testing.T) {
	repo, mock := newJobRepoMock(t)
	expectReaperLock(mock, advisoryLockReaperLeases, true)
	mock.ExpectExec(regexp.QuoteMeta("last_error = '"+leaseExpiredError+"'")).
		WithArgs(testNow, 50).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.RequeueExpiredLeases(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_FailOrphanedSubmissions(t *testing.T) {
	repo, mock := newJobRepoMock(t)
	expectReaperLock(mock, advisoryLockReaperReconcile, true)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE subscriptions s")).
		WithArgs(25, orphanedSubmissionErrorPrefix, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_submissions s")).
		WithArgs(25, orphanedSubmissionErrorPrefix, testNow).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.FailOrphanedSubmissions(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_FailOrphanedSubmissions_RollsBackOnError(t *testing.T) {
	repo, mock := newJobRepoMock(t)
	expectReaperLock(mock, advisoryLockReaperReconcile, true)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE subscriptions s")).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.FailOrphanedSubmissions(context.Background(), 25)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
