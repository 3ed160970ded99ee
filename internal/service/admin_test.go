package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
	"github.com/target/intake-pipeline/internal/mocks"
	"github.com/target/intake-pipeline/internal/testutil"
)

type adminFixture struct {
	svc    *AdminService
	subs   *mocks.MockSubscriptionRepository
	assess *mocks.MockAssessmentRepository
	jobs   *mocks.MockJobRepository
	cache  *mocks.MockCacheRepository
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &adminFixture{
		subs:   mocks.NewMockSubscriptionRepository(ctrl),
		assess: mocks.NewMockAssessmentRepository(ctrl),
		jobs:   mocks.NewMockJobRepository(ctrl),
		cache:  mocks.NewMockCacheRepository(ctrl),
	}
	jobSvc, _ := newTestJobService(t, f.jobs)
	status, err := NewStatusService(StatusServiceOptions{Subscriptions: f.subs, Assessments: f.assess, Cache: f.cache})
	require.NoError(t, err)
	f.svc, err = NewAdminService(AdminServiceOptions{
		Subscriptions: f.subs,
		Assessments:   f.assess,
		Jobs:          jobSvc,
		Status:        status,
	})
	require.NoError(t, err)
	return f
}

func deadJob(kind model.JobKind, subjectID string) *model.Job {
	job := testutil.NewJob(kind, subjectID, []byte(`{}`))
	job.Status = model.JobStatusDead
	job.Attempt = 3
	job.LastError = testutil.StringPtr("crm down")
	return job
}

func TestAdminService_RetryJob(t *testing.T) {
	ctx := context.Background()

	t.Run("dead newsletter job resets subscription and requeues", func(t *testing.T) {
		f := newAdminFixture(t)
		job := deadJob(model.JobKindNewsletterSync, "s1")
		gomock.InOrder(
			f.jobs.EXPECT().GetByID(ctx, job.ID).Return(job, nil),
			f.subs.EXPECT().ResetPending(ctx, "s1").Return(true, nil),
			f.jobs.EXPECT().Requeue(ctx, job.ID).Return(true, nil),
			f.cache.EXPECT().Delete(ctx, "status:newsletter:s1").Return(true, nil),
		)

		got, err := f.svc.RetryJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, got.Status)
		assert.Zero(t, got.Attempt)
		assert.Nil(t, got.LastError)
	})

	t.Run("dead assessment job resets submission", func(t *testing.T) {
		f := newAdminFixture(t)
		job := deadJob(model.JobKindAssessmentScore, "a1")
		f.jobs.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
		f.assess.EXPECT().ResetForRetry(ctx, "a1").Return(true, nil)
		f.jobs.EXPECT().Requeue(ctx, job.ID).Return(true, nil)
		f.cache.EXPECT().Delete(ctx, "status:assessment:a1").Return(false, nil)

		_, err := f.svc.RetryJob(ctx, job.ID)
		require.NoError(t, err)
	})

	t.Run("non-dead job is a conflict", func(t *testing.T) {
		f := newAdminFixture(t)
		job := deadJob(model.JobKindNewsletterSync, "s1")
		job.Status = model.JobStatusRunning
		f.jobs.EXPECT().GetByID(ctx, job.ID).Return(job, nil)

		_, err := f.svc.RetryJob(ctx, job.ID)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("lost requeue race is a conflict", func(t *testing.T) {
		f := newAdminFixture(t)
		job := deadJob(model.JobKindNewsletterSync, "s1")
		f.jobs.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
		f.subs.EXPECT().ResetPending(ctx, "s1").Return(true, nil)
		f.jobs.EXPECT().Requeue(ctx, job.ID).Return(false, nil)

		_, err := f.svc.RetryJob(ctx, job.ID)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("unknown job is not found", func(t *testing.T) {
		f := newAdminFixture(t)
		f.jobs.EXPECT().GetByID(ctx, "missing").Return(nil, apperrors.NotFound("job not found"))

		_, err := f.svc.RetryJob(ctx, "missing")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("reset failure stops the retry", func(t *testing.T) {
		f := newAdminFixture(t)
		job := deadJob(model.JobKindAssessmentScore, "a1")
		f.jobs.EXPECT().GetByID(ctx, job.ID).Return(job, nil)
		f.assess.EXPECT().ResetForRetry(ctx, "a1").Return(false, errors.New("db down"))

		_, err := f.svc.RetryJob(ctx, job.ID)
		require.Error(t, err)
	})
}

func TestAdminService_RecentNormalizesStatus(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	f.subs.EXPECT().ListRecent(ctx, model.ListRecentOptions{Limit: 10, Status: "FAILED"}).Return(nil, nil)
	_, err := f.svc.RecentSubscriptions(ctx, model.ListRecentOptions{Limit: 10, Status: " failed "})
	require.NoError(t, err)

	f.assess.EXPECT().ListRecent(ctx, model.ListRecentOptions{Limit: 5, Status: "COMPLETED"}).Return(nil, nil)
	_, err = f.svc.RecentAssessments(ctx, model.ListRecentOptions{Limit: 5, Status: "completed"})
	require.NoError(t, err)
}

func TestAdminService_StatsDelegate(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	want := &model.SubmissionStats{Total: 4}
	f.subs.EXPECT().Stats(ctx).Return(want, nil)
	got, err := f.svc.NewsletterStats(ctx)
	require.NoError(t, err)
	assert.Same(t, want, got)

	f.jobs.EXPECT().Stats(ctx, model.JobKindAssessmentScore).Return(&model.JobStats{Pending: 2}, nil)
	stats, err := f.svc.JobStats(ctx, model.JobKindAssessmentScore)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
}
