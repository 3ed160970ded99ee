package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/intake-pipeline/internal/core"
	domainjob "github.com/target/intake-pipeline/internal/domain/job"
	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
	"github.com/target/intake-pipeline/internal/mocks"
)

type stubJobNotifier struct {
	subscribeCalls []model.JobKind
	stopCalled     bool
}

func (s *stubJobNotifier) Subscribe(kind model.JobKind) (func(), <-chan struct{}) {
	s.subscribeCalls = append(s.subscribeCalls, kind)
	ch := make(chan struct{})
	return func() { close(ch) }, ch
}

func (s *stubJobNotifier) StopAll() { s.stopCalled = true }

var _ domainjob.Notifier = (*stubJobNotifier)(nil)

func testBackoff(t *testing.T) *domainjob.BackoffPolicy {
	t.Helper()
	b, err := domainjob.NewBackoffPolicy(time.Second, time.Minute, false)
	require.NoError(t, err)
	return b
}

func newTestJobService(t *testing.T, repo core.JobRepository) (*JobService, *stubJobNotifier) {
	t.Helper()
	notifier := &stubJobNotifier{}
	svc, err := NewJobService(JobServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		Backoff:      testBackoff(t),
		Notifier:     notifier,
	})
	require.NoError(t, err)
	return svc, notifier
}

func TestNewJobService(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)

	t.Run("success with logger", func(t *testing.T) {
		svc, err := NewJobService(JobServiceOptions{
			Repo:         repo,
			DefaultLease: 30 * time.Second,
			Backoff:      testBackoff(t),
			Logger:       slog.Default(),
			Notifier:     &stubJobNotifier{},
		})
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, svc.leasePolicy.Default())
		assert.NotNil(t, svc.logger)
	})

	t.Run("default notifier uses repo as waiter", func(t *testing.T) {
		svc, err := NewJobService(JobServiceOptions{Repo: repo, DefaultLease: time.Second, Backoff: testBackoff(t)})
		require.NoError(t, err)
		assert.NotNil(t, svc.notifier)
		svc.StopAllListeners()
	})

	tests := []struct {
		name    string
		opts    JobServiceOptions
		wantErr string
	}{
		{name: "missing repo", opts: JobServiceOptions{DefaultLease: time.Second, Backoff: testBackoff(t)}, wantErr: "JobRepository is required"},
		{name: "missing backoff", opts: JobServiceOptions{Repo: repo, DefaultLease: time.Second}, wantErr: "BackoffPolicy is required"},
		{name: "missing lease", opts: JobServiceOptions{Repo: repo, Backoff: testBackoff(t)}, wantErr: "DefaultLease must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJobService(tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJobService_ReserveNext_ResolvesLease(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)
	ctx := context.Background()

	job := &model.Job{ID: "j1", Kind: model.JobKindNewsletterSync}
	repo.EXPECT().ReserveNext(ctx, model.JobKindNewsletterSync, 30).Return(job, nil)
	got, err := svc.ReserveNext(ctx, model.JobKindNewsletterSync, 0)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	repo.EXPECT().ReserveNext(ctx, model.JobKindNewsletterSync, 1).Return(nil, model.ErrNoJobsAvailable)
	_, err = svc.ReserveNext(ctx, model.JobKindNewsletterSync, 100*time.Millisecond)
	assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
}

func TestJobService_Fail(t *testing.T) {
	ctx := context.Background()
	job := &model.Job{ID: "j1", Kind: model.JobKindAssessmentScore, Attempt: 1, MaxAttempts: 3}

	t.Run("transient error nacks with backoff", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().
			Nack(ctx, core.NackParams{ID: "j1", Err: "report failed: s3 down", RetryDelay: 2 * time.Second}).
			Return(model.NackOutcome{Found: true, Attempt: 2}, nil)

		out, err := svc.Fail(ctx, job, apperrors.Transient(errors.New("s3 down"), "report failed"))
		require.NoError(t, err)
		assert.True(t, out.Applied)
		assert.False(t, out.Dead)
		assert.True(t, out.Retryable)
		assert.Equal(t, 2*time.Second, out.RetryDelay)
	})

	t.Run("last attempt goes dead", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().Nack(ctx, gomock.Any()).Return(model.NackOutcome{Found: true, Dead: true, Attempt: 3}, nil)

		out, err := svc.Fail(ctx, job, errors.New("boom"))
		require.NoError(t, err)
		assert.True(t, out.Dead)
		assert.Zero(t, out.RetryDelay)
	})

	t.Run("terminal error dead-letters", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().DeadLetter(ctx, "j1", "subscription not found").Return(true, nil)

		out, err := svc.Fail(ctx, job, apperrors.Terminal(nil, "subscription not found"))
		require.NoError(t, err)
		assert.True(t, out.Dead)
		assert.False(t, out.Retryable)
	})

	t.Run("lease lost", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().Nack(ctx, gomock.Any()).Return(model.NackOutcome{Found: false}, nil)

		out, err := svc.Fail(ctx, job, errors.New("boom"))
		require.NoError(t, err)
		assert.False(t, out.Applied)
	})

	t.Run("repo error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().Nack(ctx, gomock.Any()).Return(model.NackOutcome{}, errors.New("db down"))

		_, err := svc.Fail(ctx, job, errors.New("boom"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nack job j1")
	})

	t.Run("nil inputs", func(t *testing.T) {
		svc, _ := newTestJobService(t, mocks.NewMockJobRepository(gomock.NewController(t)))
		_, err := svc.Fail(ctx, nil, errors.New("x"))
		require.Error(t, err)
		_, err = svc.Fail(ctx, job, nil)
		require.Error(t, err)
	})
}

func TestJobService_StatsRejectsUnknownKind(t *testing.T) {
	svc, _ := newTestJobService(t, mocks.NewMockJobRepository(gomock.NewController(t)))
	_, err := svc.Stats(context.Background(), "browser")
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.ListDead(context.Background(), model.ListDeadJobsOptions{Kind: "browser"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestJobService_SubscribeAndStop(t *testing.T) {
	svc, notifier := newTestJobService(t, mocks.NewMockJobRepository(gomock.NewController(t)))
	unsub, _ := svc.Subscribe(model.JobKindNewsletterSync)
	unsub()
	svc.StopAllListeners()

	assert.Equal(t, []model.JobKind{model.JobKindNewsletterSync}, notifier.subscribeCalls)
	assert.True(t, notifier.stopCalled)
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "x", TruncateError("  x \n"))
	long := strings.Repeat("é", maxErrorLength)
	got := TruncateError(long)
	assert.LessOrEqual(t, len(got), maxErrorLength)
	assert.True(t, strings.HasPrefix(long, got))
}

func TestRedactEmail(t *testing.T) {
	tests := map[string]string{
		"alice@example.com": "a***@example.com",
		"":                  "",
		"nope":              "***",
		"@example.com":      "***",
		"élodie@exemple.fr": "é***@exemple.fr",
	}
	for in, want := range tests {
		assert.Equal(t, want, RedactEmail(in), in)
	}
}
