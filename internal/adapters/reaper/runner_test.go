package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/intake-pipeline/config"
	"github.com/target/intake-pipeline/internal/mocks"
)

func TestNewRunner_RequiresStorage(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
}

func TestRunner_RunsUntilCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockReaperRepository(ctrl)
	repo.EXPECT().RequeueExpiredLeases(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()
	repo.EXPECT().FailOrphanedSubmissions(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()
	repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	r, err := NewRunner(RunnerOptions{Repo: repo, Config: config.ReaperConfig{Interval: time.Second}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = r.Run(ctx)
	// A deadline is reported; a plain cancel is a clean stop.
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
