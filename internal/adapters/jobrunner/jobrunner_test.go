package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/intake-pipeline/internal/core"
	domainjob "github.com/target/intake-pipeline/internal/domain/job"
	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
	"github.com/target/intake-pipeline/internal/mocks"
	"github.com/target/intake-pipeline/internal/observability/metrics"
	"github.com/target/intake-pipeline/internal/service"
)

// memQueue is an in-memory core.JobRepository with the same state machine as the Postgres queue.
type memQueue struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newMemQueue() *memQueue { return &memQueue{jobs: make(map[string]*model.Job)} }

var _ core.JobRepository = (*memQueue)(nil)

func (q *memQueue) Enqueue(_ context.Context, req *model.EnqueueRequest) (*model.Job, error) {
	raw, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, err
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	now := time.Now()
	job := &model.Job{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		Status:      model.JobStatusPending,
		SubjectID:   req.SubjectID,
		Payload:     raw,
		MaxAttempts: maxAttempts,
		AvailableAt: now.Add(req.Delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (q *memQueue) get(id string) model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.jobs[id]
}

func (q *memQueue) GetByID(_ context.Context, id string) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job not found")
	}
	cp := *job
	return &cp, nil
}

func (q *memQueue) ReserveNext(_ context.Context, kind model.JobKind, leaseSeconds int) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for _, job := range q.jobs {
		if job.Kind != kind || job.Status != model.JobStatusPending || job.AvailableAt.After(now) {
			continue
		}
		lease := now.Add(time.Duration(leaseSeconds) * time.Second)
		job.Status = model.JobStatusRunning
		job.StartedAt = &now
		job.LeaseExpiresAt = &lease
		cp := *job
		return &cp, nil
	}
	return nil, model.ErrNoJobsAvailable
}

// WaitForNotification blocks until the wait window closes; the notifier then polls.
func (q *memQueue) WaitForNotification(ctx context.Context, _ model.JobKind) error {
	<-ctx.Done()
	return ctx.Err()
}

func (q *memQueue) running(id string) (*model.Job, bool) {
	job, ok := q.jobs[id]
	return job, ok && job.Status == model.JobStatusRunning
}

func (q *memQueue) Heartbeat(_ context.Context, id string, leaseSeconds int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.running(id)
	if !ok {
		return false, nil
	}
	lease := time.Now().Add(time.Duration(leaseSeconds) * time.Second)
	job.LeaseExpiresAt = &lease
	return true, nil
}

func (q *memQueue) Ack(_ context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.running(id)
	if !ok {
		return false, nil
	}
	now := time.Now()
	job.Status = model.JobStatusCompleted
	job.CompletedAt = &now
	job.LeaseExpiresAt = nil
	return true, nil
}

func (q *memQueue) Nack(_ context.Context, p core.NackParams) (model.NackOutcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.running(p.ID)
	if !ok {
		return model.NackOutcome{}, nil
	}
	job.Attempt++
	msg := p.Err
	job.LastError = &msg
	job.LeaseExpiresAt = nil
	if job.Attempt >= job.MaxAttempts {
		job.Status = model.JobStatusDead
	} else {
		job.Status = model.JobStatusPending
		job.AvailableAt = time.Now().Add(p.RetryDelay)
	}
	return model.NackOutcome{
		Found:       true,
		Dead:        job.Status == model.JobStatusDead,
		Attempt:     job.Attempt,
		AvailableAt: job.AvailableAt,
	}, nil
}

func (q *memQueue) DeadLetter(_ context.Context, id, errMsg string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.running(id)
	if !ok {
		return false, nil
	}
	job.Attempt++
	job.Status = model.JobStatusDead
	job.LastError = &errMsg
	job.LeaseExpiresAt = nil
	return true, nil
}

func (q *memQueue) Release(_ context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.running(id)
	if !ok {
		return false, nil
	}
	job.Status = model.JobStatusPending
	job.LeaseExpiresAt = nil
	return true, nil
}

func (q *memQueue) Stats(context.Context, model.JobKind) (*model.JobStats, error) {
	return &model.JobStats{}, nil
}

func (q *memQueue) ListDead(context.Context, model.ListDeadJobsOptions) ([]*model.Job, error) {
	return nil, nil
}

func (q *memQueue) Requeue(context.Context, string) (bool, error) { return false, nil }

// funcHandler adapts closures to service.JobHandler.
type funcHandler struct {
	kind      model.JobKind
	handle    func(ctx context.Context, job *model.Job) error
	mu        sync.Mutex
	exhausted []string
}

func (h *funcHandler) Kind() model.JobKind { return h.kind }

func (h *funcHandler) Handle(ctx context.Context, job *model.Job) error { return h.handle(ctx, job) }

func (h *funcHandler) Exhausted(_ context.Context, _ *model.Job, errMsg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exhausted = append(h.exhausted, errMsg)
	return nil
}

func (h *funcHandler) exhaustedCalls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.exhausted...)
}

func newTestJobService(t *testing.T, q *memQueue) *service.JobService {
	t.Helper()
	backoff, err := domainjob.NewBackoffPolicy(time.Millisecond, 5*time.Millisecond, false)
	require.NoError(t, err)
	svc, err := service.NewJobService(service.JobServiceOptions{
		Repo:            q,
		DefaultLease:    30 * time.Second,
		Backoff:         backoff,
		NotifierOptions: domainjob.NotifierOptions{WaitWindow: 10 * time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(svc.StopAllListeners)
	return svc
}

type runningRunner struct {
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func startRunner(t *testing.T, opts RunnerOptions) *runningRunner {
	t.Helper()
	r, err := NewRunner(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rr := &runningRunner{cancel: cancel, done: make(chan error, 1)}
	go func() { rr.done <- r.Run(ctx) }()
	t.Cleanup(func() { rr.stop(t) })
	return rr
}

func (rr *runningRunner) stop(t *testing.T) {
	t.Helper()
	rr.once.Do(func() {
		rr.cancel()
		select {
		case err := <-rr.done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("runner did not stop")
		}
	})
}

func enqueue(t *testing.T, svc *service.JobService, kind model.JobKind, maxAttempts int) *model.Job {
	t.Helper()
	job, err := svc.Enqueue(context.Background(), &model.EnqueueRequest{
		Kind:        kind,
		SubjectID:   "subject-1",
		Payload:     map[string]string{"k": "v"},
		MaxAttempts: maxAttempts,
	})
	require.NoError(t, err)
	return job
}

func TestNewRunner_Validates(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)

	svc := newTestJobService(t, newMemQueue())
	_, err = NewRunner(RunnerOptions{Jobs: svc})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Jobs: svc, Handler: &funcHandler{kind: "browser"}})
	require.Error(t, err)

	r, err := NewRunner(RunnerOptions{Jobs: svc, Handler: &funcHandler{kind: model.JobKindNewsletterSync}})
	require.NoError(t, err)
	assert.Equal(t, model.JobKindNewsletterSync, r.Kind())
	assert.Equal(t, 1, r.workers)
}

func TestRunner_SucceedsAfterTransientFailures(t *testing.T) {
	q := newMemQueue()
	svc := newTestJobService(t, q)
	var calls atomic.Int32
	h := &funcHandler{kind: model.JobKindNewsletterSync, handle: func(context.Context, *model.Job) error {
		if calls.Add(1) < 3 {
			return errors.New("crm unavailable")
		}
		return nil
	}}
	rec, err := metrics.NewRecorder(prometheus.NewRegistry())
	require.NoError(t, err)
	job := enqueue(t, svc, model.JobKindNewsletterSync, 3)

	startRunner(t, RunnerOptions{Jobs: svc, Handler: h, Concurrency: 2, Metrics: rec})

	require.Eventually(t, func() bool {
		return q.get(job.ID).Status == model.JobStatusCompleted
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, q.get(job.ID).Attempt)
	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, h.exhaustedCalls())
}

func TestRunner_ExhaustedJobMarksRecordFailed(t *testing.T) {
	q := newMemQueue()
	svc := newTestJobService(t, q)
	h := &funcHandler{kind: model.JobKindAssessmentScore, handle: func(context.Context, *model.Job) error {
		return apperrors.Transient(errors.New("503"), "generate report failed")
	}}
	job := enqueue(t, svc, model.JobKindAssessmentScore, 3)

	startRunner(t, RunnerOptions{Jobs: svc, Handler: h})

	require.Eventually(t, func() bool { return len(h.exhaustedCalls()) == 1 }, 3*time.Second, 5*time.Millisecond)
	got := q.get(job.ID)
	assert.Equal(t, model.JobStatusDead, got.Status)
	assert.Equal(t, 3, got.Attempt)
	assert.Equal(t, "generate report failed: 503", h.exhaustedCalls()[0])
}

func TestRunner_TerminalErrorDeadLettersImmediately(t *testing.T) {
	q := newMemQueue()
	svc := newTestJobService(t, q)
	var calls atomic.Int32
	h := &funcHandler{kind: model.JobKindNewsletterSync, handle: func(context.Context, *model.Job) error {
		calls.Add(1)
		return apperrors.Terminal(nil, "subscription not found")
	}}
	job := enqueue(t, svc, model.JobKindNewsletterSync, 5)

	startRunner(t, RunnerOptions{Jobs: svc, Handler: h})

	require.Eventually(t, func() bool { return q.get(job.ID).Status == model.JobStatusDead }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	require.Eventually(t, func() bool { return len(h.exhaustedCalls()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRunner_PanicIsRetried(t *testing.T) {
	q := newMemQueue()
	svc := newTestJobService(t, q)
	var calls atomic.Int32
	h := &funcHandler{kind: model.JobKindNewsletterSync, handle: func(context.Context, *model.Job) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	}}
	job := enqueue(t, svc, model.JobKindNewsletterSync, 3)

	startRunner(t, RunnerOptions{Jobs: svc, Handler: h})

	require.Eventually(t, func() bool { return q.get(job.ID).Status == model.JobStatusCompleted }, 3*time.Second, 5*time.Millisecond)
	require.NotNil(t, q.get(job.ID).LastError)
	assert.Contains(t, *q.get(job.ID).LastError, "handler panic")
}

func TestRunner_ShutdownReleasesCutOffJob(t *testing.T) {
	q := newMemQueue()
	svc := newTestJobService(t, q)
	started := make(chan struct{})
	h := &funcHandler{kind: model.JobKindAssessmentScore, handle: func(ctx context.Context, _ *model.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	job := enqueue(t, svc, model.JobKindAssessmentScore, 3)

	rr := startRunner(t, RunnerOptions{Jobs: svc, Handler: h, DrainTimeout: 20 * time.Millisecond})
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("handler never started")
	}
	rr.stop(t)

	got := q.get(job.ID)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Zero(t, got.Attempt)
	assert.Empty(t, h.exhaustedCalls())
}

func TestRunner_ShutdownLetsShortJobFinish(t *testing.T) {
	q := newMemQueue()
	svc := newTestJobService(t, q)
	started := make(chan struct{})
	h := &funcHandler{kind: model.JobKindNewsletterSync, handle: func(context.Context, *model.Job) error {
		close(started)
		time.Sleep(30 * time.Millisecond)
		return nil
	}}
	job := enqueue(t, svc, model.JobKindNewsletterSync, 3)

	rr := startRunner(t, RunnerOptions{Jobs: svc, Handler: h, DrainTimeout: 2 * time.Second})
	<-started
	rr.stop(t)

	assert.Equal(t, model.JobStatusCompleted, q.get(job.ID).Status)
}

// crmFunc is a stub CRM client.
type crmFunc func(ctx context.Context, req core.ContactUpsert) error

func (f crmFunc) UpsertContact(ctx context.Context, req core.ContactUpsert) error { return f(ctx, req) }

func TestRunner_NewsletterSyncReachesConfirmedThroughRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	subs := mocks.NewMockSubscriptionRepository(ctrl)
	q := newMemQueue()
	svc := newTestJobService(t, q)

	sub := &model.Subscription{ID: "s1", Email: "sub@example.com", Source: "footer", Status: model.SubscriptionPending}
	subs.EXPECT().GetByID(gomock.Any(), "s1").Return(sub, nil).AnyTimes()
	confirmed := make(chan struct{})
	subs.EXPECT().Confirm(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, model.ConfirmSubscriptionParams) (bool, error) {
			close(confirmed)
			return true, nil
		})

	var attempts atomic.Int32
	handler, err := service.NewNewsletterSyncHandler(service.NewsletterSyncHandlerOptions{
		Subscriptions: subs,
		CRM: crmFunc(func(_ context.Context, req core.ContactUpsert) error {
			assert.Equal(t, "newsletter-s1", req.ExternalID)
			if attempts.Add(1) < 3 {
				return errors.New("connection reset")
			}
			return nil
		}),
	})
	require.NoError(t, err)

	job, err := svc.Enqueue(context.Background(), &model.EnqueueRequest{
		Kind:        model.JobKindNewsletterSync,
		SubjectID:   "s1",
		Payload:     model.NewsletterSyncPayload{SubscriptionID: "s1", Email: sub.Email, Source: sub.Source},
		MaxAttempts: 5,
	})
	require.NoError(t, err)

	startRunner(t, RunnerOptions{Jobs: svc, Handler: handler})

	select {
	case <-confirmed:
	case <-time.After(3 * time.Second):
		t.Fatal("subscription never confirmed")
	}
	require.Eventually(t, func() bool { return q.get(job.ID).Status == model.JobStatusCompleted }, time.Second, 5*time.Millisecond)
}
