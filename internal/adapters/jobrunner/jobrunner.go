// Package jobrunner runs queue workers for one job kind.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/intake-pipeline/internal/domain/model"
	"github.com/target/intake-pipeline/internal/observability/metrics"
	"github.com/target/intake-pipeline/internal/service"
)

const (
	defaultLease          = 60 * time.Second
	defaultHandlerTimeout = 2 * time.Minute
	finalizeTimeout       = 10 * time.Second
	reserveErrorBackoff   = time.Second
	minHeartbeatInterval  = 250 * time.Millisecond
)

// Job lifecycle transitions reported to metrics.
const (
	TransitionCompleted = "completed"
	TransitionRetry     = "retry"
	TransitionDead      = "dead"
	TransitionReleased  = "released"
	TransitionLeaseLost = "lease_lost"
)

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Jobs    *service.JobService // Required
	Handler service.JobHandler  // Required: decides the job kind served

	Concurrency    int           // number of worker goroutines; defaults to 1
	Lease          time.Duration // per-job lease; defaults to 60s
	HandlerTimeout time.Duration // upper bound for one attempt; defaults to 2m
	// DrainTimeout is how long in-flight jobs may keep running after shutdown
	// begins. Jobs still running afterwards are released back to pending.
	DrainTimeout time.Duration

	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Runner pulls jobs of one kind and executes them with its handler.
type Runner struct {
	jobs           *service.JobService
	handler        service.JobHandler
	kind           model.JobKind
	workers        int
	lease          time.Duration
	handlerTimeout time.Duration
	drainTimeout   time.Duration
	metrics        *metrics.Recorder
	logger         *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("JobHandler is required")
	}
	kind := opts.Handler.Kind()
	if !kind.Valid() {
		return nil, fmt.Errorf("handler reports unknown job kind %q", kind)
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	handlerTimeout := opts.HandlerTimeout
	if handlerTimeout <= 0 {
		handlerTimeout = defaultHandlerTimeout
	}
	drain := max(opts.DrainTimeout, 0)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		jobs:           opts.Jobs,
		handler:        opts.Handler,
		kind:           kind,
		workers:        workers,
		lease:          lease,
		handlerTimeout: handlerTimeout,
		drainTimeout:   drain,
		metrics:        opts.Metrics,
		logger:         logger.With("component", "job_runner", "kind", kind),
	}, nil
}

// Kind returns the job kind this runner serves.
func (r *Runner) Kind() model.JobKind { return r.kind }

// Run starts the workers and blocks until ctx is cancelled and in-flight jobs
// have finished or been released. Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner",
		"workers", r.workers,
		"lease", r.lease,
		"handler_timeout", r.handlerTimeout,
		"drain_timeout", r.drainTimeout,
	)

	g, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		g.Go(func() error { return r.workerLoop(gctx) })
	}
	err := g.Wait()

	r.logger.InfoContext(context.WithoutCancel(ctx), "job runner stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Runner) workerLoop(ctx context.Context) error {
	unsub, notify := r.jobs.Subscribe(r.kind)
	defer unsub()

	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.kind, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !waitForNotify(ctx, notify) {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		default:
			r.logger.ErrorContext(ctx, "reserve job failed", "error", err)
			if !sleepCtx(ctx, reserveErrorBackoff) {
				return nil
			}
		}
	}
	return nil
}

func waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-notify:
		if !ok {
			// Listener stopped; fall back to a short poll.
			return sleepCtx(ctx, reserveErrorBackoff)
		}
		return true
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// processJob runs one attempt. The handler context is detached from the run
// context so shutdown does not abort it before the drain timeout.
func (r *Runner) processJob(runCtx context.Context, job *model.Job) {
	start := time.Now()
	logger := r.logger.With("job_id", job.ID, "subject_id", job.SubjectID, "attempt", job.Attempt+1)

	handlerCtx, cancelHandler := context.WithTimeout(context.WithoutCancel(runCtx), r.handlerTimeout)
	defer cancelHandler()

	hbCtx, stopHeartbeat := context.WithCancel(handlerCtx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		r.heartbeat(hbCtx, job, cancelHandler, logger)
	}()

	done := make(chan error, 1)
	go func() { done <- r.invoke(handlerCtx, job) }()

	var (
		err      error
		released bool
	)
	select {
	case err = <-done:
	case <-runCtx.Done():
		err, released = r.awaitDrain(done, cancelHandler)
	}
	stopHeartbeat()
	<-hbDone

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), finalizeTimeout)
	defer cancel()

	if released {
		r.release(finalCtx, job, logger, start)
		return
	}
	if err != nil {
		r.fail(finalCtx, job, err, logger, start)
		return
	}
	r.complete(finalCtx, job, logger, start)
}

// awaitDrain gives an in-flight handler up to the drain timeout after shutdown.
// It reports released=true when the handler had to be cut off.
func (r *Runner) awaitDrain(done <-chan error, cancelHandler context.CancelFunc) (error, bool) {
	timer := time.NewTimer(r.drainTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err, false
	case <-timer.C:
		cancelHandler()
		<-done
		return nil, true
	}
}

func (r *Runner) invoke(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return r.handler.Handle(ctx, job)
}

// heartbeat extends the lease while the handler runs and cancels the handler
// once the lease is found to be lost.
func (r *Runner) heartbeat(ctx context.Context, job *model.Job, cancelHandler context.CancelFunc, logger *slog.Logger) {
	interval := max(r.lease/3, minHeartbeatInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := r.jobs.Heartbeat(ctx, job.ID, r.lease)
			if err != nil {
				if ctx.Err() == nil {
					logger.WarnContext(ctx, "lease heartbeat failed", "error", err)
				}
				continue
			}
			if !ok {
				logger.WarnContext(ctx, "job lease lost; abandoning attempt")
				r.emit(job, TransitionLeaseLost, metrics.ResultNoop, 0, nil)
				cancelHandler()
				return
			}
		}
	}
}

func (r *Runner) complete(ctx context.Context, job *model.Job, logger *slog.Logger, start time.Time) {
	acked, err := r.jobs.Ack(ctx, job.ID)
	if err != nil {
		logger.ErrorContext(ctx, "ack job failed", "error", err)
		r.emit(job, TransitionCompleted, metrics.ResultError, time.Since(start), err)
		return
	}
	result := metrics.ResultSuccess
	if !acked {
		result = metrics.ResultNoop
		logger.WarnContext(ctx, "job finished after losing its lease")
	}
	r.emit(job, TransitionCompleted, result, time.Since(start), nil)
}

func (r *Runner) fail(ctx context.Context, job *model.Job, cause error, logger *slog.Logger, start time.Time) {
	elapsed := time.Since(start)
	out, err := r.jobs.Fail(ctx, job, cause)
	if err != nil {
		logger.ErrorContext(ctx, "record job failure", "error", err, "original_error", cause)
		r.emit(job, TransitionRetry, metrics.ResultError, elapsed, cause)
		return
	}
	if !out.Applied {
		logger.WarnContext(ctx, "failed job no longer held; outcome dropped", "error", cause)
		r.emit(job, TransitionLeaseLost, metrics.ResultNoop, elapsed, cause)
		return
	}
	if !out.Dead {
		r.emit(job, TransitionRetry, metrics.ResultError, elapsed, cause)
		return
	}

	r.emit(job, TransitionDead, metrics.ResultError, elapsed, cause)
	if xerr := r.handler.Exhausted(ctx, job, service.TruncateError(cause.Error())); xerr != nil {
		// The reaper reconciles records whose last job is dead.
		logger.ErrorContext(ctx, "mark record failed", "error", xerr)
	}
}

func (r *Runner) release(ctx context.Context, job *model.Job, logger *slog.Logger, start time.Time) {
	ok, err := r.jobs.Release(ctx, job.ID)
	if err != nil {
		logger.ErrorContext(ctx, "release job on shutdown failed", "error", err)
		r.emit(job, TransitionReleased, metrics.ResultError, time.Since(start), err)
		return
	}
	logger.InfoContext(ctx, "job released on shutdown", "released", ok)
	result := metrics.ResultSuccess
	if !ok {
		result = metrics.ResultNoop
	}
	r.emit(job, TransitionReleased, result, 0, nil)
}

func (r *Runner) emit(job *model.Job, transition, result string, d time.Duration, err error) {
	r.metrics.JobLifecycle(metrics.JobMetric{
		Kind:       string(job.Kind),
		Transition: transition,
		Result:     result,
		Duration:   d,
		Err:        err,
	})
}
