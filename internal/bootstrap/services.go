package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/target/intake-pipeline/config"
	"github.com/target/intake-pipeline/internal/adapters/jobrunner"
	"github.com/target/intake-pipeline/internal/adapters/reaper"
	"github.com/target/intake-pipeline/internal/core"
	"github.com/target/intake-pipeline/internal/data"
	domainjob "github.com/target/intake-pipeline/internal/domain/job"
	"github.com/target/intake-pipeline/internal/observability/metrics"
	"github.com/target/intake-pipeline/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs   *service.JobService
	Intake *service.IntakeService
	Status *service.StatusService
	Admin  *service.AdminService

	NewsletterSync    *service.NewsletterSyncHandler
	AssessmentScoring *service.AssessmentScoringHandler

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional: enables the status cache
	Logger      *slog.Logger

	// adapters overrides the outbound adapters chosen from Config.
	adapters *collaborators
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Jobs          *data.JobRepo
	Subscriptions *data.SubscriptionRepo
	Assessments   *data.AssessmentRepo
	Locks         *data.EmailLockRepo
	Cache         core.CacheRepository
}

// buildObservability registers the runtime collectors and the service metrics.
func buildObservability() (ObservabilityContainer, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return ObservabilityContainer{}, fmt.Errorf("register go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return ObservabilityContainer{}, fmt.Errorf("register process collector: %w", err)
	}
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		return ObservabilityContainer{}, fmt.Errorf("register metrics: %w", err)
	}
	return ObservabilityContainer{Registry: reg, Metrics: rec}, nil
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps) *serviceRepositories {
	repoCfg := data.RepoConfig{Logger: deps.Logger}
	repos := &serviceRepositories{
		Jobs:          data.NewJobRepo(deps.DB, repoCfg),
		Subscriptions: data.NewSubscriptionRepo(deps.DB, repoCfg),
		Assessments:   data.NewAssessmentRepo(deps.DB, repoCfg),
		Locks:         data.NewEmailLockRepo(deps.DB),
	}
	if deps.RedisClient != nil && deps.Config.StatusCache.Enabled {
		repos.Cache = data.NewRedisCacheRepo(deps.RedisClient)
	}
	return repos
}

func newJobService(repo core.JobRepository, cfg config.QueueConfig, logger *slog.Logger) (*service.JobService, error) {
	backoff, err := domainjob.NewBackoffPolicy(cfg.BackoffBase, cfg.BackoffCap, cfg.BackoffJitter)
	if err != nil {
		return nil, fmt.Errorf("create backoff policy: %w", err)
	}
	return service.NewJobService(service.JobServiceOptions{
		Repo:            repo,
		DefaultLease:    60 * time.Second,
		Backoff:         backoff,
		Logger:          logger,
		NotifierOptions: domainjob.NotifierOptions{WaitWindow: cfg.NotifyWaitWindow},
	})
}

// NewServices wires repositories, adapters and services from configuration.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("config and database are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg := deps.Config
	logger := deps.Logger

	obs, err := buildObservability()
	if err != nil {
		return ServiceContainer{}, err
	}
	repos := buildRepositories(deps)

	adapters := deps.adapters
	if adapters == nil {
		built, buildErr := buildCollaborators(ctx, cfg, logger)
		if buildErr != nil {
			return ServiceContainer{}, buildErr
		}
		adapters = &built
	}

	jobs, err := newJobService(repos.Jobs, cfg.Queue, logger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	var confirmations core.EmailSender
	if cfg.Intake.ConfirmationEmail {
		confirmations = adapters.Emails
	}
	intake, err := service.NewIntakeService(service.IntakeServiceOptions{
		Locker:              repos.Locks,
		Subscriptions:       repos.Subscriptions,
		Assessments:         repos.Assessments,
		Jobs:                repos.Jobs,
		MaxAttempts:         cfg.Queue.MaxAttempts,
		RateLimitWindow:     cfg.Intake.RateLimitWindow,
		Emails:              confirmations,
		ConfirmationTimeout: cfg.Intake.ConfirmationTimeout,
		Metrics:             obs.Metrics,
		Logger:              logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create intake service: %w", err)
	}

	status, err := service.NewStatusService(service.StatusServiceOptions{
		Subscriptions: repos.Subscriptions,
		Assessments:   repos.Assessments,
		Cache:         repos.Cache,
		CacheTTL:      cfg.StatusCache.TTL,
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create status service: %w", err)
	}

	admin, err := service.NewAdminService(service.AdminServiceOptions{
		Subscriptions: repos.Subscriptions,
		Assessments:   repos.Assessments,
		Jobs:          jobs,
		Status:        status,
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create admin service: %w", err)
	}

	newsletterSync, err := service.NewNewsletterSyncHandler(service.NewsletterSyncHandlerOptions{
		Subscriptions: repos.Subscriptions,
		CRM:           adapters.CRM,
		Timeout:       cfg.CRM.Timeout,
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create newsletter sync handler: %w", err)
	}

	scoring, err := service.NewAssessmentScoringHandler(service.AssessmentScoringHandlerOptions{
		Assessments:   repos.Assessments,
		Reports:       adapters.Reports,
		Emails:        adapters.Emails,
		ReportTimeout: cfg.Report.Timeout,
		EmailTimeout:  cfg.Email.Timeout,
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create assessment scoring handler: %w", err)
	}

	return ServiceContainer{
		Jobs:              jobs,
		Intake:            intake,
		Status:            status,
		Admin:             admin,
		NewsletterSync:    newsletterSync,
		AssessmentScoring: scoring,
		Observability:     obs,
	}, nil
}

// NewAdminService wires only what the operator API needs, without outbound adapters.
func NewAdminService(deps *ServiceDeps) (*service.AdminService, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return nil, errors.New("config and database are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	repos := buildRepositories(deps)

	jobs, err := newJobService(repos.Jobs, deps.Config.Queue, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("create job service: %w", err)
	}
	status, err := service.NewStatusService(service.StatusServiceOptions{
		Subscriptions: repos.Subscriptions,
		Assessments:   repos.Assessments,
		Cache:         repos.Cache,
		CacheTTL:      deps.Config.StatusCache.TTL,
		Logger:        deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create status service: %w", err)
	}
	return service.NewAdminService(service.AdminServiceOptions{
		Subscriptions: repos.Subscriptions,
		Assessments:   repos.Assessments,
		Jobs:          jobs,
		Status:        status,
		Logger:        deps.Logger,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// shutdownWaitTimeout bounds the wait for a background service beyond its own drain timeout.
const shutdownWaitTimeout = 15 * time.Second

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// reportError forwards a service failure without blocking a stopping service.
func (d *serviceStartupDeps) reportError(ctx context.Context, name string, err error) {
	errMsg := fmt.Errorf("%s failed: %w", name, err)
	select {
	case d.errCh <- errMsg:
	case <-ctx.Done():
	default:
		d.logger.WarnContext(ctx, "dropping background service error", "service", name, "error", errMsg)
	}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(ctx context.Context, deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	server := NewHTTPServer(&HTTPServerConfig{
		Config:      deps.cfg.Config,
		Services:    deps.cfg.Services,
		DB:          deps.cfg.DB,
		RedisClient: deps.cfg.RedisClient,
		Logger:      deps.logger,
	})

	go func() {
		deps.logger.InfoContext(ctx, "starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.reportError(ctx, "HTTP server", err)
		}
	}()

	return server
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			deps.reportError(ctx, descriptor.name, err)
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(
	ctx context.Context,
	deps *serviceStartupDeps,
	services []backgroundService,
) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newJobRunnerBackgroundService(
	deps *serviceStartupDeps,
	mode config.ServiceMode,
	handler service.JobHandler,
	runnerCfg config.RunnerConfig,
) backgroundService {
	return backgroundService{
		mode: mode,
		name: string(mode) + " runner",
		start: func(ctx context.Context) error {
			return runJobRunner(ctx, jobrunner.RunnerOptions{
				Jobs:           deps.cfg.Services.Jobs,
				Handler:        handler,
				Concurrency:    runnerCfg.Concurrency,
				Lease:          runnerCfg.JobLease,
				HandlerTimeout: runnerCfg.HandlerTimeout,
				DrainTimeout:   runnerCfg.DrainTimeout,
				Metrics:        deps.cfg.Services.Observability.Metrics,
				Logger:         deps.logger,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			return runReaper(ctx, reaper.RunnerOptions{
				DB:      deps.cfg.DB,
				Config:  deps.cfg.Config.Reaper,
				Logger:  deps.logger,
				Metrics: deps.cfg.Services.Observability.Metrics,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
		return nil
	}
	appCfg := deps.cfg.Config
	return []backgroundService{
		newJobRunnerBackgroundService(deps, config.ServiceModeNewsletterSync,
			deps.cfg.Services.NewsletterSync, appCfg.NewsletterSync),
		newJobRunnerBackgroundService(deps, config.ServiceModeAssessmentScoring,
			deps.cfg.Services.AssessmentScoring, appCfg.AssessmentScoring),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(ctx context.Context, deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(ctx, deps),
		Background: startBackgroundServices(ctx, deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and blocks until ctx is
// cancelled (normally by a signal) or a service fails, then stops everything.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(serviceCtx, &serviceStartupDeps{
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:             serviceCtx,
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		httpTimeout:     cfg.Config.HTTP.ShutdownTimeout,
		jobService:      cfg.Services.Jobs,
		logger:          logger,
		backgrounds:     result.Background,
		backgroundLimit: shutdownWaitTimeout + maxDrain(cfg.Config),
	})
}

func maxDrain(cfg *config.AppConfig) time.Duration {
	return max(cfg.NewsletterSync.DrainTimeout, cfg.AssessmentScoring.DrainTimeout)
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx             context.Context
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	httpTimeout     time.Duration
	jobService      *service.JobService
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
	backgroundLimit time.Duration
}

// waitForShutdown waits for cancellation or a service error.
func waitForShutdown(cfg shutdownConfig) error {
	select {
	case <-cfg.ctx.Done():
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop stops intake first, then lets runners drain, then stops the
// queue listeners they were using.
func gracefulStop(cfg shutdownConfig) error {
	var stopErr error
	if cfg.httpServer != nil {
		timeout := cfg.httpTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		// The service context is already cancelled; shutdown needs its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cfg.ctx), timeout)
		defer cancel()

		stopErr = ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		})
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.backgroundLimit, cfg.logger)
	}

	if cfg.jobService != nil {
		cfg.jobService.StopAllListeners()
	}

	return stopErr
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, limit time.Duration, logger *slog.Logger) {
	if done == nil {
		return
	}
	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-timer.C:
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
