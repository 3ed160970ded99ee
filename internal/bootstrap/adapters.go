package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/intake-pipeline/config"
	"github.com/target/intake-pipeline/internal/adapters/crm"
	"github.com/target/intake-pipeline/internal/adapters/email"
	"github.com/target/intake-pipeline/internal/adapters/jobrunner"
	"github.com/target/intake-pipeline/internal/adapters/reaper"
	"github.com/target/intake-pipeline/internal/adapters/report"
	"github.com/target/intake-pipeline/internal/adapters/storage"
	"github.com/target/intake-pipeline/internal/core"
)

// collaborators are the outbound adapters behind the core ports.
type collaborators struct {
	CRM     core.CRMClient
	Emails  core.EmailSender
	Store   core.ObjectStore
	Reports core.ReportGenerator
}

// buildCollaborators picks real adapters when their settings are present and
// logging or local-disk fallbacks otherwise.
func buildCollaborators(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (collaborators, error) {
	var out collaborators

	crmClient, err := newCRMClient(cfg.CRM, logger)
	if err != nil {
		return out, err
	}
	out.CRM = crmClient

	emails, err := newEmailSender(ctx, cfg, logger)
	if err != nil {
		return out, err
	}
	out.Emails = emails

	store, err := newObjectStore(ctx, cfg, logger)
	if err != nil {
		return out, err
	}
	out.Store = store

	reports, err := report.NewGenerator(report.GeneratorOptions{
		Store:   store,
		Timeout: cfg.Report.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return out, fmt.Errorf("create report generator: %w", err)
	}
	out.Reports = reports

	return out, nil
}

//nolint:ireturn // the CRM port is satisfied by either the HTTP client or the logging stub.
func newCRMClient(cfg config.CRMConfig, logger *slog.Logger) (core.CRMClient, error) {
	if !cfg.Enabled() {
		logger.Warn("CRM_BASE_URL not set, newsletter contacts will only be logged")
		return crm.NewLogClient(logger), nil
	}
	client, err := crm.NewClient(crm.ClientOptions{
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create crm client: %w", err)
	}
	return client, nil
}

//nolint:ireturn // the email port is satisfied by SES or the logging sender.
func newEmailSender(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (core.EmailSender, error) {
	renderer, err := email.NewRenderer(email.RendererOptions{CacheSize: cfg.Email.TemplateCacheSize})
	if err != nil {
		return nil, fmt.Errorf("create email renderer: %w", err)
	}
	if !cfg.Email.Enabled {
		logger.Warn("SES disabled, emails will only be logged")
		return email.NewLogSender(renderer, logger)
	}
	sender, err := email.NewSESSender(ctx, email.SESSenderOptions{
		Config:   cfg.Email,
		AWS:      cfg.AWS,
		Renderer: renderer,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create ses sender: %w", err)
	}
	return sender, nil
}

//nolint:ireturn // the object store port is satisfied by S3 or local disk.
func newObjectStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (core.ObjectStore, error) {
	if !cfg.Storage.Enabled() {
		logger.Warn("S3_BUCKET not set, reports are written to local disk", "dir", cfg.Report.LocalDir)
		return storage.NewLocalStore(cfg.Report.LocalDir, cfg.Report.LocalBaseURL)
	}
	store, err := storage.NewS3Store(ctx, storage.S3StoreOptions{
		Config: cfg.Storage,
		AWS:    cfg.AWS,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 store: %w", err)
	}
	return store, nil
}

// runJobRunner builds a runner for opts.Handler's kind and blocks until ctx ends.
func runJobRunner(ctx context.Context, opts jobrunner.RunnerOptions) error {
	label := "job"
	if opts.Handler != nil {
		label = string(opts.Handler.Kind())
	}

	runner, err := jobrunner.NewRunner(opts)
	if err != nil {
		return fmt.Errorf("create %s runner: %w", label, err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run %s runner: %w", label, runErr)
	}
	return nil
}

// runReaper starts the reaper loop.
func runReaper(ctx context.Context, opts reaper.RunnerOptions) error {
	runner, err := reaper.NewRunner(opts)
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}
	return runner.Run(ctx)
}
