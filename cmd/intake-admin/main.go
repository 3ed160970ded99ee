package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/intake-pipeline/config"
	"github.com/target/intake-pipeline/internal/bootstrap"
	"github.com/target/intake-pipeline/internal/domain/model"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

// adminAPI is the subset of the admin service the CLI drives.
type adminAPI interface {
	NewsletterStats(ctx context.Context) (*model.SubmissionStats, error)
	AssessmentStats(ctx context.Context) (*model.SubmissionStats, error)
	JobStats(ctx context.Context, kind model.JobKind) (*model.JobStats, error)
	DeadJobs(ctx context.Context, opts model.ListDeadJobsOptions) ([]*model.Job, error)
	RetryJob(ctx context.Context, id string) (*model.Job, error)
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
	defaultDeadLimit        = 50
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	bootstrap.ApplyLogLevel(cfg.Observability)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
	}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		logger.Error("command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"stats": {
			name:        "stats",
			description: "Show submission and queue counts",
			run:         withAdmin(runStats),
		},
		"dead-jobs": {
			name:        "dead-jobs",
			description: "List dead-lettered jobs",
			run:         withAdmin(runDeadJobs),
		},
		"retry-job": {
			name:        "retry-job",
			description: "Requeue a dead job and reset its submission",
			run:         withAdmin(runRetryJob),
		},
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: intake-admin <command> [flags]\n\n")
	fmt.Fprintf(w, "Available commands:\n")
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands()[name].description)
	}
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *timeout <= 0 {
		return errors.New("--timeout must be greater than zero")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
}

// withAdmin connects Postgres (and Redis for cache invalidation when enabled)
// and hands the command an admin service.
func withAdmin(fn func(cmdCtx *commandContext, admin adminAPI, args []string) error) commandFn {
	return func(cmdCtx *commandContext, args []string) error {
		ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
		defer cancel()

		dbCfg := bootstrap.DatabaseConfig{
			DBConfig:    cmdCtx.Config.Postgres,
			RedisConfig: cmdCtx.Config.Redis,
			Logger:      cmdCtx.Logger,
		}
		db, err := bootstrap.ConnectDB(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				cmdCtx.Logger.Warn("db close failed", "error", closeErr)
			}
		}()

		deps := &bootstrap.ServiceDeps{Config: &cmdCtx.Config, DB: db, Logger: cmdCtx.Logger}
		if cmdCtx.Config.StatusCache.Enabled {
			redisClient, redisErr := bootstrap.ConnectRedis(ctx, dbCfg)
			if redisErr != nil {
				cmdCtx.Logger.Warn("redis unavailable, cached status views will expire on their own", "error", redisErr)
			} else {
				deps.RedisClient = redisClient
				defer func() {
					if closeErr := redisClient.Close(); closeErr != nil {
						cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
					}
				}()
			}
		}

		admin, err := bootstrap.NewAdminService(deps)
		if err != nil {
			return err
		}
		scoped := *cmdCtx
		scoped.Ctx = ctx
		return fn(&scoped, admin, args)
	}
}

func runStats(cmdCtx *commandContext, admin adminAPI, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	report, err := collectStats(cmdCtx.Ctx, admin)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(cmdCtx.Out, report)
	}
	return renderStats(cmdCtx.Out, report)
}

type statsReport struct {
	Newsletter  *model.SubmissionStats `json:"newsletter"`
	Assessments *model.SubmissionStats `json:"assessments"`
	Jobs        *model.JobStats        `json:"jobs"`
}

func collectStats(ctx context.Context, admin adminAPI) (*statsReport, error) {
	newsletter, err := admin.NewsletterStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("newsletter stats: %w", err)
	}
	assessments, err := admin.AssessmentStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("assessment stats: %w", err)
	}
	jobs, err := admin.JobStats(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return &statsReport{Newsletter: newsletter, Assessments: assessments, Jobs: jobs}, nil
}

func renderStats(w io.Writer, r *statsReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBMISSIONS\tTOTAL\tSUCCEEDED\tIN PROGRESS\tFAILED")
	for _, row := range []struct {
		name  string
		stats *model.SubmissionStats
	}{{"newsletter", r.Newsletter}, {"assessments", r.Assessments}} {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n",
			row.name, row.stats.Total, row.stats.Succeeded, row.stats.InProgress, row.stats.Failed)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "JOBS\tPENDING\tRUNNING\tCOMPLETED\tDEAD")
	fmt.Fprintf(tw, "all\t%d\t%d\t%d\t%d\n", r.Jobs.Pending, r.Jobs.Running, r.Jobs.Completed, r.Jobs.Dead)
	return tw.Flush()
}

func runDeadJobs(cmdCtx *commandContext, admin adminAPI, args []string) error {
	fs := flag.NewFlagSet("dead-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	kindFlag := fs.String("kind", "", "Only list jobs of this kind (newsletter_sync or assessment_score)")
	limit := fs.Int("limit", defaultDeadLimit, "Maximum number of jobs to list")
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var kind model.JobKind
	if *kindFlag != "" {
		if err := kind.UnmarshalText([]byte(*kindFlag)); err != nil {
			return err
		}
	}

	jobs, err := admin.DeadJobs(cmdCtx.Ctx, model.ListDeadJobsOptions{Kind: kind, Limit: *limit})
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(cmdCtx.Out, jobs)
	}
	return renderDeadJobs(cmdCtx.Out, jobs)
}

func renderDeadJobs(w io.Writer, jobs []*model.Job) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "(no dead jobs)")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSUBJECT\tATTEMPTS\tUPDATED\tLAST ERROR")
	for _, j := range jobs {
		lastErr := ""
		if j.LastError != nil {
			lastErr = truncate(*j.LastError, 80)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.Kind, j.SubjectID, j.Attempt, j.MaxAttempts, j.UpdatedAt.UTC().Format(time.RFC3339), lastErr)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nTotal: %d\n", len(jobs))
	return err
}

func runRetryJob(cmdCtx *commandContext, admin adminAPI, args []string) error {
	fs := flag.NewFlagSet("retry-job", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	id := fs.String("id", "", "ID of the dead job to requeue")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}

	job, err := admin.RetryJob(cmdCtx.Ctx, *id)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmdCtx.Out, "job %s (%s) requeued for %s\n", job.ID, job.Kind, job.SubjectID)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
