// Package main implements the job-runner CLI tool for running a reminder
// campaign or a retry sweep once and exiting. It is the support path for
// backfills and incident recovery when the worker's cron is not the right
// vehicle.
//
// Usage:
//
//	go run ./cmd/tools/job-runner \
//	  --email-type=season_start_reminder \
//	  --as-of=2025-09-17 \
//	  --dry-run
//
//	go run ./cmd/tools/job-runner --sweep
//
// Configuration comes from the same environment variables as the worker
// (DATABASE_URL, EMAIL_FROM_ADDRESS, ...). --dry-run forces the stub mail
// provider regardless of EMAIL_TEST_MODE, so nothing is sent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"seasonmail/internal/config"
	"seasonmail/internal/db"
	"seasonmail/internal/email"
	"seasonmail/internal/external"
	"seasonmail/internal/reminder"
	"seasonmail/internal/types"
)

func main() {
	emailTypeFlag := flag.String("email-type", string(types.EmailSeasonStart), "Campaign to run: season_start_reminder or season_week_reminder")
	asOfFlag := flag.String("as-of", "", "Clock override (YYYY-MM-DD or RFC 3339). Defaults to now")
	dryRun := flag.Bool("dry-run", false, "Use the stub mail provider; nothing is sent")
	sweep := flag.Bool("sweep", false, "Run a retry sweep instead of a campaign")

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(logger, *emailTypeFlag, *asOfFlag, *dryRun, *sweep); err != nil {
		logger.Error("job-runner failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, emailTypeRaw, asOfRaw string, dryRun, sweep bool) error {
	emailType := types.EmailType(emailTypeRaw)
	if !emailType.Valid() {
		return fmt.Errorf("invalid --email-type %q", emailTypeRaw)
	}

	var asOf time.Time
	if asOfRaw != "" {
		parsed, err := parseAsOf(asOfRaw)
		if err != nil {
			return fmt.Errorf("invalid --as-of %q: %w", asOfRaw, err)
		}
		asOf = parsed
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !dryRun {
		if err := cfg.CheckSendConfig(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	var mailer reminder.MailSender
	if dryRun || cfg.Email.TestMode {
		logger.Warn("dry run: sends are stubbed")
		mailer = external.NewStubEmailProvider(logger)
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Email.AWSRegion))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		mailer = external.NewBreakerProvider("ses", external.NewSESClient(awsCfg, external.SESClientConfig{
			ConfigSetName: cfg.Email.ConfigSetName,
			Logger:        logger,
		}))
	}

	renderer, err := email.NewRenderer()
	if err != nil {
		return fmt.Errorf("loading email templates: %w", err)
	}

	sessionRepo := db.NewSessionRepository(pool)
	rosterRepo := db.NewRosterRepository(pool)
	attemptRepo := db.NewAttemptRepository(pool)

	loc := cfg.Location()
	jobs := make([]reminder.JobRunner, 0, 2)
	for _, t := range []types.EmailType{types.EmailSeasonWeek, types.EmailSeasonStart} {
		jobs = append(jobs, reminder.NewSeasonJob(sessionRepo, rosterRepo, attemptRepo, mailer, renderer, nil, logger, reminder.JobConfig{
			EmailType:          t,
			FromAddress:        cfg.Email.FromAddress,
			FromName:           cfg.Email.FromName,
			SessionBatch:       cfg.Scheduler.SessionBatch,
			ExcludedSessionIDs: cfg.Scheduler.ExcludedSessionIDs,
			QueryTimeout:       cfg.Database.QueryTimeout,
			SendTimeout:        cfg.Email.SendTimeout,
			Location:           loc,
		}))
	}

	if sweep {
		sweeper := reminder.NewRetrySweeper(sessionRepo, attemptRepo, jobs, nil, logger, reminder.SweepConfig{
			RetryInterval: cfg.Scheduler.RetryInterval,
			MaxRetries:    cfg.Scheduler.MaxRetries,
			Batch:         cfg.Scheduler.RetryBatch,
			QueryTimeout:  cfg.Database.QueryTimeout,
		})
		stats, err := sweeper.Sweep(ctx, time.Time{})
		if err != nil {
			return err
		}
		logger.Info("sweep finished",
			"rows_selected", stats.RowsSelected,
			"groups_rerun", stats.GroupsRerun,
			"groups_failed", stats.GroupsFailed,
			"rows_closed_out", stats.RowsClosedOut,
		)
		return nil
	}

	for _, job := range jobs {
		if job.EmailType() != emailType {
			continue
		}
		stats, err := job.Run(ctx, asOf)
		if err != nil {
			return err
		}
		logger.Info("run finished",
			"target_date", stats.TargetDate,
			"sessions_matched", stats.SessionsMatched,
			"emails_sent", stats.EmailsSent,
			"send_failures", stats.SendFailures,
			"parents_skipped", stats.ParentsSkipped,
		)
		return nil
	}
	return fmt.Errorf("no job for email type %q", emailType)
}

func parseAsOf(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
