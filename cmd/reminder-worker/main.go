// Package main is the entry point for the season reminder worker.
//
// It loads configuration, connects to Postgres (running migrations when
// configured), wires the SES transport behind a circuit breaker, builds the
// two reminder campaign jobs and the retry sweeper, and runs the cron
// scheduler alongside the internal ops HTTP server until a shutdown signal
// arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"golang.org/x/sync/errgroup"

	"seasonmail/internal/api"
	"seasonmail/internal/config"
	"seasonmail/internal/db"
	"seasonmail/internal/email"
	"seasonmail/internal/external"
	"seasonmail/internal/reminder"
	"seasonmail/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("season reminder worker starting",
		"environment", cfg.Environment,
		"timezone", cfg.Timezone,
		"scheduler_enabled", cfg.Scheduler.Enabled,
		"ops_port", cfg.Ops.Port,
	)

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(cfg.Database.URL); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	sessionRepo := db.NewSessionRepository(pool)
	rosterRepo := db.NewRosterRepository(pool)
	attemptRepo := db.NewAttemptRepository(pool)

	mailer, metrics, err := buildAWS(ctx, cfg, logger)
	if err != nil {
		return err
	}

	renderer, err := email.NewRenderer()
	if err != nil {
		return fmt.Errorf("loading email templates: %w", err)
	}

	loc := cfg.Location()
	jobs := make([]reminder.JobRunner, 0, 2)
	for _, emailType := range []types.EmailType{types.EmailSeasonWeek, types.EmailSeasonStart} {
		jobs = append(jobs, reminder.NewSeasonJob(sessionRepo, rosterRepo, attemptRepo, mailer, renderer, metrics, logger, reminder.JobConfig{
			EmailType:          emailType,
			FromAddress:        cfg.Email.FromAddress,
			FromName:           cfg.Email.FromName,
			SessionBatch:       cfg.Scheduler.SessionBatch,
			ExcludedSessionIDs: cfg.Scheduler.ExcludedSessionIDs,
			QueryTimeout:       cfg.Database.QueryTimeout,
			SendTimeout:        cfg.Email.SendTimeout,
			Location:           loc,
		}))
	}

	sweeper := reminder.NewRetrySweeper(sessionRepo, attemptRepo, jobs, metrics, logger, reminder.SweepConfig{
		RetryInterval: cfg.Scheduler.RetryInterval,
		MaxRetries:    cfg.Scheduler.MaxRetries,
		Batch:         cfg.Scheduler.RetryBatch,
		QueryTimeout:  cfg.Database.QueryTimeout,
	})

	handle := reminder.NewSchedulerHandle(jobs, sweeper, logger, reminder.ScheduleConfig{
		Enabled:       cfg.Scheduler.Enabled,
		DailyHour:     cfg.Scheduler.DailyHour,
		RetryInterval: cfg.Scheduler.RetryInterval,
		Location:      loc,
	})

	if cfg.Scheduler.Enabled {
		if err := cfg.CheckSendConfig(); err != nil {
			return fmt.Errorf("scheduler enabled but send config incomplete: %w", err)
		}
		if _, err := handle.Start(); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	}
	defer handle.Stop()

	ops := api.NewOpsHandler(pool, handle, sweeper, jobs, cfg.CheckSendConfig, logger)
	return serveOps(ctx, cfg.Ops.Port, ops.Router(), logger)
}

// buildAWS wires the mail transport and metrics publisher. In test mode
// nothing leaves the process: the stub provider logs sends and metrics are
// discarded, and no AWS credentials are needed.
func buildAWS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (reminder.MailSender, reminder.JobMetrics, error) {
	if cfg.Email.TestMode {
		logger.Warn("email test mode: sends are stubbed")
		return external.NewStubEmailProvider(logger), reminder.NoopMetrics{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Email.AWSRegion))
	if err != nil {
		return nil, nil, fmt.Errorf("loading AWS config: %w", err)
	}

	ses := external.NewSESClient(awsCfg, external.SESClientConfig{
		ConfigSetName: cfg.Email.ConfigSetName,
		Logger:        logger,
	})
	mailer := external.NewBreakerProvider("ses", ses)
	metrics := reminder.NewCloudWatchJobMetrics(cloudwatch.NewFromConfig(awsCfg), logger)
	return mailer, metrics, nil
}

// serveOps runs the internal HTTP server until ctx is canceled, then shuts
// it down gracefully.
func serveOps(ctx context.Context, port string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // manual job runs respond inline
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("worker stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
