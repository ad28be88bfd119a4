package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"seasonmail/internal/schedule"
)

// ScheduleConfig carries the cron timings for the scheduler handle.
type ScheduleConfig struct {
	// Enabled gates the whole scheduler; when false Start is a no-op that
	// reports inactive.
	Enabled bool

	// DailyHour is the local hour (0-23) the campaign jobs fire.
	DailyHour int

	// RetryInterval is the sweep cadence.
	RetryInterval time.Duration

	// Location anchors the daily schedule.
	Location *time.Location
}

// SchedulerHandle owns the cron runner for the daily campaign jobs and the
// retry sweep. Start and Stop are idempotent and safe for concurrent use;
// the ops API toggles the handle at runtime without restarting the worker.
type SchedulerHandle struct {
	mu     sync.Mutex
	runner *cron.Cron

	jobs    []JobRunner
	sweeper *RetrySweeper
	logger  *slog.Logger
	cfg     ScheduleConfig
}

// NewSchedulerHandle builds a stopped handle. Call Start to begin ticking.
func NewSchedulerHandle(jobs []JobRunner, sweeper *RetrySweeper, logger *slog.Logger, cfg ScheduleConfig) *SchedulerHandle {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DailyHour < 0 || cfg.DailyHour > 23 {
		cfg.DailyHour = 6
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 20 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = schedule.DefaultLocation()
	}
	return &SchedulerHandle{
		jobs:    jobs,
		sweeper: sweeper,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start brings the scheduler up. It returns true when this call started
// it, false when it was already running or disabled by config.
func (h *SchedulerHandle) Start() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.cfg.Enabled {
		h.logger.Info("scheduler disabled by config; not starting")
		return false, nil
	}
	if h.runner != nil {
		return false, nil
	}

	runner := cron.New(cron.WithLocation(h.cfg.Location))

	dailySpec := fmt.Sprintf("0 %d * * *", h.cfg.DailyHour)
	if _, err := runner.AddFunc(dailySpec, h.runDaily); err != nil {
		return false, fmt.Errorf("registering daily schedule %q: %w", dailySpec, err)
	}

	sweepSpec := fmt.Sprintf("@every %s", h.cfg.RetryInterval)
	if _, err := runner.AddFunc(sweepSpec, h.runSweep); err != nil {
		return false, fmt.Errorf("registering sweep schedule %q: %w", sweepSpec, err)
	}

	runner.Start()
	h.runner = runner
	h.logger.Info("scheduler started",
		"daily_spec", dailySpec,
		"sweep_interval", h.cfg.RetryInterval.String(),
		"location", h.cfg.Location.String(),
	)
	return true, nil
}

// Stop shuts the scheduler down, waiting for any in-flight run to finish.
// It returns true when this call stopped it, false when it was not running.
func (h *SchedulerHandle) Stop() bool {
	h.mu.Lock()
	runner := h.runner
	h.runner = nil
	h.mu.Unlock()

	if runner == nil {
		return false
	}
	<-runner.Stop().Done()
	h.logger.Info("scheduler stopped")
	return true
}

// IsActive reports whether the cron runner is ticking.
func (h *SchedulerHandle) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runner != nil
}

func (h *SchedulerHandle) runDaily() {
	ctx := context.Background()
	for _, job := range h.jobs {
		if _, err := job.Run(ctx, time.Time{}); err != nil {
			h.logger.Error("scheduled run failed",
				"email_type", string(job.EmailType()),
				"error", err,
			)
		}
	}
}

func (h *SchedulerHandle) runSweep() {
	if _, err := h.sweeper.Sweep(context.Background(), time.Time{}); err != nil {
		h.logger.Error("scheduled sweep failed", "error", err)
	}
}
