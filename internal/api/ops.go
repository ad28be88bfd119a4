// Package api exposes the worker's small operational HTTP surface: health
// and readiness probes, scheduler start/stop, and manual job triggers for
// support runs. It is not a public API; deployments bind it to an internal
// port.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"seasonmail/internal/reminder"
	"seasonmail/internal/types"
)

// Pinger is the database liveness check used by the readiness probe.
// pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Scheduler is the lifecycle surface the ops API toggles.
// *reminder.SchedulerHandle satisfies it.
type Scheduler interface {
	Start() (bool, error)
	Stop() bool
	IsActive() bool
}

// Sweeper triggers one retry pass. *reminder.RetrySweeper satisfies it.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (*reminder.SweepStats, error)
}

// ConfigChecker reports whether the process is configured to send email.
type ConfigChecker func() error

// OpsHandler serves the operational endpoints.
type OpsHandler struct {
	db        Pinger
	scheduler Scheduler
	sweeper   Sweeper
	jobs      map[types.EmailType]reminder.JobRunner
	checkCfg  ConfigChecker
	logger    *slog.Logger
}

// NewOpsHandler wires the ops surface. checkCfg may be nil (readiness then
// only checks the database).
func NewOpsHandler(db Pinger, scheduler Scheduler, sweeper Sweeper, jobs []reminder.JobRunner, checkCfg ConfigChecker, logger *slog.Logger) *OpsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	byType := make(map[types.EmailType]reminder.JobRunner, len(jobs))
	for _, job := range jobs {
		byType[job.EmailType()] = job
	}
	return &OpsHandler{
		db:        db,
		scheduler: scheduler,
		sweeper:   sweeper,
		jobs:      byType,
		checkCfg:  checkCfg,
		logger:    logger,
	}
}

// Router builds the chi router for the ops surface.
func (h *OpsHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)

	r.Get("/scheduler", h.handleSchedulerStatus)
	r.Post("/scheduler/start", h.handleSchedulerStart)
	r.Post("/scheduler/stop", h.handleSchedulerStop)

	r.Post("/jobs/season-reminder", h.handleRunJob)
	r.Post("/jobs/retry-sweep", h.handleRunSweep)

	return r
}

func (h *OpsHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports ready only when the database answers and the send
// configuration is complete. Load balancers gate traffic on this.
func (h *OpsHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "database unreachable",
		})
		return
	}
	if h.checkCfg != nil {
		if err := h.checkCfg(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// SchedulerStatusResponse reports whether the cron runner is ticking.
type SchedulerStatusResponse struct {
	Active bool `json:"active"`
}

func (h *OpsHandler) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{Active: h.scheduler.IsActive()})
}

func (h *OpsHandler) handleSchedulerStart(w http.ResponseWriter, _ *http.Request) {
	started, err := h.scheduler.Start()
	if err != nil {
		h.logger.Error("scheduler start failed", "error", err)
		writeError(w, http.StatusInternalServerError, "scheduler start failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  h.scheduler.IsActive(),
		"started": started,
	})
}

func (h *OpsHandler) handleSchedulerStop(w http.ResponseWriter, _ *http.Request) {
	stopped := h.scheduler.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  false,
		"stopped": stopped,
	})
}

// RunJobRequest triggers one campaign run. AsOf overrides the clock
// (RFC 3339 or YYYY-MM-DD) for backfills; empty means now.
type RunJobRequest struct {
	EmailType string `json:"email_type"`
	AsOf      string `json:"as_of,omitempty"`
}

func (h *OpsHandler) handleRunJob(w http.ResponseWriter, r *http.Request) {
	var req RunJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	emailType := types.EmailType(req.EmailType)
	job, ok := h.jobs[emailType]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown email_type")
		return
	}

	var asOf time.Time
	if req.AsOf != "" {
		parsed, err := parseAsOf(req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "as_of must be RFC 3339 or YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	// Manual runs are support actions; they run inline so the caller sees
	// the outcome.
	stats, err := job.Run(r.Context(), asOf)
	if err != nil {
		h.logger.Error("manual job run failed", "email_type", req.EmailType, "error", err)
		writeError(w, http.StatusInternalServerError, "job run failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *OpsHandler) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sweeper.Sweep(r.Context(), time.Time{})
	if err != nil {
		h.logger.Error("manual sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseAsOf(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// ErrorResponse is the ops API error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
