package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"seasonmail/internal/types"
)

// SweepConfig carries the retry sweeper's settings.
type SweepConfig struct {
	// RetryInterval is both the overdue cutoff (rows scheduled more than
	// one interval ago are eligible) and the delay applied to rows that
	// fail again.
	RetryInterval time.Duration

	// MaxRetries caps attempt_number; rows past the cap are closed out as
	// permanently failed.
	MaxRetries int

	// Batch caps the rows pulled per sweep.
	Batch int

	QueryTimeout time.Duration
}

// RetrySweeper re-drives failed and stale-pending reminder attempts. It
// groups overdue ledger rows by (session, email type) and re-invokes the
// campaign job for each group with a backdated clock, so the re-run
// resolves the same target date as the run that originally failed.
type RetrySweeper struct {
	mu sync.Mutex

	sessions SessionStore
	attempts AttemptStore
	jobs     map[types.EmailType]JobRunner
	metrics  JobMetrics
	logger   *slog.Logger
	cfg      SweepConfig
}

// NewRetrySweeper wires a sweeper over the given campaign jobs, keyed by
// the email type each one sends.
func NewRetrySweeper(sessions SessionStore, attempts AttemptStore, jobs []JobRunner,
	metrics JobMetrics, logger *slog.Logger, cfg SweepConfig) *RetrySweeper {

	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 20 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 10 * time.Second
	}
	byType := make(map[types.EmailType]JobRunner, len(jobs))
	for _, job := range jobs {
		byType[job.EmailType()] = job
	}
	return &RetrySweeper{
		sessions: sessions,
		attempts: attempts,
		jobs:     byType,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// retryGroup is one (session, email type) bucket of overdue rows.
type retryGroup struct {
	sessionID string
	emailType types.EmailType
	ids       []string
}

// Sweep runs one retry pass. now overrides the clock for testing; pass the
// zero time to use the wall clock.
//
// For each group it marks the rows retrying, re-runs the campaign job with
// asOf backdated to (session start - look-ahead), then closes out whatever
// is still retrying: a clean job return means the remaining rows truly
// failed inside the run (failed, or failed permanently past the cap); a
// job error means the run never got to them (pending again, pushed one
// interval out). Either way attempt_number advances, so the cap terminates
// every row.
func (s *RetrySweeper) Sweep(ctx context.Context, now time.Time) (*SweepStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.IsZero() {
		now = time.Now()
	}
	stats := &SweepStats{}
	cutoff := now.Add(-s.cfg.RetryInterval)

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	overdue, err := s.attempts.ListOverdue(qctx, cutoff, s.cfg.MaxRetries, s.cfg.Batch)
	cancel()
	if err != nil {
		return stats, fmt.Errorf("listing overdue attempts: %w", err)
	}
	stats.RowsSelected = len(overdue)
	if len(overdue) == 0 {
		s.metrics.RecordSweep(ctx, stats)
		return stats, nil
	}

	groups := groupAttempts(overdue)
	stats.Groups = len(groups)
	s.logger.Info("retry sweep starting", "rows", stats.RowsSelected, "groups", stats.Groups)

	for _, g := range groups {
		if err := s.retryGroup(ctx, now, g, stats); err != nil {
			stats.GroupsFailed++
			s.logger.Error("retry group failed",
				"session_id", g.sessionID,
				"email_type", string(g.emailType),
				"rows", len(g.ids),
				"error", err,
			)
			continue
		}
		stats.GroupsRerun++
	}

	s.logger.Info("retry sweep complete",
		"rows", stats.RowsSelected,
		"groups", stats.Groups,
		"groups_rerun", stats.GroupsRerun,
		"groups_failed", stats.GroupsFailed,
		"rows_closed_out", stats.RowsClosedOut,
	)
	s.metrics.RecordSweep(ctx, stats)
	return stats, nil
}

// retryGroup re-drives one group. The group's rows are marked retrying
// first so the job's already-sent check and the close-out query between
// them account for every row exactly once.
func (s *RetrySweeper) retryGroup(ctx context.Context, now time.Time, g retryGroup, stats *SweepStats) error {
	job, ok := s.jobs[g.emailType]
	if !ok {
		return fmt.Errorf("no job registered for email type %q", g.emailType)
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	err := s.attempts.MarkRetrying(qctx, g.ids)
	cancel()
	if err != nil {
		return fmt.Errorf("marking rows retrying: %w", err)
	}

	asOf, err := s.backdatedClock(ctx, g)
	if err != nil {
		// Close the rows back out before bailing so they are not stranded
		// in retrying.
		s.closeOut(ctx, g, types.AttemptPending, now.Add(s.cfg.RetryInterval), err.Error(), stats)
		return err
	}

	_, runErr := job.Run(ctx, asOf)
	if runErr != nil {
		s.closeOut(ctx, g, types.AttemptPending, now.Add(s.cfg.RetryInterval), runErr.Error(), stats)
		return fmt.Errorf("re-running job: %w", runErr)
	}

	// Clean return: rows the run delivered are sent now; anything still
	// retrying failed its individual send and stays failed.
	s.closeOut(ctx, g, types.AttemptFailed, now.Add(s.cfg.RetryInterval), "", stats)
	return nil
}

// backdatedClock computes the asOf that makes the job resolve the group's
// session start date as its target.
func (s *RetrySweeper) backdatedClock(ctx context.Context, g retryGroup) (time.Time, error) {
	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	sess, err := s.sessions.GetByID(qctx, g.sessionID)
	if err != nil {
		return time.Time{}, fmt.Errorf("loading session for backdated clock: %w", err)
	}
	return sess.StartDate.AddDate(0, 0, -g.emailType.LookAheadDays()), nil
}

func (s *RetrySweeper) closeOut(ctx context.Context, g retryGroup, reStatus types.AttemptStatus, nextScheduled time.Time, errMsg string, stats *SweepStats) {
	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	n, err := s.attempts.CloseOutRetrying(qctx, g.sessionID, g.emailType, s.cfg.MaxRetries, reStatus, nextScheduled, errMsg)
	if err != nil {
		s.logger.Error("close-out failed; rows left retrying for the next sweep",
			"session_id", g.sessionID,
			"email_type", string(g.emailType),
			"error", err,
		)
		return
	}
	stats.RowsClosedOut += n
}

// groupAttempts buckets rows by (session, email type), preserving the
// overdue query's oldest-first order across groups.
func groupAttempts(rows []types.EmailAttempt) []retryGroup {
	type gkey struct {
		sessionID string
		emailType types.EmailType
	}
	index := make(map[gkey]int)
	var groups []retryGroup
	for _, row := range rows {
		k := gkey{row.SessionID, row.EmailType}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, retryGroup{sessionID: row.SessionID, emailType: row.EmailType})
		}
		groups[i].ids = append(groups[i].ids, row.ID)
	}
	return groups
}
