package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"seasonmail/internal/db"
	"seasonmail/internal/email"
	"seasonmail/internal/schedule"
	"seasonmail/internal/types"
)

// JobConfig carries the per-campaign settings for a SeasonJob.
type JobConfig struct {
	EmailType   types.EmailType
	FromAddress string
	FromName    string

	// SessionBatch caps the session query result set.
	SessionBatch int

	// ExcludedSessionIDs are never reminded about.
	ExcludedSessionIDs []string

	// QueryTimeout bounds each database call; SendTimeout bounds each mail
	// send. A hung call fails that unit of work and the batch moves on.
	QueryTimeout time.Duration
	SendTimeout  time.Duration

	// Location is the platform timezone used to resolve "tomorrow".
	Location *time.Location
}

// SeasonJob is the daily reminder batch for one campaign. It resolves the
// target date (asOf + look-ahead), fans out one email per distinct parent
// per session, and records every attempt in the ledger.
//
// Runs are serialized with a mutex: the daily cron and a retry re-invocation
// may otherwise overlap, and while the ledger's natural key already prevents
// duplicate rows, serializing keeps the send path to one mail connection at
// a time.
type SeasonJob struct {
	mu sync.Mutex

	sessions SessionStore
	roster   RosterStore
	attempts AttemptStore
	mailer   MailSender
	renderer TemplateRenderer
	metrics  JobMetrics
	logger   *slog.Logger
	cfg      JobConfig
}

// NewSeasonJob wires a SeasonJob. metrics may be nil (telemetry off);
// logger may be nil (slog default).
func NewSeasonJob(sessions SessionStore, roster RosterStore, attempts AttemptStore,
	mailer MailSender, renderer TemplateRenderer, metrics JobMetrics,
	logger *slog.Logger, cfg JobConfig) *SeasonJob {

	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if cfg.Location == nil {
		cfg.Location = schedule.DefaultLocation()
	}
	if cfg.SessionBatch <= 0 {
		cfg.SessionBatch = 200
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &SeasonJob{
		sessions: sessions,
		roster:   roster,
		attempts: attempts,
		mailer:   mailer,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// EmailType returns the campaign this job sends.
func (j *SeasonJob) EmailType() types.EmailType {
	return j.cfg.EmailType
}

// Run executes one batch. asOf overrides the clock for testing and retry
// backdating; pass the zero time to use now. The target date is asOf plus
// the campaign's look-ahead, resolved in the platform timezone.
//
// A run with zero matching sessions is a successful no-op. Per-session and
// per-parent failures are isolated: they are logged, counted, and recorded
// in the ledger, and the run continues. Only an infrastructure failure (the
// session query itself) returns an error.
func (j *SeasonJob) Run(ctx context.Context, asOf time.Time) (*RunStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if asOf.IsZero() {
		asOf = time.Now()
	}
	local := asOf.In(j.cfg.Location)
	y, m, d := local.Date()
	target := time.Date(y, m, d+j.cfg.EmailType.LookAheadDays(), 0, 0, 0, 0, j.cfg.Location)

	stats := &RunStats{
		RunID:      uuid.NewString(),
		EmailType:  j.cfg.EmailType,
		TargetDate: target.Format("2006-01-02"),
	}
	log := j.logger.With("run_id", stats.RunID, "email_type", string(j.cfg.EmailType), "target_date", stats.TargetDate)

	sessions, err := j.listSessions(ctx, target)
	if err != nil {
		return stats, fmt.Errorf("listing sessions for %s: %w", stats.TargetDate, err)
	}
	stats.SessionsMatched = len(sessions)

	if len(sessions) == 0 {
		log.Info("season reminder run complete", "sessions", 0, "emails_sent", 0)
		j.metrics.RecordRun(ctx, stats)
		return stats, nil
	}

	// Dedup set for this run: one email per (parent, session) pair even if
	// a parent has several children enrolled in the same session.
	seen := make(map[types.AttemptKey]bool)

	for _, sess := range sessions {
		if err := j.processSession(ctx, log, sess, seen, stats); err != nil {
			stats.SessionErrors++
			log.Error("session skipped",
				"session_id", sess.ID,
				"team_id", sess.TeamID,
				"error", err,
			)
			continue
		}
		stats.SessionsProcessed++
	}

	log.Info("season reminder run complete",
		"sessions_matched", stats.SessionsMatched,
		"sessions_processed", stats.SessionsProcessed,
		"session_errors", stats.SessionErrors,
		"emails_sent", stats.EmailsSent,
		"send_failures", stats.SendFailures,
		"parents_skipped", stats.ParentsSkipped,
	)
	j.metrics.RecordRun(ctx, stats)
	return stats, nil
}

// processSession handles one session end to end: roster load, occurrence
// build, and the per-parent send loop. A returned error skips the whole
// session; per-parent failures are absorbed inside the loop.
func (j *SeasonJob) processSession(ctx context.Context, log *slog.Logger, sess db.SessionWithTeam, seen map[types.AttemptKey]bool, stats *RunStats) error {
	parents, err := j.loadParents(ctx, sess.TeamID)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		log.Info("session has no reachable parents", "session_id", sess.ID)
		return nil
	}

	teamName := sess.TeamName
	if teamName == "" {
		teamName = fallbackTeamName(sess.TeamID)
	}

	occurrences := buildSessionSchedule(sess.Session)

	for _, parent := range parents {
		if parent.Email == "" {
			stats.ParentsSkipped++
			continue
		}
		key := types.AttemptKey{SessionID: sess.ID, ParentID: parent.ID, EmailType: j.cfg.EmailType}
		if seen[key] {
			stats.ParentsSkipped++
			continue
		}
		seen[key] = true

		j.sendToParent(ctx, log, key, parent, teamName, occurrences, stats)
	}
	return nil
}

// sendToParent performs one ledger-tracked send. All failures end in the
// ledger, not in a returned error.
func (j *SeasonJob) sendToParent(ctx context.Context, log *slog.Logger, key types.AttemptKey, parent types.Parent, teamName string, occurrences []types.Occurrence, stats *RunStats) {
	now := time.Now()

	// A row already sent means a previous run (or a retry re-invocation of
	// a partially failed session) delivered this reminder. Never re-email.
	existing, err := j.getAttempt(ctx, key)
	if err != nil {
		stats.SendFailures++
		log.Error("ledger lookup failed", "session_id", key.SessionID, "parent_id", key.ParentID, "error", err)
		return
	}
	if existing != nil && existing.Status == types.AttemptSent {
		stats.ParentsSkipped++
		return
	}

	if _, err := j.registerAttempt(ctx, key, now); err != nil {
		stats.SendFailures++
		log.Error("ledger register failed", "session_id", key.SessionID, "parent_id", key.ParentID, "error", err)
		return
	}

	rendered, err := j.renderer.RenderSeasonReminder(j.cfg.EmailType, email.ReminderData{
		ParentName:  parent.DisplayName(),
		TeamName:    teamName,
		Occurrences: occurrences,
	})
	if err != nil {
		stats.SendFailures++
		j.recordFailure(ctx, log, key, fmt.Errorf("rendering email: %w", err))
		return
	}

	msgID, err := j.send(ctx, types.SendInput{
		FromName:    j.cfg.FromName,
		FromAddress: j.cfg.FromAddress,
		To:          parent.Email,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
	})
	if err != nil {
		stats.SendFailures++
		j.recordFailure(ctx, log, key, err)
		return
	}

	if err := j.markSent(ctx, key, msgID); err != nil {
		// The mail is out; a ledger write failure must not trigger a
		// duplicate send later, so log loudly instead of failing the row.
		log.Error("email sent but ledger update failed",
			"session_id", key.SessionID,
			"parent_id", key.ParentID,
			"message_id", msgID,
			"error", err,
		)
	}
	stats.EmailsSent++
	log.Info("reminder sent",
		"session_id", key.SessionID,
		"parent_id", key.ParentID,
		"to", email.RedactEmail(parent.Email),
		"message_id", msgID,
	)
}

// recordFailure writes a failed status and the error text to the ledger.
func (j *SeasonJob) recordFailure(ctx context.Context, log *slog.Logger, key types.AttemptKey, sendErr error) {
	log.Warn("reminder send failed",
		"session_id", key.SessionID,
		"parent_id", key.ParentID,
		"error", sendErr,
	)
	qctx, cancel := context.WithTimeout(ctx, j.cfg.QueryTimeout)
	defer cancel()
	if err := j.attempts.MarkFailed(qctx, key, sendErr.Error()); err != nil {
		log.Error("ledger failure update failed", "session_id", key.SessionID, "parent_id", key.ParentID, "error", err)
	}
}

// loadParents resolves the distinct reachable parents for a team: active
// enrollments, then students, then parents deduplicated by id. Order is
// preserved from the student load so runs are stable.
func (j *SeasonJob) loadParents(ctx context.Context, teamID string) ([]types.Parent, error) {
	qctx, cancel := context.WithTimeout(ctx, j.cfg.QueryTimeout)
	defer cancel()
	enrollments, err := j.roster.ListActiveEnrollments(qctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("loading enrollments: %w", err)
	}
	if len(enrollments) == 0 {
		return nil, nil
	}

	studentIDs := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		studentIDs = append(studentIDs, e.StudentID)
	}

	qctx2, cancel2 := context.WithTimeout(ctx, j.cfg.QueryTimeout)
	defer cancel2()
	students, err := j.roster.ListStudentsByIDs(qctx2, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("loading students: %w", err)
	}

	seenParent := make(map[string]bool)
	parentIDs := make([]string, 0, len(students))
	for _, s := range students {
		if s.ParentID == "" || seenParent[s.ParentID] {
			continue
		}
		seenParent[s.ParentID] = true
		parentIDs = append(parentIDs, s.ParentID)
	}

	qctx3, cancel3 := context.WithTimeout(ctx, j.cfg.QueryTimeout)
	defer cancel3()
	parents, err := j.roster.ListParentsByIDs(qctx3, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("loading parents: %w", err)
	}
	return parents, nil
}

// buildSessionSchedule turns a session's raw fields into its occurrence
// list. A session without an end date collapses to its start date; a
// session with an unparseable weekday list falls back to a single
// occurrence on the start date (the builder's empty-set policy).
func buildSessionSchedule(sess types.Session) []types.Occurrence {
	loc := schedule.DefaultLocation()
	if sess.Timezone != "" {
		if l, err := time.LoadLocation(sess.Timezone); err == nil {
			loc = l
		}
	}

	end := sess.StartDate
	if sess.EndDate != nil {
		end = *sess.EndDate
	}

	return schedule.BuildOccurrences(schedule.BuildInput{
		StartDate: sess.StartDate,
		EndDate:   end,
		Weekdays:  schedule.ParseDaysOfWeek(sess.DaysOfWeek),
		StartTime: sess.StartTime,
		EndTime:   sess.EndTime,
		Location:  sess.Location,
		CoachName: sess.CoachName,
		Canceled:  schedule.ParseCanceledDates(sess.CanceledDates),
		TZ:        loc,
	})
}

// fallbackTeamName synthesizes a display name from a team id when the team
// row carries none.
func fallbackTeamName(teamID string) string {
	id := teamID
	if len(id) > 8 {
		id = id[:8]
	}
	return "Team " + id
}

// --- timeout-wrapped store calls ---

func (j *SeasonJob) listSessions(ctx context.Context, target time.Time) ([]db.SessionWithTeam, error) {
	qctx, cancel := context.WithTimeout(ctx, j.cfg.QueryTimeout)
	defer cancel()
	return j.sessions.ListStartingOn(qctx, target, j.cfg.ExcludedSessionIDs, j.cfg.SessionBatch)
}

func (j *SeasonJob) getAttempt(ctx context.Context, key types.AttemptKey) (*types.EmailAttempt, error) {
	qctx, cancel := context.WithTimeout(ctx, j.cfg.QueryTimeout)
	defer cancel()
	return j.attempts.GetByKey(qctx, key)
}

func (j *SeasonJob) registerAttempt(ctx context.Context, key types.AttemptKey, scheduled time.Time) (*types.EmailAttempt, error) {
	qctx, cancel := context.WithTimeout(ctx, j.cfg.QueryTimeout)
	defer cancel()
	return j.attempts.Register(qctx, key, scheduled)
}

func (j *SeasonJob) markSent(ctx context.Context, key types.AttemptKey, msgID string) error {
	qctx, cancel := context.WithTimeout(ctx, j.cfg.QueryTimeout)
	defer cancel()
	return j.attempts.MarkSent(qctx, key, msgID, time.Now())
}

func (j *SeasonJob) send(ctx context.Context, input types.SendInput) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, j.cfg.SendTimeout)
	defer cancel()
	return j.mailer.Send(sctx, input)
}

// Compile-time assertion that SeasonJob satisfies JobRunner.
var _ JobRunner = (*SeasonJob)(nil)
