// Package reminder implements the season reminder batch job, the retry
// sweeper that drains stuck ledger rows, and the scheduler handle that owns
// the two periodic tasks.
package reminder

import (
	"context"
	"time"

	"seasonmail/internal/db"
	"seasonmail/internal/email"
	"seasonmail/internal/types"
)

// SessionStore is the session-side persistence the job and sweeper need.
// *db.SessionRepository satisfies it; tests provide struct mocks.
type SessionStore interface {
	// ListStartingOn returns sessions starting on the target date whose team
	// is active, minus excluded ids, capped at limit.
	ListStartingOn(ctx context.Context, target time.Time, excludedIDs []string, limit int) ([]db.SessionWithTeam, error)

	// GetByID loads one session; the sweeper uses it to recover a session's
	// start date for the backdated clock.
	GetByID(ctx context.Context, id string) (*types.Session, error)
}

// RosterStore loads the enrollment graph for a team.
type RosterStore interface {
	ListActiveEnrollments(ctx context.Context, teamID string) ([]types.Enrollment, error)
	ListStudentsByIDs(ctx context.Context, ids []string) ([]types.Student, error)
	ListParentsByIDs(ctx context.Context, ids []string) ([]types.Parent, error)
}

// AttemptStore is the reminder attempt ledger.
type AttemptStore interface {
	Register(ctx context.Context, key types.AttemptKey, scheduledTime time.Time) (*types.EmailAttempt, error)
	GetByKey(ctx context.Context, key types.AttemptKey) (*types.EmailAttempt, error)
	MarkSent(ctx context.Context, key types.AttemptKey, messageID string, executedAt time.Time) error
	MarkFailed(ctx context.Context, key types.AttemptKey, errMsg string) error
	ListOverdue(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]types.EmailAttempt, error)
	MarkRetrying(ctx context.Context, ids []string) error
	CloseOutRetrying(ctx context.Context, sessionID string, emailType types.EmailType, maxAttempts int, reStatus types.AttemptStatus, nextScheduled time.Time, errMsg string) (int, error)
}

// MailSender is the outbound transport. external.EmailProvider satisfies it.
type MailSender interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}

// TemplateRenderer renders a campaign's email content.
type TemplateRenderer interface {
	RenderSeasonReminder(emailType types.EmailType, data email.ReminderData) (*email.RenderedEmail, error)
}

// JobRunner is the sweeper's view of a season job: one campaign, runnable
// with an overridden clock.
type JobRunner interface {
	EmailType() types.EmailType
	Run(ctx context.Context, asOf time.Time) (*RunStats, error)
}

// RunStats summarizes one job run for logs, metrics, and the ops API.
type RunStats struct {
	RunID             string          `json:"run_id"`
	EmailType         types.EmailType `json:"email_type"`
	TargetDate        string          `json:"target_date"` // ISO date the run looked for
	SessionsMatched   int             `json:"sessions_matched"`
	SessionsProcessed int             `json:"sessions_processed"`
	SessionErrors     int             `json:"session_errors"`
	EmailsSent        int             `json:"emails_sent"`
	SendFailures      int             `json:"send_failures"`
	ParentsSkipped    int             `json:"parents_skipped"` // no email, duplicate in run, or already sent
}

// SweepStats summarizes one retry sweep.
type SweepStats struct {
	RowsSelected  int `json:"rows_selected"`
	Groups        int `json:"groups"`
	GroupsRerun   int `json:"groups_rerun"`
	GroupsFailed  int `json:"groups_failed"`
	RowsClosedOut int `json:"rows_closed_out"`
}

// JobMetrics abstracts telemetry for job runs and retry sweeps. The
// CloudWatch implementation lives in metrics.go; NoopMetrics is used when
// telemetry is not configured.
type JobMetrics interface {
	RecordRun(ctx context.Context, stats *RunStats)
	RecordSweep(ctx context.Context, stats *SweepStats)
}

// NoopMetrics discards all telemetry.
type NoopMetrics struct{}

func (NoopMetrics) RecordRun(context.Context, *RunStats)     {}
func (NoopMetrics) RecordSweep(context.Context, *SweepStats) {}
