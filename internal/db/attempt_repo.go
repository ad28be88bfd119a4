package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"seasonmail/internal/types"
)

// AttemptRepository manages the email_attempts ledger: one durable row per
// (session, parent, email type) reminder attempt. The natural key carries a
// UNIQUE constraint, so Register is an idempotent upsert and concurrent runs
// can never produce two rows for the same send.
type AttemptRepository struct {
	db DBTX
}

// NewAttemptRepository creates an AttemptRepository backed by the given
// database connection (pool or transaction).
func NewAttemptRepository(db DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

const attemptColumns = `id, session_id, parent_id, email_type, attempt_number,
	status, scheduled_time, executed_time, COALESCE(error_message, ''),
	COALESCE(email_sent_id, '')`

// Register upserts a pending attempt row for the given key. On conflict the
// existing row is reset to pending with a fresh scheduled time and cleared
// error. The attempt counter advances only when the existing row is in
// retrying state: that row was handed to a re-run by the sweeper, so this
// registration IS the retry and must consume an attempt. Any other
// re-registration (a duplicate daily run over an old pending/failed row)
// preserves the counter. Returns the resulting row.
func (r *AttemptRepository) Register(ctx context.Context, key types.AttemptKey, scheduledTime time.Time) (*types.EmailAttempt, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO email_attempts
		 (id, session_id, parent_id, email_type, attempt_number, status, scheduled_time)
		 VALUES ($1, $2, $3, $4, 1, $5, $6)
		 ON CONFLICT (session_id, parent_id, email_type) DO UPDATE
		 SET attempt_number = email_attempts.attempt_number
		       + CASE WHEN email_attempts.status = 'retrying' THEN 1 ELSE 0 END,
		     status = EXCLUDED.status,
		     scheduled_time = EXCLUDED.scheduled_time,
		     error_message = NULL,
		     updated_at = NOW()
		 RETURNING `+attemptColumns,
		uuid.NewString(), key.SessionID, key.ParentID, string(key.EmailType),
		string(types.AttemptPending), scheduledTime,
	)
	att, err := scanAttempt(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "registering email attempt", err)
	}
	return att, nil
}

// GetByKey returns the attempt row for a natural key, or nil when no attempt
// has ever been registered.
func (r *AttemptRepository) GetByKey(ctx context.Context, key types.AttemptKey) (*types.EmailAttempt, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM email_attempts
		 WHERE session_id = $1 AND parent_id = $2 AND email_type = $3`,
		key.SessionID, key.ParentID, string(key.EmailType),
	)
	att, err := scanAttempt(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "loading email attempt", err)
	}
	return att, nil
}

// MarkSent transitions a row to sent with the provider message id and
// execution time. Terminal success.
func (r *AttemptRepository) MarkSent(ctx context.Context, key types.AttemptKey, messageID string, executedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE email_attempts
		 SET status = $4, email_sent_id = $5, executed_time = $6,
		     error_message = NULL, updated_at = NOW()
		 WHERE session_id = $1 AND parent_id = $2 AND email_type = $3`,
		key.SessionID, key.ParentID, string(key.EmailType),
		string(types.AttemptSent), messageID, executedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "marking attempt sent", err)
	}
	return nil
}

// MarkFailed transitions a row to failed, recording the error text.
func (r *AttemptRepository) MarkFailed(ctx context.Context, key types.AttemptKey, errMsg string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE email_attempts
		 SET status = $4, error_message = $5, updated_at = NOW()
		 WHERE session_id = $1 AND parent_id = $2 AND email_type = $3`,
		key.SessionID, key.ParentID, string(key.EmailType),
		string(types.AttemptFailed), truncateError(errMsg),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "marking attempt failed", err)
	}
	return nil
}

// ListOverdue returns failed/pending rows whose scheduled time is older than
// cutoff and whose attempt counter has not passed maxAttempts, oldest first,
// capped at limit. This is the retry sweeper's selection query, backed by
// the (status, scheduled_time) index.
func (r *AttemptRepository) ListOverdue(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]types.EmailAttempt, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM email_attempts
		 WHERE status = ANY($1)
		   AND scheduled_time < $2
		   AND attempt_number <= $3
		 ORDER BY scheduled_time ASC
		 LIMIT $4`,
		[]string{string(types.AttemptFailed), string(types.AttemptPending)},
		cutoff, maxAttempts, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "listing overdue attempts", err)
	}
	defer rows.Close()

	var out []types.EmailAttempt
	for rows.Next() {
		att, err := scanAttempt(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "scanning attempt row", err)
		}
		out = append(out, *att)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "iterating attempt rows", err)
	}
	return out, nil
}

// MarkRetrying flags the given rows (by surrogate id) as retrying before a
// group is re-run.
func (r *AttemptRepository) MarkRetrying(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE email_attempts
		 SET status = $2, updated_at = NOW()
		 WHERE id = ANY($1)`,
		ids, string(types.AttemptRetrying),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "marking attempts retrying", err)
	}
	return nil
}

// CloseOutRetrying handles every row of a (session, email type) group still
// in retrying state after a re-run: the re-run never reached them, so they
// count as a consumed attempt. Rows past maxAttempts become terminally
// failed; the rest take reStatus (failed when the re-run completed without
// reaching them, pending when the re-run itself errored and the group is
// rescheduled) with a fresh scheduled time. Returns the number of rows
// touched.
//
// The attempt counter only ever increases here; without the bump a row whose
// re-runs keep missing it would stay eligible forever.
func (r *AttemptRepository) CloseOutRetrying(ctx context.Context, sessionID string, emailType types.EmailType, maxAttempts int, reStatus types.AttemptStatus, nextScheduled time.Time, errMsg string) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE email_attempts
		 SET attempt_number = attempt_number + 1,
		     status = CASE WHEN attempt_number + 1 > $3 THEN $4 ELSE $5 END,
		     scheduled_time = $6,
		     error_message = $7,
		     updated_at = NOW()
		 WHERE session_id = $1 AND email_type = $2 AND status = $8`,
		sessionID, string(emailType), maxAttempts,
		string(types.AttemptFailed), string(reStatus),
		nextScheduled, truncateError(errMsg),
		string(types.AttemptRetrying),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "closing out retrying attempts", err)
	}
	return int(tag.RowsAffected()), nil
}

// scanner is the subset of pgx.Row/pgx.Rows used by scanAttempt.
type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (*types.EmailAttempt, error) {
	var att types.EmailAttempt
	var emailType, status string
	var executed *time.Time
	if err := row.Scan(
		&att.ID, &att.SessionID, &att.ParentID, &emailType, &att.AttemptNumber,
		&status, &att.ScheduledTime, &executed, &att.ErrorMessage, &att.EmailSentID,
	); err != nil {
		return nil, err
	}
	att.EmailType = types.EmailType(emailType)
	att.Status = types.AttemptStatus(status)
	att.ExecutedTime = executed
	return &att, nil
}

// truncateError bounds stored error text so a verbose provider response
// cannot bloat the ledger.
func truncateError(msg string) string {
	const maxLen = 1000
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
