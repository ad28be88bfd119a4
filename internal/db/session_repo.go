package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"seasonmail/internal/types"
)

// SessionWithTeam is the row shape of the reminder target query: a session
// plus the owning team's display name, joined in one round trip.
type SessionWithTeam struct {
	types.Session
	TeamName string
}

// SessionRepository reads recurring-practice definitions from the sessions
// and teams tables. All access is read-only; the registration product owns
// these tables.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a SessionRepository backed by the given
// database connection (pool or transaction).
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// ListStartingOn returns sessions whose start date equals target and whose
// owning team is active, excluding the given session IDs, capped at limit.
// target is compared by date only; pass midnight in the platform timezone.
func (r *SessionRepository) ListStartingOn(ctx context.Context, target time.Time, excludedIDs []string, limit int) ([]SessionWithTeam, error) {
	if excludedIDs == nil {
		excludedIDs = []string{}
	}
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.team_id, s.start_date, s.end_date,
		        COALESCE(s.start_time, ''), COALESCE(s.end_time, ''),
		        COALESCE(s.days_of_week, ''), COALESCE(s.canceled_dates, ''),
		        COALESCE(s.location, ''), COALESCE(s.coach_name, ''),
		        COALESCE(s.timezone, ''),
		        COALESCE(t.name, '')
		 FROM sessions s
		 JOIN teams t ON t.id = s.team_id
		 WHERE s.start_date = $1
		   AND t.is_active = TRUE
		   AND s.id != ALL($2)
		 ORDER BY s.start_date, s.id
		 LIMIT $3`,
		target.Format("2006-01-02"), excludedIDs, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "listing sessions by start date", err)
	}
	defer rows.Close()

	var out []SessionWithTeam
	for rows.Next() {
		var s SessionWithTeam
		var endDate *time.Time
		if err := rows.Scan(
			&s.ID, &s.TeamID, &s.StartDate, &endDate,
			&s.StartTime, &s.EndTime,
			&s.DaysOfWeek, &s.CanceledDates,
			&s.Location, &s.CoachName,
			&s.Timezone,
			&s.TeamName,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "scanning session row", err)
		}
		s.EndDate = endDate
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "iterating session rows", err)
	}
	return out, nil
}

// GetByID loads a single session. Used by the retry sweeper to recover a
// session's start date when computing the backdated clock.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*types.Session, error) {
	var s types.Session
	var endDate *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT id, team_id, start_date, end_date,
		        COALESCE(start_time, ''), COALESCE(end_time, ''),
		        COALESCE(days_of_week, ''), COALESCE(canceled_dates, ''),
		        COALESCE(location, ''), COALESCE(coach_name, ''),
		        COALESCE(timezone, '')
		 FROM sessions
		 WHERE id = $1`,
		id,
	).Scan(
		&s.ID, &s.TeamID, &s.StartDate, &endDate,
		&s.StartTime, &s.EndTime,
		&s.DaysOfWeek, &s.CanceledDates,
		&s.Location, &s.CoachName,
		&s.Timezone,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFound, "session "+id+" not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "loading session", err)
	}
	s.EndDate = endDate
	return &s, nil
}
