package types

// AttemptStatus represents the lifecycle state of a reminder email attempt.
//
// Transitions:
//
//	(new) -> pending -> sent                  terminal success
//	              \--> failed -> retrying -> sent | failed
//
// A row whose attempt number exceeds the retry cap stays failed forever.
type AttemptStatus string

const (
	AttemptPending  AttemptStatus = "pending"
	AttemptSent     AttemptStatus = "sent"
	AttemptFailed   AttemptStatus = "failed"
	AttemptRetrying AttemptStatus = "retrying"
)

// EmailType identifies a reminder campaign. The ledger's natural key includes
// the email type, so the same parent/session pair can receive both the
// week-ahead and the day-ahead reminder.
type EmailType string

const (
	// EmailSeasonStart is the "your season starts tomorrow" reminder.
	EmailSeasonStart EmailType = "season_start_reminder"

	// EmailSeasonWeek is the "your season starts in a week" reminder.
	EmailSeasonWeek EmailType = "season_week_reminder"
)

// LookAheadDays returns how many days before a session's start date the
// campaign fires.
func (t EmailType) LookAheadDays() int {
	if t == EmailSeasonWeek {
		return 7
	}
	return 1
}

// Valid reports whether t is a known campaign type.
func (t EmailType) Valid() bool {
	return t == EmailSeasonStart || t == EmailSeasonWeek
}
