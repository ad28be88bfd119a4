// Package types defines the shared domain model for the season reminder
// service: the read-only enrollment entities loaded from the platform
// database, the derived practice occurrences, and the durable email attempt
// ledger rows that the reminder job and retry sweeper coordinate through.
package types

import "time"

// Session is a recurring-practice definition owned by a team. Sessions are
// read-only inputs to the reminder pipeline; the registration product writes
// them. The weekday list and canceled-date list are free text entered by
// admins and must go through the schedule parsers before use.
type Session struct {
	ID            string
	TeamID        string
	StartDate     time.Time // date only; midnight in the platform timezone
	EndDate       *time.Time
	StartTime     string // "HH:MM" 24h
	EndTime       string // "HH:MM" 24h
	DaysOfWeek    string // free text, e.g. "Mon,Wed" or "lunes/miercoles"
	CanceledDates string // free text list of ISO dates, may be empty
	Location      string
	CoachName     string
	Timezone      string // IANA name; empty means the platform default
}

// Team owns sessions and enrollments. Only sessions of active teams are
// eligible for reminders.
type Team struct {
	ID       string
	Name     string
	IsActive bool
}

// Enrollment links a student to a team. Inactive enrollments are ignored.
type Enrollment struct {
	StudentID string
	TeamID    string
	IsActive  bool
}

// Student is a registered child with a reference to the enrolling parent.
type Student struct {
	ID        string
	FirstName string
	LastName  string
	ParentID  string
}

// Parent is the guardian who receives reminder email. Email may be empty;
// such parents are skipped, never errored.
type Parent struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

// DisplayName returns the parent's name for email salutations.
func (p Parent) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.LastName
	}
}

// Occurrence is a single concrete practice date derived from a Session. It is
// never persisted; the occurrence builder recomputes it on demand.
type Occurrence struct {
	Date        time.Time // midnight in the session timezone
	Weekday     string    // English weekday name
	TimeRange   string    // "6:00 PM - 7:30 PM"
	DateLabel   string    // English, e.g. "Wednesday, September 17"
	DateLabelES string    // Spanish, e.g. "miércoles 17 de septiembre"
	Location    string
	CoachName   string
}

// ISODate returns the occurrence date as YYYY-MM-DD.
func (o Occurrence) ISODate() string {
	return o.Date.Format("2006-01-02")
}

// EmailAttempt is one row of the reminder attempt ledger. At most one row
// exists per (SessionID, ParentID, EmailType); the repository enforces this
// with an upsert on the natural key. ID is a surrogate uuid used for targeted
// updates in the retry path.
type EmailAttempt struct {
	ID            string
	SessionID     string
	ParentID      string
	EmailType     EmailType
	AttemptNumber int
	Status        AttemptStatus
	ScheduledTime time.Time
	ExecutedTime  *time.Time
	ErrorMessage  string
	EmailSentID   string // provider message id, set on success
}

// AttemptKey is the ledger's natural key.
type AttemptKey struct {
	SessionID string
	ParentID  string
	EmailType EmailType
}

// Key returns the natural key of the attempt.
func (a EmailAttempt) Key() AttemptKey {
	return AttemptKey{SessionID: a.SessionID, ParentID: a.ParentID, EmailType: a.EmailType}
}

// SendInput carries a fully rendered outbound email.
type SendInput struct {
	FromName    string
	FromAddress string
	To          string
	Subject     string
	BodyHTML    string
	BodyText    string
}
