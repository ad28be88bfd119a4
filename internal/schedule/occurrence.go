package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"seasonmail/internal/types"
)

// MaxWalkDays bounds the inclusive date-range walk. A season never runs this
// long; the cap is a safety valve against malformed start/end pairs.
const MaxWalkDays = 100

// BuildInput carries everything the occurrence builder needs. StartDate and
// EndDate are interpreted by their year/month/day components only; any clock
// or zone on them is ignored. A session without an end date must be passed
// with EndDate equal to StartDate.
type BuildInput struct {
	StartDate time.Time
	EndDate   time.Time
	Weekdays  []int // ISO weekday numbers; empty triggers the single-date fallback
	StartTime string
	EndTime   string
	Location  string
	CoachName string
	Canceled  map[string]bool // ISO dates (YYYY-MM-DD) to skip
	TZ        *time.Location // target timezone; nil means DefaultLocation()
}

// DefaultLocation returns the platform timezone used when a session carries
// none. Failure to load it is impossible on a standard zoneinfo install, but
// UTC is still a safer answer than a panic in the middle of a batch.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

// BuildOccurrences expands a session's date range into the ordered list of
// concrete practice dates.
//
// Rules:
//   - An empty weekday set emits exactly one occurrence on the start date,
//     so malformed day lists never silently produce an empty schedule.
//   - The walk is day-by-day, inclusive of both boundary dates, capped at
//     MaxWalkDays iterations.
//   - Dates are constructed from explicit year/month/day components in the
//     target timezone. Stepping uses component arithmetic too, so a DST
//     transition inside the range can never shift a date by a day.
//   - Canceled dates are matched by canonical ISO string.
func BuildOccurrences(in BuildInput) []types.Occurrence {
	loc := in.TZ
	if loc == nil {
		loc = DefaultLocation()
	}

	start := dateOnly(in.StartDate, loc)
	end := dateOnly(in.EndDate, loc)
	if end.Before(start) {
		end = start
	}

	timeRange := formatTimeRange(in.StartTime, in.EndTime)

	if len(in.Weekdays) == 0 {
		return []types.Occurrence{newOccurrence(start, timeRange, in)}
	}

	want := make(map[int]bool, len(in.Weekdays))
	for _, d := range in.Weekdays {
		want[d] = true
	}

	var out []types.Occurrence
	cur := start
	for i := 0; i < MaxWalkDays && !cur.After(end); i++ {
		iso := cur.Format("2006-01-02")
		if want[isoWeekday(cur)] && !in.Canceled[iso] {
			out = append(out, newOccurrence(cur, timeRange, in))
		}
		cur = nextDay(cur)
	}
	return out
}

// ParseCanceledDates extracts the set of canceled ISO dates from a free-text
// list. Tokens in YYYY-MM-DD or MM/DD/YYYY form are accepted; anything else
// is dropped. The result keys are always canonical YYYY-MM-DD strings.
func ParseCanceledDates(raw string) map[string]bool {
	out := make(map[string]bool)
	if strings.TrimSpace(raw) == "" {
		return out
	}
	for _, tok := range splitDateTokens(raw) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if t, err := time.Parse("2006-01-02", tok); err == nil {
			out[t.Format("2006-01-02")] = true
			continue
		}
		if t, err := time.Parse("1/2/2006", tok); err == nil {
			out[t.Format("2006-01-02")] = true
		}
	}
	return out
}

// splitDateTokens splits on the list separators only. Slashes stay intact
// because they appear inside MM/DD/YYYY tokens.
func splitDateTokens(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == ' ' || r == '\t' || r == '\n'
	})
}

func newOccurrence(date time.Time, timeRange string, in BuildInput) types.Occurrence {
	return types.Occurrence{
		Date:        date,
		Weekday:     WeekdayName(isoWeekday(date)),
		TimeRange:   timeRange,
		DateLabel:   formatDateEN(date),
		DateLabelES: formatDateES(date),
		Location:    in.Location,
		CoachName:   in.CoachName,
	}
}

// dateOnly rebuilds t as midnight in loc from its date components.
func dateOnly(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// nextDay advances one calendar day by component arithmetic. time.Date
// normalizes day+1 past month boundaries and lands on midnight even when a
// DST transition makes a literal 24h add drift.
func nextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// isoWeekday returns Monday=1 .. Sunday=7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return Sunday
	}
	return wd
}

// formatTimeRange turns ("18:00", "19:30") into "6:00 PM - 7:30 PM". A time
// that fails to parse is passed through as typed, so bad data stays visible
// rather than blanking the schedule.
func formatTimeRange(start, end string) string {
	s := formatClock(start)
	e := formatClock(end)
	switch {
	case s == "" && e == "":
		return ""
	case e == "":
		return s
	case s == "":
		return e
	default:
		return s + " - " + e
	}
}

func formatClock(hhmm string) string {
	hhmm = strings.TrimSpace(hhmm)
	if hhmm == "" {
		return ""
	}
	parts := strings.SplitN(hhmm, ":", 3)
	if len(parts) < 2 {
		return hhmm
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return hhmm
	}
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, m, suffix)
}

func formatDateEN(t time.Time) string {
	return t.Format("Monday, January 2")
}

var spanishDays = [8]string{"", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado", "domingo"}

var spanishMonths = [13]string{"", "enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}

func formatDateES(t time.Time) string {
	return fmt.Sprintf("%s %d de %s", spanishDays[isoWeekday(t)], t.Day(), spanishMonths[int(t.Month())])
}
