// Package schedule contains the pure functions that turn a session's
// free-text schedule fields into typed values: weekday lists into canonical
// weekday numbers, canceled-date lists into ISO date sets, and date ranges
// into concrete practice occurrences. Nothing in this package touches the
// database or the clock; every function is deterministic on its inputs.
package schedule

import (
	"regexp"
	"sort"
	"strings"
)

// Weekday numbers follow ISO 8601: Monday=1 .. Sunday=7.
const (
	Monday    = 1
	Tuesday   = 2
	Wednesday = 3
	Thursday  = 4
	Friday    = 5
	Saturday  = 6
	Sunday    = 7
)

// dayAliases maps every accepted token to its weekday number. Covers English
// full names, 3-letter and 1-letter abbreviations, and Spanish full names
// (admins enter either language). Tokens are matched lowercase with accents
// stripped.
var dayAliases = map[string]int{
	"monday": Monday, "mon": Monday, "m": Monday, "lunes": Monday,
	"tuesday": Tuesday, "tue": Tuesday, "tues": Tuesday, "t": Tuesday, "martes": Tuesday,
	"wednesday": Wednesday, "wed": Wednesday, "w": Wednesday, "miercoles": Wednesday,
	"thursday": Thursday, "thu": Thursday, "thur": Thursday, "thurs": Thursday, "th": Thursday, "jueves": Thursday,
	"friday": Friday, "fri": Friday, "f": Friday, "viernes": Friday,
	"saturday": Saturday, "sat": Saturday, "sa": Saturday, "s": Saturday, "sabado": Saturday,
	"sunday": Sunday, "sun": Sunday, "su": Sunday, "domingo": Sunday,
}

// tokenSplit matches the separators admins actually use: comma, semicolon,
// pipe, slash, and runs of whitespace.
var tokenSplit = regexp.MustCompile(`[,;|/\s]+`)

// accentReplacer folds the accented vowels that appear in Spanish day names.
var accentReplacer = strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u")

// ParseDaysOfWeek normalizes a free-text weekday list ("Mon,Wed", "m / w",
// "lunes;miércoles") into a deduplicated, ascending-sorted set of weekday
// numbers. Unrecognized tokens are silently dropped. Empty input yields an
// empty set; callers that need at least one occurrence must apply their own
// fallback.
func ParseDaysOfWeek(raw string) []int {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	seen := make(map[int]bool, 7)
	for _, tok := range tokenSplit.Split(raw, -1) {
		tok = accentReplacer.Replace(strings.ToLower(strings.TrimSpace(tok)))
		tok = strings.Trim(tok, ".")
		if tok == "" {
			continue
		}
		if day, ok := dayAliases[tok]; ok {
			seen[day] = true
		}
	}

	days := make([]int, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Ints(days)
	return days
}

// WeekdayName returns the English name for an ISO weekday number.
func WeekdayName(day int) string {
	switch day {
	case Monday:
		return "Monday"
	case Tuesday:
		return "Tuesday"
	case Wednesday:
		return "Wednesday"
	case Thursday:
		return "Thursday"
	case Friday:
		return "Friday"
	case Saturday:
		return "Saturday"
	case Sunday:
		return "Sunday"
	default:
		return ""
	}
}
