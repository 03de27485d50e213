package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"courseflow/internal/types"
)

// localDateFormat is the wire form of a user-local calendar date.
const localDateFormat = "2006-01-02"

// ResolveZone loads the named IANA zone, falling back to the configured
// default and finally UTC. A user with a broken timezone keeps receiving
// content instead of erroring out of the planning pass.
func ResolveZone(name, fallback string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if fallback != "" {
		if loc, err := time.LoadLocation(fallback); err == nil {
			return loc
		}
	}
	return time.UTC
}

// ParseHHMM parses a "HH:MM" wall-clock string, clamping fields into range.
// Malformed input falls back to def, which must itself be well formed.
func ParseHHMM(s, def string) (hour, minute int) {
	parse := func(v string) (int, int, bool) {
		parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
		if len(parts) != 2 {
			return 0, 0, false
		}
		hh, err1 := strconv.Atoi(parts[0])
		mm, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return clamp(hh, 0, 23), clamp(mm, 0, 59), true
	}
	if hh, mm, ok := parse(s); ok {
		return hh, mm
	}
	hh, mm, _ := parse(def)
	return hh, mm
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CombineLocal returns the instant at hour:minute on date's calendar day in
// loc. Only date's year/month/day are used.
func CombineLocal(date time.Time, hour, minute int, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, loc)
}

// DayIndex returns the 1-based course day for a local calendar date given the
// enrollment instant. Day 1 is the local date of enrollment; dates before it
// clamp to 1.
func DayIndex(enrolledAt time.Time, localDate time.Time, loc *time.Location) int {
	ey, em, ed := enrolledAt.In(loc).Date()
	ly, lm, ld := localDate.Date()
	enrolled := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	local := time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)
	days := int(local.Sub(enrolled) / (24 * time.Hour))
	if days < 0 {
		return 1
	}
	return days + 1
}

// IsQuietTime reports whether the local wall clock of t falls inside the
// quiet window [start, end). The window may cross midnight
// (e.g. 22:00 to 09:00).
func IsQuietTime(t time.Time, startHHMM, endHHMM string) bool {
	sh, sm := ParseHHMM(startHHMM, "22:00")
	eh, em := ParseHHMM(endHHMM, "09:00")
	cur := t.Hour()*60 + t.Minute()
	start := sh*60 + sm
	end := eh*60 + em
	if start < end {
		return start <= cur && cur < end
	}
	return cur >= start || cur < end
}

// ReminderRunLocal computes the local instant for the daily backlog reminder
// given the day's local delivery instant. The reminder fires remindAfter past
// delivery; if that lands in quiet hours it moves to the fallback wall clock,
// pushed to the next day when the fallback would not be after the candidate.
func (c Config) ReminderRunLocal(deliveryLocal time.Time) time.Time {
	candidate := deliveryLocal.Add(c.RemindAfter)
	if !IsQuietTime(candidate, c.QuietHoursStart, c.QuietHoursEnd) {
		return candidate
	}
	fh, fm := ParseHHMM(c.FallbackTime, "09:30")
	fallback := CombineLocal(candidate, fh, fm, candidate.Location())
	if !fallback.After(candidate) {
		fallback = fallback.AddDate(0, 0, 1)
	}
	return fallback
}

// FormatLocalDate renders t's calendar day as the "2006-01-02" wire form.
func FormatLocalDate(t time.Time) string {
	return t.Format(localDateFormat)
}

// isoWeekday returns the ISO-8601 weekday (Monday=1 .. Sunday=7).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// matchesFrequency reports whether the habit cadence includes the local date.
func matchesFrequency(d time.Time, freq types.HabitFrequency) bool {
	switch freq {
	case types.FreqWeekdays:
		return isoWeekday(d) <= 5
	case types.FreqWeekends:
		return isoWeekday(d) >= 6
	default:
		return true
	}
}

// dayJobKey builds the idempotency key for a day content job. Exactly one of
// lessonID/questID is set; the other is rendered as 0. The version component
// rotates on content edits so a stale pending plan is superseded instead of
// mutated.
func dayJobKey(dayIndex int, lessonID, questID, version int64) string {
	return fmt.Sprintf("day:%d:l%d:q:q%d:v:%d", dayIndex, lessonID, questID, version)
}
