// ABOUTME: History views over the log collection: trailing windows, day groups
// ABOUTME: and today's entries counted from local midnight.

package foodlog

import "time"

// Filter selects a trailing history window.
type Filter string

const (
	FilterDay   Filter = "day"
	FilterWeek  Filter = "week"
	FilterMonth Filter = "month"
)

// Window returns the filter's span. Months are a flat 30 days.
func (f Filter) Window() time.Duration {
	const day = 24 * time.Hour
	switch f {
	case FilterWeek:
		return 7 * day
	case FilterMonth:
		return 30 * day
	default:
		return day
	}
}

// FilterLogs keeps entries logged less than one window before now. Order is
// preserved.
func FilterLogs(logs []LogEntry, f Filter, now time.Time) []LogEntry {
	window := f.Window().Milliseconds()
	nowMS := now.UnixMilli()
	out := make([]LogEntry, 0, len(logs))
	for _, e := range logs {
		if nowMS-e.Timestamp < window {
			out = append(out, e)
		}
	}
	return out
}

// DayGroup is one calendar day of entries.
type DayGroup struct {
	Label   string // e.g. "Mar 1, 2024"
	Entries []LogEntry
}

// GroupByDay buckets entries by calendar day in loc. Groups appear in the
// order their first entry appears; entries keep their relative order.
func GroupByDay(logs []LogEntry, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}
	var groups []DayGroup
	index := make(map[string]int)
	for _, e := range logs {
		label := time.UnixMilli(e.Timestamp).In(loc).Format("Jan 2, 2006")
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, DayGroup{Label: label})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	return groups
}

// StartOfDay returns midnight of now's calendar day in loc.
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// TodayLogs keeps entries logged at or after local midnight. Order is
// preserved.
func TodayLogs(logs []LogEntry, now time.Time, loc *time.Location) []LogEntry {
	start := StartOfDay(now, loc).UnixMilli()
	out := make([]LogEntry, 0, len(logs))
	for _, e := range logs {
		if e.Timestamp >= start {
			out = append(out, e)
		}
	}
	return out
}

// LoggedToday reports whether an entry named name was logged today.
func LoggedToday(logs []LogEntry, name string, now time.Time, loc *time.Location) bool {
	start := StartOfDay(now, loc).UnixMilli()
	for _, e := range logs {
		if e.Timestamp >= start && e.ItemName == name {
			return true
		}
	}
	return false
}

// CountByMeal tallies entries per meal type.
func CountByMeal(logs []LogEntry) map[MealType]int {
	counts := make(map[MealType]int)
	for _, e := range logs {
		counts[e.MealType]++
	}
	return counts
}
