package util

import (
	"strconv"
	"time"
)

const dayLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, a plain calendar day, and unix seconds.
// Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(dayLayout, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseDay parses s with ParseTime and truncates the result to its calendar day.
func ParseDay(s string) (time.Time, bool) {
	t, ok := ParseTime(s)
	if !ok {
		return time.Time{}, false
	}
	return TruncateDay(t), true
}

// TruncateDay keeps the calendar date of t (in t's own location) at UTC midnight.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays moves a UTC-midnight date by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}
