// Package dates implements calendar-day math over YYYY-MM-DD strings.
//
// All functions parse and format in the local timezone and hand back plain
// strings; time.Time values never cross the package boundary, which keeps
// re-renders of the same date stable regardless of UTC offset.
package dates

import (
	"fmt"
	"time"
)

// Layout is the wire format for calendar dates.
const Layout = "2006-01-02"

// ViewMode selects the calendar granularity for range computation.
type ViewMode string

const (
	ViewDay   ViewMode = "day"
	ViewWeek  ViewMode = "week"
	ViewMonth ViewMode = "month"
)

func (m ViewMode) Valid() bool {
	switch m {
	case ViewDay, ViewWeek, ViewMonth:
		return true
	}
	return false
}

func parse(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

func format(t time.Time) string {
	return t.Format(Layout)
}

// IsValid reports whether s parses as a YYYY-MM-DD date.
func IsValid(s string) bool {
	_, err := parse(s)
	return err == nil
}

// Today returns the current local date.
func Today() string {
	return format(time.Now())
}

// AddDays shifts a date by n calendar days (n may be negative).
func AddDays(s string, n int) (string, error) {
	t, err := parse(s)
	if err != nil {
		return "", err
	}
	return format(t.AddDate(0, 0, n)), nil
}

// AddMonths shifts a date by n calendar months. Day-of-month overflow rolls
// into the following month per time.AddDate normalization; no clamping.
func AddMonths(s string, n int) (string, error) {
	t, err := parse(s)
	if err != nil {
		return "", err
	}
	return format(t.AddDate(0, n, 0)), nil
}

// Weekday returns the day of week for a date.
func Weekday(s string) (time.Weekday, error) {
	t, err := parse(s)
	if err != nil {
		return 0, err
	}
	return t.Weekday(), nil
}

// SameMonth reports whether two dates fall in the same calendar month.
func SameMonth(a, b string) (bool, error) {
	ta, err := parse(a)
	if err != nil {
		return false, err
	}
	tb, err := parse(b)
	if err != nil {
		return false, err
	}
	return ta.Year() == tb.Year() && ta.Month() == tb.Month(), nil
}

// mondayOnOrBefore returns the Monday of the week containing t.
// Sunday belongs to the preceding week (offset -6), so week views always
// start on Monday no matter which day of the week is selected.
func mondayOnOrBefore(t time.Time) time.Time {
	offset := 1 - int(t.Weekday())
	if t.Weekday() == time.Sunday {
		offset = -6
	}
	return t.AddDate(0, 0, offset)
}

// Range maps (date, mode) to the inclusive fetch range for that view.
//
//	day:   [date, date]
//	week:  [monday, monday+6], Monday-anchored
//	month: [first of month, last of month]
func Range(s string, mode ViewMode) (string, string, error) {
	t, err := parse(s)
	if err != nil {
		return "", "", err
	}
	switch mode {
	case ViewDay:
		return s, s, nil
	case ViewWeek:
		monday := mondayOnOrBefore(t)
		return format(monday), format(monday.AddDate(0, 0, 6)), nil
	case ViewMonth:
		first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.Local)
		last := first.AddDate(0, 1, -1)
		return format(first), format(last), nil
	}
	return "", "", fmt.Errorf("invalid view mode %q", mode)
}

// WeekDates returns the seven dates (Monday through Sunday) of the week
// containing s.
func WeekDates(s string) ([]string, error) {
	t, err := parse(s)
	if err != nil {
		return nil, err
	}
	monday := mondayOnOrBefore(t)
	out := make([]string, 7)
	for i := range out {
		out[i] = format(monday.AddDate(0, 0, i))
	}
	return out, nil
}

// MonthGridSize is the fixed cell count of the month view: six full weeks.
const MonthGridSize = 42

// MonthGrid returns the 42 dates of the 6x7 month view for the month
// containing s, starting at the Monday on or before the 1st. Leading and
// trailing cells spill into the adjacent months; the whole calendar month is
// always a contiguous subsequence.
func MonthGrid(s string) ([]string, error) {
	t, err := parse(s)
	if err != nil {
		return nil, err
	}
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.Local)
	start := mondayOnOrBefore(first)
	out := make([]string, MonthGridSize)
	for i := range out {
		out[i] = format(start.AddDate(0, 0, i))
	}
	return out, nil
}
