// Package budget aggregates transactions over calendar periods.
//
// Each period keyword (daily, weekly, monthly, quarterly, yearly) has its own
// Window strategy that computes the half-open interval containing a reference
// instant. Unknown keywords have no window and therefore match nothing.
package budget

import (
	"time"

	"finsync/internal/core"
)

// Window is the strategy interface for one period keyword.
type Window interface {
	// Bounds returns [start, end) of the period containing ref, in ref's
	// location.
	Bounds(ref time.Time) (start, end time.Time)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DailyWindow covers the calendar date of ref.
type DailyWindow struct{}

func (DailyWindow) Bounds(ref time.Time) (time.Time, time.Time) {
	start := midnight(ref)
	return start, start.AddDate(0, 0, 1)
}

// WeeklyWindow covers Monday 00:00 through the end of Sunday.
type WeeklyWindow struct{}

func (WeeklyWindow) Bounds(ref time.Time) (time.Time, time.Time) {
	// time.Weekday starts at Sunday=0; shift so Monday=0.
	offset := (int(ref.Weekday()) + 6) % 7
	start := midnight(ref).AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

// MonthlyWindow covers the calendar month of ref.
type MonthlyWindow struct{}

func (MonthlyWindow) Bounds(ref time.Time) (time.Time, time.Time) {
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	return start, start.AddDate(0, 1, 0)
}

// QuarterlyWindow covers the calendar quarter of ref.
type QuarterlyWindow struct{}

func (QuarterlyWindow) Bounds(ref time.Time) (time.Time, time.Time) {
	firstMonth := time.Month((int(ref.Month())-1)/3*3 + 1)
	start := time.Date(ref.Year(), firstMonth, 1, 0, 0, 0, 0, ref.Location())
	return start, start.AddDate(0, 3, 0)
}

// YearlyWindow covers the calendar year of ref.
type YearlyWindow struct{}

func (YearlyWindow) Bounds(ref time.Time) (time.Time, time.Time) {
	start := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, ref.Location())
	return start, start.AddDate(1, 0, 0)
}

// windows maps period keywords to their strategies.
var windows = map[core.Period]Window{
	core.Daily:     DailyWindow{},
	core.Weekly:    WeeklyWindow{},
	core.Monthly:   MonthlyWindow{},
	core.Quarterly: QuarterlyWindow{},
	core.Yearly:    YearlyWindow{},
}

// WindowFor returns the strategy for a period label. Matching ignores case
// and surrounding whitespace. The second value is false for unknown labels.
func WindowFor(label string) (Window, bool) {
	p, _ := core.NormalizePeriod(label)
	w, ok := windows[p]
	return w, ok
}

// Contains reports whether t falls in the period of kind label containing
// ref. Unknown labels contain nothing.
func Contains(label string, ref, t time.Time) bool {
	w, ok := WindowFor(label)
	if !ok {
		return false
	}
	start, end := w.Bounds(ref)
	t = t.In(ref.Location())
	return !t.Before(start) && t.Before(end)
}
