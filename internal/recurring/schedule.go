// Package recurring turns recurring payments into dated transactions.
//
// Each frequency has its own Schedule so that the occurrence rule for a
// period lives in one place and new periods can be registered without
// touching the materializer.
package recurring

import (
	"fmt"
	"time"

	"finsync/internal/core"
)

// Schedule yields the n-th occurrence (n >= 0) of a series anchored at start.
type Schedule interface {
	Occurrence(start time.Time, n int) time.Time
}

// DailySchedule repeats every calendar day.
type DailySchedule struct{}

func (DailySchedule) Occurrence(start time.Time, n int) time.Time {
	return start.AddDate(0, 0, n)
}

// WeeklySchedule repeats every seven days.
type WeeklySchedule struct{}

func (WeeklySchedule) Occurrence(start time.Time, n int) time.Time {
	return start.AddDate(0, 0, 7*n)
}

// MonthlySchedule repeats every Months months on the start day, clamped to
// the last day of shorter months.
type MonthlySchedule struct {
	Months int
}

func (s MonthlySchedule) Occurrence(start time.Time, n int) time.Time {
	return addMonthsClamped(start, s.Months*n)
}

// addMonthsClamped differs from time.AddDate, which would roll Jan 31 + 1
// month over into March.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return first.AddDate(0, 0, d-1)
}

var schedules = map[core.Period]Schedule{
	core.Daily:     DailySchedule{},
	core.Weekly:    WeeklySchedule{},
	core.Monthly:   MonthlySchedule{Months: 1},
	core.Quarterly: MonthlySchedule{Months: 3},
	core.Yearly:    MonthlySchedule{Months: 12},
}

// ScheduleFor returns the schedule of a frequency label. Labels are
// normalized first, so "Monthly" and " monthly " both resolve.
func ScheduleFor(frequency core.Period) (Schedule, error) {
	p, _ := core.NormalizePeriod(string(frequency))
	s, ok := schedules[p]
	if !ok {
		return nil, fmt.Errorf("unknown frequency %q", frequency)
	}
	return s, nil
}

// Register installs s for frequency, replacing any existing schedule.
func Register(frequency core.Period, s Schedule) {
	schedules[frequency] = s
}

// Occurrences lists the dates of p that fall in (after, until]. Inactive
// payments have none; EndDate, when set, is inclusive.
func Occurrences(p core.RecurringPayment, after, until time.Time) ([]time.Time, error) {
	if !p.Active || p.StartDate.IsZero() || !until.After(after) {
		return nil, nil
	}
	s, err := ScheduleFor(p.Frequency)
	if err != nil {
		return nil, err
	}
	if p.EndDate != nil && p.EndDate.Before(until) {
		until = *p.EndDate
	}

	var out []time.Time
	for n := 0; ; n++ {
		at := s.Occurrence(p.StartDate, n)
		if at.After(until) {
			break
		}
		if at.After(after) {
			out = append(out, at)
		}
	}
	return out, nil
}

// Next returns the first occurrence of p strictly after now. The second
// value is false when the payment is inactive or has ended.
func Next(p core.RecurringPayment, now time.Time) (time.Time, bool, error) {
	if !p.Active || p.StartDate.IsZero() {
		return time.Time{}, false, nil
	}
	s, err := ScheduleFor(p.Frequency)
	if err != nil {
		return time.Time{}, false, err
	}
	for n := 0; ; n++ {
		at := s.Occurrence(p.StartDate, n)
		if p.EndDate != nil && at.After(*p.EndDate) {
			return time.Time{}, false, nil
		}
		if at.After(now) {
			return at, true, nil
		}
	}
}
