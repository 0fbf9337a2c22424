package core

import "strings"

const (
	Daily     Period = "daily"
	Weekly    Period = "weekly"
	Monthly   Period = "monthly"
	Quarterly Period = "quarterly"
	Yearly    Period = "yearly"
)

// Period is a budgeting or recurrence keyword. Labels coming from users or
// the remote are free-form; NormalizePeriod maps them onto the known set.
type Period string

// NormalizePeriod trims and lower-cases label. The second value reports
// whether the result is one of the known periods.
func NormalizePeriod(label string) (Period, bool) {
	p := Period(strings.ToLower(strings.TrimSpace(label)))
	switch p {
	case Daily, Weekly, Monthly, Quarterly, Yearly:
		return p, true
	default:
		return p, false
	}
}
