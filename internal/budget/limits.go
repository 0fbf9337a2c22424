package budget

import (
	"time"

	"finsync/internal/core"

	"github.com/shopspring/decimal"
)

// LimitStatus is a spending limit evaluated against the current period.
type LimitStatus struct {
	Limit     core.SpendingLimit
	Usage     Usage
	Remaining decimal.Decimal
	// Ratio is spent/limit, rounded to four decimals.
	Ratio    decimal.Decimal
	Exceeded bool
	// Known is false when the limit's period label has no window.
	Known bool
}

// EvaluateLimit measures limit against the transactions of its category in
// the period containing ref.
func EvaluateLimit(ref time.Time, limit core.SpendingLimit, txs []core.Transaction) LimitStatus {
	_, known := WindowFor(limit.Period)
	usage := Aggregate(ref, limit.CategoryID, limit.Period, txs)

	status := LimitStatus{
		Limit:     limit,
		Usage:     usage,
		Remaining: limit.Limit.Sub(usage.Sum),
		Ratio:     decimal.Zero,
		Exceeded:  usage.Sum.GreaterThan(limit.Limit),
		Known:     known,
	}
	if limit.Limit.IsPositive() {
		status.Ratio = usage.Sum.DivRound(limit.Limit, 4)
	}
	return status
}

// EvaluateLimits evaluates every limit, preserving order.
func EvaluateLimits(ref time.Time, limits []core.SpendingLimit, txs []core.Transaction) []LimitStatus {
	out := make([]LimitStatus, 0, len(limits))
	for _, l := range limits {
		out = append(out, EvaluateLimit(ref, l, txs))
	}
	return out
}
