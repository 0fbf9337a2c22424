package budget

import (
	"sort"

	"finsync/internal/core"

	"github.com/shopspring/decimal"
)

// Granularity selects the bucket size of Totals.
type Granularity string

const (
	ByMonth Granularity = "monthly"
	ByYear  Granularity = "yearly"
)

// Totals buckets income and expense amounts by calendar month or year (UTC),
// oldest bucket first. It is the local counterpart of the remote aggregate
// endpoints and returns the same shape.
func Totals(txs []core.Transaction, g Granularity) []core.PeriodTotal {
	type key struct{ year, month int }
	buckets := make(map[key]*core.PeriodTotal)

	for _, tx := range txs {
		ts := tx.Timestamp.UTC()
		k := key{year: ts.Year()}
		if g == ByMonth {
			k.month = int(ts.Month())
		}
		b, ok := buckets[k]
		if !ok {
			b = &core.PeriodTotal{Year: k.year, Month: k.month, Income: decimal.Zero, Expense: decimal.Zero}
			buckets[k] = b
		}
		switch tx.Type {
		case core.Income:
			b.Income = b.Income.Add(tx.Amount)
		case core.Expense:
			b.Expense = b.Expense.Add(tx.Amount)
		}
	}

	out := make([]core.PeriodTotal, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}
