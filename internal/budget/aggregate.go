package budget

import (
	"time"

	"finsync/internal/core"

	"github.com/shopspring/decimal"
)

// Usage is the consumption of one category over one period. Pending rows are
// part of Sum and Count; PendingSum and PendingCount say how much of it is
// still provisional.
type Usage struct {
	Sum          decimal.Decimal
	Count        int
	PendingSum   decimal.Decimal
	PendingCount int
}

// Aggregate sums the expenses of categoryID whose timestamp falls in the
// period containing ref. Income rows and other categories are ignored. An
// unknown period keyword yields a zero Usage.
func Aggregate(ref time.Time, categoryID int64, period string, txs []core.Transaction) Usage {
	u := Usage{Sum: decimal.Zero, PendingSum: decimal.Zero}

	w, ok := WindowFor(period)
	if !ok {
		return u
	}
	start, end := w.Bounds(ref)

	for _, tx := range txs {
		if tx.Type != core.Expense || tx.CategoryID != categoryID {
			continue
		}
		ts := tx.Timestamp.In(ref.Location())
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		u.Sum = u.Sum.Add(tx.Amount)
		u.Count++
		if tx.Pending {
			u.PendingSum = u.PendingSum.Add(tx.Amount)
			u.PendingCount++
		}
	}
	return u
}

// Confirmed returns the part of u acknowledged by the remote.
func (u Usage) Confirmed() decimal.Decimal {
	return u.Sum.Sub(u.PendingSum)
}
