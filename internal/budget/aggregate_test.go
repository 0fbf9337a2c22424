package budget

import (
	"testing"
	"time"

	"finsync/internal/core"

	"github.com/shopspring/decimal"
)

func expense(id int64, amount int64, category int64, ts time.Time, pending bool) core.Transaction {
	return core.Transaction{
		Meta:       core.Meta{ID: id, OwnerID: 1, Pending: pending},
		Amount:     decimal.NewFromInt(amount),
		CategoryID: category,
		Timestamp:  ts,
		Type:       core.Expense,
	}
}

func TestAggregate_WeeklyExample(t *testing.T) {
	txs := []core.Transaction{
		expense(1, 50, 7, day(2024, 3, 1), false),
		expense(2, 30, 7, day(2024, 3, 5), false),
	}

	u := Aggregate(day(2024, 3, 4), 7, "Weekly", txs)
	if !u.Sum.Equal(decimal.NewFromInt(30)) || u.Count != 1 {
		t.Fatalf("expected sum 30 count 1, got sum %s count %d", u.Sum, u.Count)
	}
}

func TestAggregate_UnknownPeriod(t *testing.T) {
	txs := []core.Transaction{expense(1, 50, 7, day(2024, 3, 4), false)}

	u := Aggregate(day(2024, 3, 4), 7, "Bimestral", txs)
	if !u.Sum.IsZero() || u.Count != 0 {
		t.Fatalf("expected empty usage, got sum %s count %d", u.Sum, u.Count)
	}
}

func TestAggregate_Filters(t *testing.T) {
	ref := day(2024, 3, 15)
	income := expense(3, 1000, 7, day(2024, 3, 2), false)
	income.Type = core.Income

	txs := []core.Transaction{
		expense(1, 10, 7, day(2024, 3, 1), false),  // counted
		expense(2, 20, 8, day(2024, 3, 1), false),  // other category
		income,                                     // income
		expense(4, 40, 7, day(2024, 4, 1), false),  // next month, end is exclusive
		expense(5, 5, 7, day(2024, 3, 31), true),   // pending, counted
		expense(6, 60, 7, day(2024, 2, 29), false), // previous month
	}

	tests := []struct {
		period       string
		wantSum      int64
		wantCount    int
		wantPending  int64
		wantPendingN int
	}{
		{"Monthly", 15, 2, 5, 1},
		{"Quarterly", 75, 3, 5, 1},
		{"Yearly", 115, 4, 5, 1},
		{"Daily", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			u := Aggregate(ref, 7, tt.period, txs)
			if !u.Sum.Equal(decimal.NewFromInt(tt.wantSum)) || u.Count != tt.wantCount {
				t.Errorf("sum %s count %d, want %d/%d", u.Sum, u.Count, tt.wantSum, tt.wantCount)
			}
			if !u.PendingSum.Equal(decimal.NewFromInt(tt.wantPending)) || u.PendingCount != tt.wantPendingN {
				t.Errorf("pending sum %s count %d, want %d/%d", u.PendingSum, u.PendingCount, tt.wantPending, tt.wantPendingN)
			}
		})
	}
}

func TestAggregate_UsesReferenceLocation(t *testing.T) {
	rome := time.FixedZone("CET", 3600)
	ref := time.Date(2024, 3, 4, 12, 0, 0, 0, rome)
	// 23:30 UTC on Sunday is already Monday in CET
	ts := time.Date(2024, 3, 3, 23, 30, 0, 0, time.UTC)

	u := Aggregate(ref, 7, "Daily", []core.Transaction{expense(1, 9, 7, ts, false)})
	if u.Count != 1 {
		t.Fatalf("expected transaction to fall on the reference day, got %d", u.Count)
	}
}

func TestUsage_Confirmed(t *testing.T) {
	u := Usage{Sum: decimal.NewFromInt(30), PendingSum: decimal.NewFromInt(12)}
	if !u.Confirmed().Equal(decimal.NewFromInt(18)) {
		t.Fatalf("expected 18, got %s", u.Confirmed())
	}
}
