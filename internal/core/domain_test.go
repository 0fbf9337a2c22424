package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTransaction() Transaction {
	return Transaction{
		Meta:       Meta{OwnerID: 1},
		Amount:     decimal.NewFromInt(10),
		CategoryID: 3,
		Timestamp:  time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC),
		Type:       Expense,
	}
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"valid", func(*Transaction) {}, nil},
		{"missing owner", func(tx *Transaction) { tx.OwnerID = 0 }, ErrMissingOwner},
		{"zero amount", func(tx *Transaction) { tx.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-5) }, ErrInvalidAmount},
		{"unknown type", func(tx *Transaction) { tx.Type = "transfer" }, ErrInvalidType},
		{"missing category", func(tx *Transaction) { tx.CategoryID = 0 }, ErrMissingCategory},
		{"missing timestamp", func(tx *Transaction) { tx.Timestamp = time.Time{} }, ErrMissingDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTransaction()
			tt.mutate(&tx)
			if err := tx.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTransaction_Signed(t *testing.T) {
	tx := validTransaction()

	tx.Type = Income
	if v, ok := tx.Signed(); !ok || !v.Equal(decimal.NewFromInt(10)) {
		t.Errorf("income: got %s, %v", v, ok)
	}

	tx.Type = Expense
	if v, ok := tx.Signed(); !ok || !v.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("expense: got %s, %v", v, ok)
	}

	tx.Type = "refund"
	if v, ok := tx.Signed(); ok || !v.IsZero() {
		t.Errorf("unknown: got %s, %v", v, ok)
	}
}

func TestRecurringPayment_Validate(t *testing.T) {
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	before := start.AddDate(0, 0, -1)
	rp := RecurringPayment{
		Meta:       Meta{OwnerID: 1},
		Amount:     decimal.NewFromInt(9),
		CategoryID: 2,
		Frequency:  Monthly,
		StartDate:  start,
		EndDate:    &before,
		Active:     true,
	}
	if err := rp.Validate(); !errors.Is(err, ErrInvalidDates) {
		t.Fatalf("expected ErrInvalidDates, got %v", err)
	}
	rp.EndDate = nil
	if err := rp.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestSpendingLimit_ValidateAcceptsUnknownPeriod(t *testing.T) {
	l := SpendingLimit{
		Meta:       Meta{OwnerID: 1},
		CategoryID: 4,
		Limit:      decimal.NewFromInt(100),
		Period:     "Bimestral",
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestSavingsGoal_Validate(t *testing.T) {
	neg := decimal.NewFromInt(-1)
	g := SavingsGoal{
		Meta:   Meta{OwnerID: 1},
		Name:   "Holiday",
		Target: decimal.NewFromInt(1000),
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	g.Contribution = &neg
	if err := g.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	g.Contribution = nil
	g.Name = "  "
	if err := g.Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestWithMetadataKeepsPayload(t *testing.T) {
	tx := validTransaction()
	got := tx.WithMetadata(Meta{ID: 7, OwnerID: 1, Pending: true})
	if got.ID != 7 || !got.Pending || !got.Amount.Equal(tx.Amount) {
		t.Fatalf("unexpected record %+v", got)
	}
	if tx.ID != 0 {
		t.Fatalf("original record mutated: %+v", tx)
	}
}

func TestNormalizePeriod(t *testing.T) {
	tests := []struct {
		in    string
		want  Period
		known bool
	}{
		{"Weekly", Weekly, true},
		{" monthly ", Monthly, true},
		{"QUARTERLY", Quarterly, true},
		{"Bimestral", "bimestral", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, known := NormalizePeriod(tt.in)
		if got != tt.want || known != tt.known {
			t.Errorf("NormalizePeriod(%q) = %q, %v; want %q, %v", tt.in, got, known, tt.want, tt.known)
		}
	}
}

func TestNewPlaceholderID(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 100; i++ {
		id := NewPlaceholderID()
		if !IsPlaceholder(id) {
			t.Fatalf("expected negative id, got %d", id)
		}
		if seen[id] {
			t.Fatalf("duplicate placeholder id %d", id)
		}
		seen[id] = true
	}
}

func TestTransactionType_DecodeIsCaseInsensitive(t *testing.T) {
	var tx Transaction
	raw := `{"owner_id":1,"amount":"10","category_id":3,"timestamp":"2024-03-04T12:00:00Z","type":"Expense"}`
	if err := json.Unmarshal([]byte(raw), &tx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tx.Type != Expense {
		t.Fatalf("expected %q, got %q", Expense, tx.Type)
	}
	if _, ok := tx.Signed(); !ok {
		t.Fatal("decoded expense must count toward the balance")
	}

	var c Category
	if err := json.Unmarshal([]byte(`{"owner_id":1,"name":"Pay","type":" INCOME "}`), &c); err != nil {
		t.Fatalf("unmarshal category: %v", err)
	}
	if c.Type != Income {
		t.Fatalf("expected %q, got %q", Income, c.Type)
	}

	if err := json.Unmarshal([]byte(`{"type":"refund"}`), &tx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tx.Type.IsValid() {
		t.Fatalf("unknown type %q must stay invalid", tx.Type)
	}
}
