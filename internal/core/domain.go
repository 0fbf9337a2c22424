package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

// Record kinds. Used as table names, event entities and REST resources.
const (
	KindTransaction      = "transaction"
	KindCategory         = "category"
	KindRecurringPayment = "recurring_payment"
	KindSpendingLimit    = "spending_limit"
	KindSavingsGoal      = "savings_goal"
)

type (
	TransactionType string

	// Meta is carried by every cached record. Remote-confirmed IDs are
	// positive; placeholder IDs are negative (see NewPlaceholderID).
	Meta struct {
		ID      int64 `json:"id"`
		OwnerID int64 `json:"owner_id"`
		Pending bool  `json:"pending"`
	}

	Transaction struct {
		Meta
		Amount     decimal.Decimal `json:"amount"`
		CategoryID int64           `json:"category_id"`
		Timestamp  time.Time       `json:"timestamp"`
		Note       *string         `json:"note,omitempty"`
		Type       TransactionType `json:"type"`
	}

	Category struct {
		Meta
		Name  string          `json:"name"`
		Type  TransactionType `json:"type"`
		Icon  string          `json:"icon"`
		Color string          `json:"color"`
	}

	RecurringPayment struct {
		Meta
		Amount     decimal.Decimal `json:"amount"`
		CategoryID int64           `json:"category_id"`
		Frequency  Period          `json:"frequency"`
		StartDate  time.Time       `json:"start_date"`
		EndDate    *time.Time      `json:"end_date,omitempty"`
		Active     bool            `json:"active"`
	}

	SpendingLimit struct {
		Meta
		CategoryID int64           `json:"category_id"`
		Limit      decimal.Decimal `json:"limit"`
		Period     string          `json:"period"`
	}

	SavingsGoal struct {
		Meta
		Name             string           `json:"name"`
		Target           decimal.Decimal  `json:"target"`
		TargetDate       time.Time        `json:"target_date"`
		Contribution     *decimal.Decimal `json:"contribution,omitempty"`
		ImageRef         *string          `json:"image_ref,omitempty"`
		Accumulated      decimal.Decimal  `json:"accumulated"`
		LastContribution *time.Time       `json:"last_contribution,omitempty"`
	}

	// Profile is the remote user profile. It is never cached locally.
	Profile struct {
		UserID  int64           `json:"user_id"`
		Name    string          `json:"name"`
		Email   string          `json:"email"`
		Balance decimal.Decimal `json:"balance"`
	}

	// PeriodTotal is one bucket of a monthly or yearly aggregate. Month is
	// zero for yearly buckets.
	PeriodTotal struct {
		Year    int             `json:"year"`
		Month   int             `json:"month,omitempty"`
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
	}
)

// Record is implemented by every entity the data layer caches and syncs.
type Record[T any] interface {
	Metadata() Meta
	WithMetadata(Meta) T
	Validate() error
}

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrMissingOwner    = errors.New("missing owner")
	ErrMissingCategory = errors.New("missing category")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidDates    = errors.New("end date before start date")
	ErrMissingDate     = errors.New("missing date")
)

func (t TransactionType) IsValid() bool {
	return t == Expense || t == Income
}

// NormalizeTransactionType trims and lower-cases s, so "Expense" and
// " INCOME " decode to the known types.
func NormalizeTransactionType(s string) TransactionType {
	return TransactionType(strings.ToLower(strings.TrimSpace(s)))
}

func (t *TransactionType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = NormalizeTransactionType(s)
	return nil
}

// Signed returns the balance contribution of t. The second value is false
// for types the balance does not understand.
func (t Transaction) Signed() (decimal.Decimal, bool) {
	switch t.Type {
	case Income:
		return t.Amount, true
	case Expense:
		return t.Amount.Neg(), true
	default:
		return decimal.Zero, false
	}
}

func (m Meta) validate() error {
	if m.OwnerID <= 0 {
		return ErrMissingOwner
	}
	return nil
}

func validateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Metadata() Meta                 { return t.Meta }
func (t Transaction) WithMetadata(m Meta) Transaction { t.Meta = m; return t }

func (t Transaction) Validate() error {
	if err := t.Meta.validate(); err != nil {
		return err
	}
	if err := validateAmount(t.Amount); err != nil {
		return err
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if t.CategoryID == 0 {
		return ErrMissingCategory
	}
	if t.Timestamp.IsZero() {
		return ErrMissingDate
	}
	return nil
}

func (c Category) Metadata() Meta              { return c.Meta }
func (c Category) WithMetadata(m Meta) Category { c.Meta = m; return c }

func (c Category) Validate() error {
	if err := c.Meta.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Type.IsValid() {
		return ErrInvalidType
	}
	return nil
}

func (r RecurringPayment) Metadata() Meta                      { return r.Meta }
func (r RecurringPayment) WithMetadata(m Meta) RecurringPayment { r.Meta = m; return r }

func (r RecurringPayment) Validate() error {
	if err := r.Meta.validate(); err != nil {
		return err
	}
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if r.CategoryID == 0 {
		return ErrMissingCategory
	}
	if r.StartDate.IsZero() {
		return ErrMissingDate
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return ErrInvalidDates
	}
	return nil
}

func (l SpendingLimit) Metadata() Meta                   { return l.Meta }
func (l SpendingLimit) WithMetadata(m Meta) SpendingLimit { l.Meta = m; return l }

// Validate accepts any period label: unknown labels are stored as-is and
// simply match nothing when aggregated.
func (l SpendingLimit) Validate() error {
	if err := l.Meta.validate(); err != nil {
		return err
	}
	if err := validateAmount(l.Limit); err != nil {
		return err
	}
	if l.CategoryID == 0 {
		return ErrMissingCategory
	}
	return nil
}

func (g SavingsGoal) Metadata() Meta                 { return g.Meta }
func (g SavingsGoal) WithMetadata(m Meta) SavingsGoal { g.Meta = m; return g }

func (g SavingsGoal) Validate() error {
	if err := g.Meta.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if err := validateAmount(g.Target); err != nil {
		return err
	}
	if g.Contribution != nil {
		if err := validateAmount(*g.Contribution); err != nil {
			return err
		}
	}
	if g.Accumulated.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}
