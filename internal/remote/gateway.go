// Package remote defines the contract of the authoritative remote service
// and the errors it can fail with.
package remote

import (
	"context"

	"finsync/internal/core"
)

// Gateway is the remote CRUD surface for one entity type. Implementations
// never retry.
type Gateway[T core.Record[T]] interface {
	ListByOwner(ctx context.Context, ownerID int64) ([]T, error)
	Get(ctx context.Context, id int64) (T, error)
	// Create stores record and returns it with its remote-assigned ID.
	Create(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, id int64, record T) (T, error)
	Delete(ctx context.Context, id int64) error
}

// TransactionTotals exposes the remote monthly and yearly aggregates.
type TransactionTotals interface {
	MonthlyTotals(ctx context.Context, ownerID int64) ([]core.PeriodTotal, error)
	YearlyTotals(ctx context.Context, ownerID int64) ([]core.PeriodTotal, error)
}

// ProfileGateway reads and writes user profiles.
type ProfileGateway interface {
	GetProfile(ctx context.Context, userID int64) (core.Profile, error)
	UpdateProfile(ctx context.Context, userID int64, profile core.Profile) (core.Profile, error)
}

// Paths maps record kinds to their REST collection paths.
var Paths = map[string]string{
	core.KindTransaction:      "/transactions",
	core.KindCategory:         "/categories",
	core.KindRecurringPayment: "/recurring-payments",
	core.KindSpendingLimit:    "/spending-limits",
	core.KindSavingsGoal:      "/savings-goals",
}
