package coordinator

import (
	"context"
	"errors"

	"finsync/internal/core"
	"finsync/internal/remote"
	"finsync/internal/storage"

	"golang.org/x/sync/errgroup"
)

// Stores holds one cache store per entity type.
type Stores struct {
	Transactions      storage.Store[core.Transaction]
	Categories        storage.Store[core.Category]
	RecurringPayments storage.Store[core.RecurringPayment]
	SpendingLimits    storage.Store[core.SpendingLimit]
	SavingsGoals      storage.Store[core.SavingsGoal]
}

// Gateways holds the remote surface: one gateway per entity type plus the
// transaction aggregates and user profiles.
type Gateways struct {
	Transactions      remote.Gateway[core.Transaction]
	Categories        remote.Gateway[core.Category]
	RecurringPayments remote.Gateway[core.RecurringPayment]
	SpendingLimits    remote.Gateway[core.SpendingLimit]
	SavingsGoals      remote.Gateway[core.SavingsGoal]
	Totals            remote.TransactionTotals
	Profiles          remote.ProfileGateway
}

// Set is the whole data layer for one process.
type Set struct {
	Transactions      *Coordinator[core.Transaction]
	Categories        *Coordinator[core.Category]
	RecurringPayments *Coordinator[core.RecurringPayment]
	SpendingLimits    *Coordinator[core.SpendingLimit]
	SavingsGoals      *Coordinator[core.SavingsGoal]

	Totals   remote.TransactionTotals
	Profiles remote.ProfileGateway
}

func NewSet(stores Stores, gateways Gateways, opts ...Option) *Set {
	return &Set{
		Transactions:      New(core.KindTransaction, stores.Transactions, gateways.Transactions, opts...),
		Categories:        New(core.KindCategory, stores.Categories, gateways.Categories, opts...),
		RecurringPayments: New(core.KindRecurringPayment, stores.RecurringPayments, gateways.RecurringPayments, opts...),
		SpendingLimits:    New(core.KindSpendingLimit, stores.SpendingLimits, gateways.SpendingLimits, opts...),
		SavingsGoals:      New(core.KindSavingsGoal, stores.SavingsGoals, gateways.SavingsGoals, opts...),
		Totals:            gateways.Totals,
		Profiles:          gateways.Profiles,
	}
}

// ReconcileAll runs one reconciliation pass per entity type concurrently. A
// failing type does not stop the others; all failures are joined.
func (s *Set) ReconcileAll(ctx context.Context, ownerID int64) error {
	tasks := []func(context.Context, int64) error{
		s.Categories.Reconcile,
		s.Transactions.Reconcile,
		s.RecurringPayments.Reconcile,
		s.SpendingLimits.Reconcile,
		s.SavingsGoals.Reconcile,
	}

	errs := make([]error, len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			errs[i] = task(ctx, ownerID)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// PendingCounts returns the number of pending rows per entity kind.
func (s *Set) PendingCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, 5)
	var errs []error

	add := func(kind string, n int, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		counts[kind] = n
	}
	txs, err := s.Transactions.Pending(ctx)
	add(core.KindTransaction, len(txs), err)
	cats, err := s.Categories.Pending(ctx)
	add(core.KindCategory, len(cats), err)
	recs, err := s.RecurringPayments.Pending(ctx)
	add(core.KindRecurringPayment, len(recs), err)
	limits, err := s.SpendingLimits.Pending(ctx)
	add(core.KindSpendingLimit, len(limits), err)
	goals, err := s.SavingsGoals.Pending(ctx)
	add(core.KindSavingsGoal, len(goals), err)

	return counts, errors.Join(errs...)
}
