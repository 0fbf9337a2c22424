// Package memory is an in-process remote service. It backs the memory remote
// backend, the reference server in development and the coordinator tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"finsync/internal/budget"
	"finsync/internal/core"
	"finsync/internal/remote"
)

// Hook runs before every remote call. Returning an error fails the call;
// blocking in it simulates a slow remote.
type Hook func(ctx context.Context, resource, op string) error

// Remote holds every collection of the in-process remote. Identifiers are
// drawn from one sequence so they are never reused across entity types.
type Remote struct {
	seq atomic.Int64

	hookMu sync.RWMutex
	hook   Hook

	profilesMu sync.RWMutex
	profiles   map[int64]core.Profile

	Transactions      *Collection[core.Transaction]
	Categories        *Collection[core.Category]
	RecurringPayments *Collection[core.RecurringPayment]
	SpendingLimits    *Collection[core.SpendingLimit]
	SavingsGoals      *Collection[core.SavingsGoal]
}

var (
	_ remote.TransactionTotals = (*Remote)(nil)
	_ remote.ProfileGateway    = (*Remote)(nil)

	_ remote.Gateway[core.Transaction] = (*Collection[core.Transaction])(nil)
)

func New() *Remote {
	r := &Remote{profiles: make(map[int64]core.Profile)}
	r.Transactions = newCollection[core.Transaction](r, core.KindTransaction)
	r.Categories = newCollection[core.Category](r, core.KindCategory)
	r.RecurringPayments = newCollection[core.RecurringPayment](r, core.KindRecurringPayment)
	r.SpendingLimits = newCollection[core.SpendingLimit](r, core.KindSpendingLimit)
	r.SavingsGoals = newCollection[core.SavingsGoal](r, core.KindSavingsGoal)
	return r
}

// SetHook installs h for every subsequent call; nil removes it.
func (r *Remote) SetHook(h Hook) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.hook = h
}

func (r *Remote) before(ctx context.Context, resource, op string) error {
	if err := ctx.Err(); err != nil {
		return remote.Transport(err)
	}
	r.hookMu.RLock()
	h := r.hook
	r.hookMu.RUnlock()
	if h == nil {
		return nil
	}
	return h(ctx, resource, op)
}

func (r *Remote) nextID() int64 {
	return r.seq.Add(1)
}

func (r *Remote) MonthlyTotals(ctx context.Context, ownerID int64) ([]core.PeriodTotal, error) {
	return r.totals(ctx, ownerID, budget.ByMonth)
}

func (r *Remote) YearlyTotals(ctx context.Context, ownerID int64) ([]core.PeriodTotal, error) {
	return r.totals(ctx, ownerID, budget.ByYear)
}

func (r *Remote) totals(ctx context.Context, ownerID int64, g budget.Granularity) ([]core.PeriodTotal, error) {
	if err := r.before(ctx, "totals", string(g)); err != nil {
		return nil, err
	}
	return budget.Totals(r.Transactions.owned(ownerID), g), nil
}

// PutProfile seeds or replaces a profile without going through the hook.
func (r *Remote) PutProfile(p core.Profile) {
	r.profilesMu.Lock()
	defer r.profilesMu.Unlock()
	r.profiles[p.UserID] = p
}

func (r *Remote) GetProfile(ctx context.Context, userID int64) (core.Profile, error) {
	if err := r.before(ctx, "profile", "get"); err != nil {
		return core.Profile{}, err
	}
	r.profilesMu.RLock()
	defer r.profilesMu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return core.Profile{}, fmt.Errorf("profile %d: %w", userID, remote.ErrNotFound)
	}
	return p, nil
}

func (r *Remote) UpdateProfile(ctx context.Context, userID int64, p core.Profile) (core.Profile, error) {
	if err := r.before(ctx, "profile", "update"); err != nil {
		return core.Profile{}, err
	}
	r.profilesMu.Lock()
	defer r.profilesMu.Unlock()

	if _, ok := r.profiles[userID]; !ok {
		return core.Profile{}, fmt.Errorf("profile %d: %w", userID, remote.ErrNotFound)
	}
	p.UserID = userID
	r.profiles[userID] = p
	return p, nil
}

// Collection is one remote entity collection. It implements remote.Gateway.
type Collection[T core.Record[T]] struct {
	remote  *Remote
	kind    string
	mu      sync.RWMutex
	records map[int64]T
}

func newCollection[T core.Record[T]](r *Remote, kind string) *Collection[T] {
	return &Collection[T]{remote: r, kind: kind, records: make(map[int64]T)}
}

// Put seeds records with their IDs as given, bypassing the hook.
func (c *Collection[T]) Put(records ...T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range records {
		meta := record.Metadata()
		meta.Pending = false
		c.records[meta.ID] = record.WithMetadata(meta)
		for {
			cur := c.remote.seq.Load()
			if meta.ID <= cur || c.remote.seq.CompareAndSwap(cur, meta.ID) {
				break
			}
		}
	}
}

// Len returns the number of stored records.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func (c *Collection[T]) owned(ownerID int64) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, 0)
	for _, record := range c.records {
		if record.Metadata().OwnerID == ownerID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata().ID < out[j].Metadata().ID
	})
	return out
}

func (c *Collection[T]) ListByOwner(ctx context.Context, ownerID int64) ([]T, error) {
	if err := c.remote.before(ctx, c.kind, "list"); err != nil {
		return nil, err
	}
	return c.owned(ownerID), nil
}

func (c *Collection[T]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	if err := c.remote.before(ctx, c.kind, "get"); err != nil {
		return zero, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	record, ok := c.records[id]
	if !ok {
		return zero, fmt.Errorf("%s %d: %w", c.kind, id, remote.ErrNotFound)
	}
	return record, nil
}

func (c *Collection[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T
	if err := c.remote.before(ctx, c.kind, "create"); err != nil {
		return zero, err
	}
	if err := record.Validate(); err != nil {
		return zero, fmt.Errorf("%w: %w", remote.ErrValidation, err)
	}

	meta := record.Metadata()
	meta.ID = c.remote.nextID()
	meta.Pending = false
	created := record.WithMetadata(meta)

	c.mu.Lock()
	c.records[meta.ID] = created
	c.mu.Unlock()
	return created, nil
}

func (c *Collection[T]) Update(ctx context.Context, id int64, record T) (T, error) {
	var zero T
	if err := c.remote.before(ctx, c.kind, "update"); err != nil {
		return zero, err
	}
	if err := record.Validate(); err != nil {
		return zero, fmt.Errorf("%w: %w", remote.ErrValidation, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[id]; !ok {
		return zero, fmt.Errorf("%s %d: %w", c.kind, id, remote.ErrNotFound)
	}
	meta := record.Metadata()
	meta.ID = id
	meta.Pending = false
	updated := record.WithMetadata(meta)
	c.records[id] = updated
	return updated, nil
}

func (c *Collection[T]) Delete(ctx context.Context, id int64) error {
	if err := c.remote.before(ctx, c.kind, "delete"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[id]; !ok {
		return fmt.Errorf("%s %d: %w", c.kind, id, remote.ErrNotFound)
	}
	delete(c.records, id)
	return nil
}
