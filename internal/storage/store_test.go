package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"finsync/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTx(id, owner int64, amount int64, pending bool) core.Transaction {
	return core.Transaction{
		Meta:       core.Meta{ID: id, OwnerID: owner, Pending: pending},
		Amount:     decimal.NewFromInt(amount),
		CategoryID: 1,
		Timestamp:  time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		Type:       core.Expense,
	}
}

func stores(t *testing.T) map[string]Store[core.Transaction] {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "cache", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqliteStore, err := NewSQLiteStore[core.Transaction](db, core.KindTransaction, NewFeed())
	require.NoError(t, err)

	return map[string]Store[core.Transaction]{
		"memory": NewMemoryStore[core.Transaction](NewFeed()),
		"sqlite": sqliteStore,
	}
}

// waitFor reads snapshots until one satisfies cond.
func waitFor[T any](t *testing.T, live *Live[T], cond func([]T) bool) []T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-live.Updates():
			require.True(t, ok, "live query closed early")
			if cond(snap) {
				return snap
			}
		case <-timeout:
			t.Fatal("timed out waiting for live snapshot")
			return nil
		}
	}
}

func TestStore_UpsertAndFind(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			note := "coffee"
			tx := newTx(-1, 7, 5, true)
			tx.Note = &note

			require.NoError(t, s.Upsert(ctx, tx))

			got, err := s.FindByID(ctx, -1)
			require.NoError(t, err)
			assert.True(t, got.Pending)
			assert.Equal(t, int64(7), got.OwnerID)
			assert.True(t, got.Amount.Equal(decimal.NewFromInt(5)))
			require.NotNil(t, got.Note)
			assert.Equal(t, "coffee", *got.Note)

			// last write wins
			tx.Pending = false
			tx.Amount = decimal.NewFromInt(6)
			require.NoError(t, s.Upsert(ctx, tx))
			got, err = s.FindByID(ctx, -1)
			require.NoError(t, err)
			assert.False(t, got.Pending)
			assert.True(t, got.Amount.Equal(decimal.NewFromInt(6)))
		})
	}
}

func TestStore_FindByIDMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.FindByID(context.Background(), 42)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_PendingAndDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.UpsertMany(ctx, []core.Transaction{
				newTx(-2, 1, 10, true),
				newTx(3, 1, 20, false),
				newTx(-4, 2, 30, true),
			}))

			pending, err := s.QueryPending(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, int64(-4), pending[0].ID)
			assert.Equal(t, int64(-2), pending[1].ID)

			require.NoError(t, s.DeleteByID(ctx, -2))
			require.NoError(t, s.DeleteByID(ctx, 999))

			owned, err := s.ListByOwner(ctx, 1)
			require.NoError(t, err)
			require.Len(t, owned, 1)
			assert.Equal(t, int64(3), owned[0].ID)
		})
	}
}

func TestStore_ReplaceOwner(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.UpsertMany(ctx, []core.Transaction{
				newTx(-5, 1, 10, true),
				newTx(6, 1, 20, false),
				newTx(7, 2, 30, false),
			}))

			require.NoError(t, s.ReplaceOwner(ctx, 1, []core.Transaction{
				newTx(6, 1, 25, false),
				newTx(8, 1, 40, false),
			}))

			owned, err := s.ListByOwner(ctx, 1)
			require.NoError(t, err)
			require.Len(t, owned, 2)
			assert.Equal(t, int64(6), owned[0].ID)
			assert.True(t, owned[0].Amount.Equal(decimal.NewFromInt(25)))
			assert.Equal(t, int64(8), owned[1].ID)

			other, err := s.ListByOwner(ctx, 2)
			require.NoError(t, err)
			assert.Len(t, other, 1)
		})
	}
}

func TestStore_LiveQuery(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Upsert(ctx, newTx(1, 9, 10, false)))

			live, err := s.QueryByOwner(ctx, 9)
			require.NoError(t, err)
			defer live.Close()

			first := waitFor(t, live, func(snap []core.Transaction) bool { return true })
			assert.Len(t, first, 1)

			require.NoError(t, s.Upsert(ctx, newTx(-10, 9, 15, true)))
			waitFor(t, live, func(snap []core.Transaction) bool { return len(snap) == 2 })

			require.NoError(t, s.DeleteByID(ctx, 1))
			snap := waitFor(t, live, func(snap []core.Transaction) bool { return len(snap) == 1 })
			assert.Equal(t, int64(-10), snap[0].ID)

			// other owners do not leak into the query
			require.NoError(t, s.Upsert(ctx, newTx(11, 10, 1, false)))
			require.NoError(t, s.Upsert(ctx, newTx(12, 9, 2, false)))
			snap = waitFor(t, live, func(snap []core.Transaction) bool { return len(snap) == 2 })
			for _, tx := range snap {
				assert.Equal(t, int64(9), tx.OwnerID)
			}
		})
	}
}

func TestLive_CloseEndsUpdates(t *testing.T) {
	feed := NewFeed()
	s := NewMemoryStore[core.Transaction](feed)

	live, err := s.QueryByOwner(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.SubscriberCount(1))

	live.Close()
	live.Close()

	for range live.Updates() {
	}
	assert.Equal(t, 0, feed.SubscriberCount(1))
}

func TestLive_ContextCancel(t *testing.T) {
	feed := NewFeed()
	s := NewMemoryStore[core.Transaction](feed)
	ctx, cancel := context.WithCancel(context.Background())

	live, err := s.QueryByOwner(ctx, 1)
	require.NoError(t, err)
	cancel()

	select {
	case <-live.done:
	case <-time.After(2 * time.Second):
		t.Fatal("live query did not stop after cancel")
	}
	assert.Equal(t, 0, feed.SubscriberCount(1))
}

func TestNewSQLiteStore_UnknownKind(t *testing.T) {
	_, err := NewSQLiteStore[core.Transaction](nil, "invoice", nil)
	assert.Error(t, err)
}
