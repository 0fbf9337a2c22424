package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"finsync/internal/core"
	"finsync/internal/events"
	"finsync/internal/sheets"
	"finsync/internal/sheets/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func confirmedEvent(t *testing.T, action string, tx core.Transaction) events.Event {
	t.Helper()
	ev, err := events.New(core.KindTransaction, action, tx.OwnerID, tx.ID, tx)
	require.NoError(t, err)
	return ev
}

func sampleTx(id int64) core.Transaction {
	return core.Transaction{
		Meta:       core.Meta{ID: id, OwnerID: 1},
		Amount:     decimal.NewFromInt(12),
		CategoryID: 2,
		Timestamp:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Type:       core.Expense,
	}
}

type failingExporter struct{ err error }

func (f failingExporter) Export(context.Context, core.Transaction) (string, error) { return "", f.err }
func (f failingExporter) Remove(context.Context, int64) error                      { return f.err }

func TestExportWorker_ConfirmedAndDeleted(t *testing.T) {
	store := memory.New()
	w := NewExportWorker(store, quiet)
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, confirmedEvent(t, events.ActionConfirmed, sampleTx(5))))
	require.Len(t, store.Rows(), 1)

	updated := sampleTx(5)
	updated.Amount = decimal.NewFromInt(30)
	require.NoError(t, w.Handle(ctx, confirmedEvent(t, events.ActionUpdated, updated)))
	rows := store.Rows()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(30)))

	del, err := events.New(core.KindTransaction, events.ActionDeleted, 1, 5, nil)
	require.NoError(t, err)
	require.NoError(t, w.Handle(ctx, del))
	assert.Empty(t, store.Rows())
}

func TestExportWorker_IgnoresOtherEntities(t *testing.T) {
	w := NewExportWorker(failingExporter{err: errors.New("must not be called")}, quiet)
	ev, err := events.New(core.KindCategory, events.ActionConfirmed, 1, 3, core.Category{Name: "Food"})
	require.NoError(t, err)
	assert.NoError(t, w.Handle(context.Background(), ev))
}

func TestExportWorker_MalformedEvents(t *testing.T) {
	w := NewExportWorker(memory.New(), quiet)
	ctx := context.Background()

	noPayload, err := events.New(core.KindTransaction, events.ActionConfirmed, 1, 5, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, w.Handle(ctx, noPayload), events.ErrMalformed)

	mismatched := confirmedEvent(t, events.ActionConfirmed, sampleTx(5))
	mismatched.RecordID = 6
	assert.ErrorIs(t, w.Handle(ctx, mismatched), events.ErrMalformed)

	noID, err := events.New(core.KindTransaction, events.ActionDeleted, 1, 0, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, w.Handle(ctx, noID), events.ErrMalformed)
}

func TestExportWorker_ErrorHandling(t *testing.T) {
	ctx := context.Background()
	ev := confirmedEvent(t, events.ActionConfirmed, sampleTx(5))

	transient := errors.New("503 backend")
	err := NewExportWorker(failingExporter{err: transient}, quiet).Handle(ctx, ev)
	assert.ErrorIs(t, err, transient, "transient failures are redelivered")

	rejected := NewExportWorker(failingExporter{err: sheets.ErrRejected}, quiet)
	assert.NoError(t, rejected.Handle(ctx, ev), "rejections are dropped")
}
