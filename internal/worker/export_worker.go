// Package worker drives the spreadsheet export from domain events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finsync/internal/core"
	"finsync/internal/events"
	"finsync/internal/sheets"
)

// ExportWorker mirrors transaction events into a sheet. Confirmed and updated
// transactions are exported, deleted ones removed. Other events are ignored.
type ExportWorker struct {
	exporter sheets.TransactionExporter
	logger   *slog.Logger
}

func NewExportWorker(exporter sheets.TransactionExporter, logger *slog.Logger) *ExportWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportWorker{exporter: exporter, logger: logger}
}

// Handle processes one event. It satisfies events.Handler. A returned error
// asks the broker to redeliver; errors wrapping events.ErrMalformed do not.
func (w *ExportWorker) Handle(ctx context.Context, ev events.Event) error {
	if ev.Entity != core.KindTransaction {
		return nil
	}

	switch ev.Action() {
	case events.ActionConfirmed, events.ActionUpdated:
		return w.export(ctx, ev)
	case events.ActionDeleted:
		return w.remove(ctx, ev)
	default:
		w.logger.DebugContext(ctx, "Ignoring event", "type", ev.Type, "event_id", ev.ID)
		return nil
	}
}

func (w *ExportWorker) export(ctx context.Context, ev events.Event) error {
	var tx core.Transaction
	if err := ev.Decode(&tx); err != nil {
		return err
	}
	if tx.ID != ev.RecordID {
		return fmt.Errorf("%w: payload id %d does not match record %d", events.ErrMalformed, tx.ID, ev.RecordID)
	}

	ref, err := w.exporter.Export(ctx, tx)
	if err != nil {
		return w.failed(ctx, ev, "export", err)
	}
	w.logger.InfoContext(ctx, "Exported transaction",
		"record_id", tx.ID,
		"owner_id", tx.OwnerID,
		"sheets_ref", ref,
		"event_id", ev.ID)
	return nil
}

func (w *ExportWorker) remove(ctx context.Context, ev events.Event) error {
	if ev.RecordID <= 0 {
		return fmt.Errorf("%w: %s without record id", events.ErrMalformed, ev.Type)
	}
	if err := w.exporter.Remove(ctx, ev.RecordID); err != nil {
		return w.failed(ctx, ev, "remove", err)
	}
	w.logger.InfoContext(ctx, "Removed transaction row", "record_id", ev.RecordID, "event_id", ev.ID)
	return nil
}

// failed logs err. Rejections and placeholder exports are dropped, since a
// redelivery would fail the same way.
func (w *ExportWorker) failed(ctx context.Context, ev events.Event, op string, err error) error {
	if errors.Is(err, sheets.ErrRejected) || errors.Is(err, sheets.ErrPlaceholder) {
		w.logger.ErrorContext(ctx, "Dropping event rejected by sheet",
			"op", op, "record_id", ev.RecordID, "event_id", ev.ID, "error", err)
		return nil
	}
	w.logger.WarnContext(ctx, "Sheet "+op+" failed, will retry",
		"record_id", ev.RecordID, "event_id", ev.ID, "error", err)
	return fmt.Errorf("%s record %d: %w", op, ev.RecordID, err)
}
