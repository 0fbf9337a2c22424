package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"finsync/internal/coordinator"
	"finsync/internal/core"
)

// notePrefix marks transactions materialized from a recurring payment. The
// payment ID follows it, so a second run over the same window finds the
// transactions the first one created.
const notePrefix = "recurring:"

// Processor creates the transactions that recurring payments owe.
type Processor struct {
	payments     *coordinator.Coordinator[core.RecurringPayment]
	transactions *coordinator.Coordinator[core.Transaction]
	logger       *slog.Logger
}

func NewProcessor(payments *coordinator.Coordinator[core.RecurringPayment], transactions *coordinator.Coordinator[core.Transaction], logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{payments: payments, transactions: transactions, logger: logger}
}

// Report summarizes one run.
type Report struct {
	Checked int
	Created int
	Pending int
	Skipped int
}

// ProcessDue creates one expense per occurrence in (since, now] of every
// active payment of ownerID, skipping occurrences that already have a
// transaction. A create the remote rejects leaves a pending row and counts as
// Pending. Per-payment failures do not stop the run; they are joined into
// the returned error.
func (p *Processor) ProcessDue(ctx context.Context, ownerID int64, since, now time.Time) (Report, error) {
	var rep Report
	if p.payments == nil || p.transactions == nil {
		return rep, errors.New("processor not properly initialized")
	}

	payments, err := readCached(p.payments.Read(ctx, ownerID))
	if err != nil {
		return rep, fmt.Errorf("read recurring payments: %w", err)
	}
	txs, err := readCached(p.transactions.Read(ctx, ownerID))
	if err != nil {
		return rep, fmt.Errorf("read transactions: %w", err)
	}
	pending, err := p.transactions.Pending(ctx)
	if err != nil {
		return rep, fmt.Errorf("read pending transactions: %w", err)
	}
	seen := materialized(append(txs, pending...))

	p.logger.InfoContext(ctx, "Processing recurring payments",
		"owner_id", ownerID,
		"total", len(payments),
		"since", since.Format(time.DateOnly),
		"until", now.Format(time.DateOnly))

	var errs []error
	for _, rp := range payments {
		rep.Checked++
		dates, err := Occurrences(rp, since, now)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to schedule recurring payment",
				"recurring_id", rp.ID,
				"error", err)
			errs = append(errs, fmt.Errorf("recurring payment %d: %w", rp.ID, err))
			continue
		}

		for _, at := range dates {
			key := occurrenceKey(rp.ID, at)
			if seen[key] {
				rep.Skipped++
				continue
			}
			note := Note(rp.ID)
			tx := core.Transaction{
				Meta:       core.Meta{OwnerID: ownerID},
				Amount:     rp.Amount,
				CategoryID: rp.CategoryID,
				Timestamp:  at,
				Note:       &note,
				Type:       core.Expense,
			}

			if err := tx.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("recurring payment %d: %w", rp.ID, err))
				break
			}

			_, ok, err := coordinator.Settle(p.transactions.Create(ctx, tx))
			if err == nil && ok {
				rep.Created++
			} else {
				// the pending row stays in the cache until the next reconcile
				rep.Pending++
				p.logger.WarnContext(ctx, "Recurring transaction kept pending",
					"recurring_id", rp.ID,
					"date", at.Format(time.DateOnly),
					"error", err)
			}
			seen[key] = true
		}
	}

	p.logger.InfoContext(ctx, "Recurring payment processing complete",
		"checked", rep.Checked,
		"created", rep.Created,
		"pending", rep.Pending,
		"skipped", rep.Skipped)

	return rep, errors.Join(errs...)
}

// Note is the note carried by transactions materialized from payment id.
func Note(id int64) string {
	return notePrefix + strconv.FormatInt(id, 10)
}

// PaymentID extracts the recurring payment ID from a transaction note.
func PaymentID(note *string) (int64, bool) {
	if note == nil || !strings.HasPrefix(*note, notePrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(*note, notePrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func occurrenceKey(id int64, at time.Time) string {
	return strconv.FormatInt(id, 10) + "@" + at.UTC().Format(time.DateOnly)
}

func materialized(txs []core.Transaction) map[string]bool {
	seen := make(map[string]bool)
	for _, tx := range txs {
		if id, ok := PaymentID(tx.Note); ok {
			seen[occurrenceKey(id, tx.Timestamp)] = true
		}
	}
	return seen
}

// readCached settles a Read, accepting the cached rows when only the
// refresh failed.
func readCached[T any](ch <-chan coordinator.Result[[]T]) ([]T, error) {
	data, ok, err := coordinator.Settle(ch)
	if err != nil && !ok {
		return nil, err
	}
	return data, nil
}
