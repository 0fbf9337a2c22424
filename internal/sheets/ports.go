// Package sheets mirrors confirmed transactions into a spreadsheet.
package sheets

import (
	"context"
	"errors"
	"time"

	"finsync/internal/core"

	"github.com/shopspring/decimal"
)

var (
	// ErrPlaceholder is returned when a record without a remote ID is exported.
	ErrPlaceholder = errors.New("record not confirmed")
	// ErrRejected wraps failures the sheet will keep returning on retry.
	ErrRejected = errors.New("rejected by sheet")
)

// Row is the exported shape of one confirmed transaction.
type Row struct {
	RecordID   int64
	OwnerID    int64
	Date       time.Time
	Type       core.TransactionType
	CategoryID int64
	Amount     decimal.Decimal
	Note       string
}

// RowFromTransaction flattens tx into a Row. Dates are exported in UTC.
func RowFromTransaction(tx core.Transaction) Row {
	r := Row{
		RecordID:   tx.ID,
		OwnerID:    tx.OwnerID,
		Date:       tx.Timestamp.UTC(),
		Type:       tx.Type,
		CategoryID: tx.CategoryID,
		Amount:     tx.Amount.Round(2),
	}
	if tx.Note != nil {
		r.Note = *tx.Note
	}
	return r
}

// TransactionExporter writes confirmed transactions to an external sheet.
// Export is keyed by record ID: exporting the same record twice rewrites its
// row instead of appending a duplicate. Remove of an unknown record is a no-op.
type TransactionExporter interface {
	Export(ctx context.Context, tx core.Transaction) (ref string, err error)
	Remove(ctx context.Context, recordID int64) error
}
