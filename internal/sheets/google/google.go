package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"finsync/internal/core"
	"finsync/internal/sheets"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	defaultSheetName = "Transactions"
	indexTTL         = 5 * time.Minute
)

var _ sheets.TransactionExporter = (*Client)(nil)

// Config selects the spreadsheet and the service account used to write it.
// CredentialsJSON wins over CredentialsFile.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Client writes one row per confirmed transaction. Column A holds the record
// ID and is used to find a record's row again.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string

	// mu serializes writes so row allocation stays consistent with the index.
	mu        sync.Mutex
	index     map[int64]int
	usedRows  int
	expiresAt time.Time
	ttl       time.Duration
}

// New creates a Sheets client authenticated with service-account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing service. An empty sheet name selects
// "Transactions".
func NewWithService(svc *gsheet.Service, spreadsheetID, sheet string) *Client {
	sheet = strings.TrimSpace(sheet)
	if sheet == "" {
		sheet = defaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		ttl:           indexTTL,
	}
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON := []byte(strings.TrimSpace(cfg.CredentialsJSON))
	if len(credentialsJSON) == 0 {
		path := strings.TrimSpace(cfg.CredentialsFile)
		if path == "" {
			return nil, errors.New("missing service account credentials")
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	}

	slog.InfoContext(ctx, "Creating Google Sheets service",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// Export writes tx to its row, appending a new row the first time the record
// is seen. The header row is written together with the first record.
func (c *Client) Export(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if core.IsPlaceholder(tx.ID) {
		return "", fmt.Errorf("export placeholder %d: %w", tx.ID, sheets.ErrPlaceholder)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadIndex(ctx); err != nil {
		return "", err
	}

	values := [][]any{encodeRow(sheets.RowFromTransaction(tx))}
	row, ok := c.index[tx.ID]
	first := row
	if !ok {
		row = c.usedRows + 1
		first = row
		if c.usedRows == 0 {
			values = append([][]any{header()}, values...)
			row, first = 2, 1
		}
	}

	rng := a1Range(c.sheet, first, row)
	vr := &gsheet.ValueRange{Values: values}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		c.invalidate()
		return "", fmt.Errorf("update %s: %w", rng, classify(err))
	}

	c.index[tx.ID] = row
	if row > c.usedRows {
		c.usedRows = row
	}
	return a1Range(c.sheet, row, row), nil
}

// Remove clears the row of recordID. The row itself is left in place so
// other records keep their positions.
func (c *Client) Remove(ctx context.Context, recordID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadIndex(ctx); err != nil {
		return err
	}
	row, ok := c.index[recordID]
	if !ok {
		return nil
	}

	rng := a1Range(c.sheet, row, row)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		c.invalidate()
		return fmt.Errorf("clear %s: %w", rng, classify(err))
	}
	delete(c.index, recordID)
	return nil
}

// loadIndex refreshes the record-to-row index from column A when it has
// expired. Callers hold c.mu.
func (c *Client) loadIndex(ctx context.Context) error {
	if c.index != nil && time.Now().Before(c.expiresAt) {
		return nil
	}
	rng := fmt.Sprintf("%s!A:A", quoteSheet(c.sheet))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, classify(err))
	}
	c.index, c.usedRows = indexRows(resp.Values)
	c.expiresAt = time.Now().Add(c.ttl)
	return nil
}

func (c *Client) invalidate() {
	c.index = nil
	c.expiresAt = time.Time{}
}

// classify marks errors the sheet will keep returning on retry.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code >= 400 && gerr.Code < 500 && gerr.Code != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", sheets.ErrRejected, err)
	}
	return err
}
