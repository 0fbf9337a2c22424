package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"finsync/internal/core"
	"finsync/internal/sheets"

	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheet serves the subset of the Sheets values API the client uses.
type fakeSheet struct {
	mu       sync.Mutex
	grid     [][]string
	gets     int
	failPuts int
}

var rowRange = regexp.MustCompile(`!A(\d+):`)

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet:
		f.gets++
		values := make([][]string, len(f.grid))
		for i, row := range f.grid {
			values[i] = []string{}
			if len(row) > 0 && row[0] != "" {
				values[i] = []string{row[0]}
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"majorDimension": "ROWS", "values": values})

	case r.Method == http.MethodPut:
		if f.failPuts > 0 {
			f.failPuts--
			http.Error(w, `{"error":{"code":500,"message":"backend"}}`, http.StatusInternalServerError)
			return
		}
		start := f.rowOf(path)
		var vr struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for i, row := range vr.Values {
			f.set(start+i, row)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRows": len(vr.Values)})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.set(f.rowOf(path), nil)
		_ = json.NewEncoder(w).Encode(map[string]any{"clearedRange": path})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSheet) rowOf(path string) int {
	m := rowRange.FindStringSubmatch(path)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func (f *fakeSheet) set(row int, cells []any) {
	for len(f.grid) < row {
		f.grid = append(f.grid, nil)
	}
	out := make([]string, len(cells))
	for i, v := range cells {
		out[i] = fmt.Sprint(v)
	}
	f.grid[row-1] = out
}

func (f *fakeSheet) row(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > len(f.grid) {
		return nil
	}
	return f.grid[n-1]
}

func newTestClient(t *testing.T, f *fakeSheet) *Client {
	t.Helper()
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(ts.URL+"/"),
		goption.WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewWithService(svc, "sheet-id", "")
}

func transaction(id int64, amount string, note string) core.Transaction {
	return core.Transaction{
		Meta:       core.Meta{ID: id, OwnerID: 7},
		Amount:     decimal.RequireFromString(amount),
		CategoryID: 3,
		Timestamp:  time.Date(2024, 5, 2, 23, 30, 0, 0, time.UTC),
		Note:       &note,
		Type:       core.Expense,
	}
}

func TestClient_ExportWritesHeaderThenRows(t *testing.T) {
	f := &fakeSheet{}
	c := newTestClient(t, f)
	ctx := context.Background()

	ref, err := c.Export(ctx, transaction(10, "12.5", "lunch"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if ref != "'Transactions'!A2:G2" {
		t.Errorf("unexpected ref %q", ref)
	}
	if got := f.row(1); len(got) == 0 || got[0] != "record_id" {
		t.Errorf("header not written: %v", got)
	}
	want := []string{"10", "7", "2024-05-02", "expense", "3", "12.50", "lunch"}
	if got := f.row(2); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("row 2 = %v, want %v", got, want)
	}

	ref, err = c.Export(ctx, transaction(11, "3", "bus"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if ref != "'Transactions'!A3:G3" {
		t.Errorf("unexpected ref %q", ref)
	}
}

func TestClient_ExportRewritesExistingRow(t *testing.T) {
	f := &fakeSheet{}
	c := newTestClient(t, f)
	ctx := context.Background()

	if _, err := c.Export(ctx, transaction(10, "12.5", "lunch")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Export(ctx, transaction(11, "3", "bus")); err != nil {
		t.Fatal(err)
	}

	// A fresh client must find the row through column A.
	c2 := NewWithService(c.svc, "sheet-id", "")
	ref, err := c2.Export(ctx, transaction(10, "20", "dinner"))
	if err != nil {
		t.Fatal(err)
	}
	if ref != "'Transactions'!A2:G2" {
		t.Errorf("re-export should reuse row 2, got %q", ref)
	}
	if got := f.row(2); got[5] != "20.00" || got[6] != "dinner" {
		t.Errorf("row not rewritten: %v", got)
	}
	if f.row(4) != nil {
		t.Errorf("unexpected extra row: %v", f.row(4))
	}
}

func TestClient_RemoveClearsRow(t *testing.T) {
	f := &fakeSheet{}
	c := newTestClient(t, f)
	ctx := context.Background()

	if _, err := c.Export(ctx, transaction(10, "1", "a")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Export(ctx, transaction(11, "2", "b")); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove(ctx, 10); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := f.row(2); len(got) != 0 {
		t.Errorf("row 2 should be cleared, got %v", got)
	}
	if got := f.row(3); got[0] != "11" {
		t.Errorf("row 3 should be untouched, got %v", got)
	}
	if err := c.Remove(ctx, 99); err != nil {
		t.Errorf("removing an unknown record should be a no-op: %v", err)
	}
}

func TestClient_IndexIsCached(t *testing.T) {
	f := &fakeSheet{}
	c := newTestClient(t, f)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		if _, err := c.Export(ctx, transaction(id, "1", "x")); err != nil {
			t.Fatal(err)
		}
	}
	if f.gets != 1 {
		t.Errorf("expected a single index read, got %d", f.gets)
	}
}

func TestClient_FailedWriteInvalidatesIndex(t *testing.T) {
	f := &fakeSheet{failPuts: 1}
	c := newTestClient(t, f)
	ctx := context.Background()

	if _, err := c.Export(ctx, transaction(1, "1", "x")); err == nil {
		t.Fatal("expected error")
	}
	if _, err := c.Export(ctx, transaction(1, "1", "x")); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.gets != 2 {
		t.Errorf("index should be reloaded after a failed write, gets=%d", f.gets)
	}
}

func TestClient_ExportRejectsBadInput(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	ctx := context.Background()

	tx := transaction(-3, "1", "x")
	if _, err := c.Export(ctx, tx); !errors.Is(err, sheets.ErrPlaceholder) {
		t.Errorf("expected ErrPlaceholder, got %v", err)
	}
	tx = transaction(3, "1", "x")
	tx.CategoryID = 0
	if _, err := c.Export(ctx, tx); !errors.Is(err, core.ErrMissingCategory) {
		t.Errorf("expected ErrMissingCategory, got %v", err)
	}
}

func TestNew_MissingConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{}); err == nil || err.Error() != "missing spreadsheet id" {
		t.Errorf("unexpected error: %v", err)
	}
	_, err := New(ctx, Config{SpreadsheetID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
	_, err = New(ctx, Config{SpreadsheetID: "x", CredentialsFile: "/does/not/exist.json"})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		code     int
		rejected bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusForbidden, true},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		err := classify(&googleapi.Error{Code: tc.code})
		if errors.Is(err, sheets.ErrRejected) != tc.rejected {
			t.Errorf("code %d: rejected=%v", tc.code, !tc.rejected)
		}
	}
}
