package google

import (
	"fmt"
	"strconv"
	"strings"

	"finsync/internal/core"
	"finsync/internal/sheets"
)

const lastColumn = "G"

func header() []any {
	return []any{"record_id", "owner_id", "date", "type", "category_id", "amount", "note"}
}

// encodeRow renders r as the A:G cells of one sheet row.
func encodeRow(r sheets.Row) []any {
	return []any{
		r.RecordID,
		r.OwnerID,
		r.Date.Format("2006-01-02"),
		string(r.Type),
		r.CategoryID,
		core.FormatAmount(r.Amount),
		escapeText(r.Note),
	}
}

// escapeText keeps USER_ENTERED input from being read as a formula.
func escapeText(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}

// indexRows maps record IDs found in column A to their 1-based row and
// returns the number of rows in use. Rows whose first cell is not a positive
// ID (the header, cleared rows) are skipped.
func indexRows(values [][]any) (map[int64]int, int) {
	index := make(map[int64]int, len(values))
	for i, row := range values {
		id, err := strconv.ParseInt(safeGet(toStrings(row), 0), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		index[id] = i + 1
	}
	return index, len(values)
}

func a1Range(sheet string, from, to int) string {
	return fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), from, lastColumn, to)
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
