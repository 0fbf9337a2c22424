package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"finsync/internal/core"
	"finsync/internal/sheets"
)

var _ sheets.TransactionExporter = (*Store)(nil)

// Store keeps exported rows in memory. It backs the worker in development and
// in tests.
type Store struct {
	mu   sync.Mutex
	rows map[int64]sheets.Row
	refs map[int64]int
	next int
}

func New() *Store {
	return &Store{rows: make(map[int64]sheets.Row), refs: make(map[int64]int)}
}

// Export stores the transaction row and returns a synthetic row reference.
// Re-exporting a record keeps its reference.
func (s *Store) Export(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	if core.IsPlaceholder(tx.ID) {
		return "", fmt.Errorf("export placeholder %d: %w", tx.ID, sheets.ErrPlaceholder)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[tx.ID]
	if !ok {
		s.next++
		ref = s.next
		s.refs[tx.ID] = ref
	}
	s.rows[tx.ID] = sheets.RowFromTransaction(tx)
	return fmt.Sprintf("mem:%d", ref), nil
}

func (s *Store) Remove(_ context.Context, recordID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, recordID)
	return nil
}

// Rows returns the exported rows in reference order.
func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sheets.Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return s.refs[out[i].RecordID] < s.refs[out[j].RecordID] })
	return out
}
