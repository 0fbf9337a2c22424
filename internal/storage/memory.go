package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"finsync/internal/core"
)

// MemoryStore keeps records in process memory. It backs the memory data
// backend and most tests.
type MemoryStore[T core.Record[T]] struct {
	mu      sync.RWMutex
	records map[int64]T
	feed    *Feed
}

var _ Store[core.Category] = (*MemoryStore[core.Category])(nil)

func NewMemoryStore[T core.Record[T]](feed *Feed) *MemoryStore[T] {
	if feed == nil {
		feed = NewFeed()
	}
	return &MemoryStore[T]{
		records: make(map[int64]T),
		feed:    feed,
	}
}

func (s *MemoryStore[T]) put(record T) (prevOwner int64) {
	id := record.Metadata().ID
	if prev, ok := s.records[id]; ok {
		prevOwner = prev.Metadata().OwnerID
	}
	s.records[id] = record
	return prevOwner
}

func (s *MemoryStore[T]) Upsert(ctx context.Context, record T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	prevOwner := s.put(record)
	s.mu.Unlock()

	s.feed.Notify(nonZero(record.Metadata().OwnerID, prevOwner)...)
	return nil
}

func (s *MemoryStore[T]) UpsertMany(ctx context.Context, records []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	owners := make([]int64, 0, len(records)*2)

	s.mu.Lock()
	for _, record := range records {
		owners = append(owners, record.Metadata().OwnerID, s.put(record))
	}
	s.mu.Unlock()

	s.feed.Notify(nonZero(owners...)...)
	return nil
}

func (s *MemoryStore[T]) FindByID(ctx context.Context, id int64) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return record, nil
}

func (s *MemoryStore[T]) QueryByOwner(ctx context.Context, ownerID int64) (*Live[T], error) {
	return newLive(ctx, s.feed, ownerID, func(ctx context.Context) ([]T, error) {
		return s.ListByOwner(ctx, ownerID)
	}), nil
}

func (s *MemoryStore[T]) ListByOwner(ctx context.Context, ownerID int64) ([]T, error) {
	return s.filter(func(m core.Meta) bool { return m.OwnerID == ownerID }), nil
}

func (s *MemoryStore[T]) QueryPending(ctx context.Context) ([]T, error) {
	return s.filter(func(m core.Meta) bool { return m.Pending }), nil
}

func (s *MemoryStore[T]) DeleteByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	record, ok := s.records[id]
	delete(s.records, id)
	s.mu.Unlock()

	if ok {
		s.feed.Notify(record.Metadata().OwnerID)
	}
	return nil
}

func (s *MemoryStore[T]) ReplaceOwner(ctx context.Context, ownerID int64, records []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	owners := []int64{ownerID}

	s.mu.Lock()
	for id, record := range s.records {
		if record.Metadata().OwnerID == ownerID {
			delete(s.records, id)
		}
	}
	for _, record := range records {
		owners = append(owners, record.Metadata().OwnerID, s.put(record))
	}
	s.mu.Unlock()

	s.feed.Notify(nonZero(owners...)...)
	return nil
}

// filter returns matching records ordered by ID, like the SQLite store.
func (s *MemoryStore[T]) filter(match func(core.Meta) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0)
	for _, record := range s.records {
		if match(record.Metadata()) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata().ID < out[j].Metadata().ID
	})
	return out
}

func nonZero(ids ...int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != 0 {
			out = append(out, id)
		}
	}
	return out
}
