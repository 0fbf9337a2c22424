// Package storage is the local cache: the persistent copy of every record the
// user has seen or written, with live per-owner queries on top.
package storage

import (
	"context"
	"errors"

	"finsync/internal/core"
)

var ErrNotFound = errors.New("record not found in local store")

// Store persists records of one entity type. Implementations are safe for
// concurrent use and notify their Feed after every successful mutation.
type Store[T core.Record[T]] interface {
	// Upsert inserts or replaces the record with the same ID. Last write wins.
	Upsert(ctx context.Context, record T) error
	UpsertMany(ctx context.Context, records []T) error
	// FindByID returns ErrNotFound when no record has the given ID.
	FindByID(ctx context.Context, id int64) (T, error)
	// QueryByOwner opens a live query that emits the owner's records now and
	// after every change touching that owner.
	QueryByOwner(ctx context.Context, ownerID int64) (*Live[T], error)
	ListByOwner(ctx context.Context, ownerID int64) ([]T, error)
	QueryPending(ctx context.Context) ([]T, error)
	DeleteByID(ctx context.Context, id int64) error
	// ReplaceOwner atomically swaps the owner's whole record set for records.
	ReplaceOwner(ctx context.Context, ownerID int64, records []T) error
}
