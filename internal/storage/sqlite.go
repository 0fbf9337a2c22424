package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"finsync/internal/core"

	_ "modernc.org/sqlite"
)

// tables maps record kinds to the tables created by the migrations.
var tables = map[string]string{
	core.KindTransaction:      "transactions",
	core.KindCategory:         "categories",
	core.KindRecurringPayment: "recurring_payments",
	core.KindSpendingLimit:    "spending_limits",
	core.KindSavingsGoal:      "savings_goals",
}

// OpenSQLite opens (creating if needed) the cache database at dbPath and
// migrates it.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serializing on one connection avoids
	// SQLITE_BUSY between concurrent coordinators.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// SQLiteStore is a Store backed by one table of the cache database. Record
// bodies are stored as JSON; id, owner_id and pending are real columns.
type SQLiteStore[T core.Record[T]] struct {
	db    *sql.DB
	table string
	feed  *Feed
}

var _ Store[core.Transaction] = (*SQLiteStore[core.Transaction])(nil)

// NewSQLiteStore binds a store for the given record kind to db.
func NewSQLiteStore[T core.Record[T]](db *sql.DB, kind string, feed *Feed) (*SQLiteStore[T], error) {
	table, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	if feed == nil {
		feed = NewFeed()
	}
	return &SQLiteStore[T]{db: db, table: table, feed: feed}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore[T]) upsert(ctx context.Context, q execer, record T) (prevOwner int64, err error) {
	meta := record.Metadata()
	payload, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("encode record %d: %w", meta.ID, err)
	}

	err = q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT owner_id FROM %s WHERE id = ?", s.table), meta.ID).Scan(&prevOwner)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup record %d: %w", meta.ID, err)
	}

	_, err = q.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, owner_id, pending, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			pending = excluded.pending,
			payload = excluded.payload,
			updated_at = excluded.updated_at`, s.table),
		meta.ID, meta.OwnerID, meta.Pending, string(payload), time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("upsert record %d: %w", meta.ID, err)
	}
	return prevOwner, nil
}

func (s *SQLiteStore[T]) Upsert(ctx context.Context, record T) error {
	prevOwner, err := s.upsert(ctx, s.db, record)
	if err != nil {
		return err
	}
	s.notify(record.Metadata().OwnerID, prevOwner)
	return nil
}

func (s *SQLiteStore[T]) UpsertMany(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	owners := make([]int64, 0, len(records)*2)
	for _, record := range records {
		prevOwner, err := s.upsert(ctx, tx, record)
		if err != nil {
			return err
		}
		owners = append(owners, record.Metadata().OwnerID, prevOwner)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upserts: %w", err)
	}
	s.notify(owners...)
	return nil
}

func (s *SQLiteStore[T]) FindByID(ctx context.Context, id int64) (T, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id, owner_id, pending, payload FROM %s WHERE id = ?", s.table), id)

	record, err := scanRecord[T](row)
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, fmt.Errorf("%s %d: %w", s.table, id, ErrNotFound)
	}
	return record, err
}

func (s *SQLiteStore[T]) QueryByOwner(ctx context.Context, ownerID int64) (*Live[T], error) {
	return newLive(ctx, s.feed, ownerID, func(ctx context.Context) ([]T, error) {
		return s.ListByOwner(ctx, ownerID)
	}), nil
}

func (s *SQLiteStore[T]) ListByOwner(ctx context.Context, ownerID int64) ([]T, error) {
	return s.list(ctx,
		fmt.Sprintf("SELECT id, owner_id, pending, payload FROM %s WHERE owner_id = ? ORDER BY id", s.table), ownerID)
}

func (s *SQLiteStore[T]) QueryPending(ctx context.Context) ([]T, error) {
	return s.list(ctx,
		fmt.Sprintf("SELECT id, owner_id, pending, payload FROM %s WHERE pending = 1 ORDER BY id", s.table))
}

func (s *SQLiteStore[T]) DeleteByID(ctx context.Context, id int64) error {
	var ownerID int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ? RETURNING owner_id", s.table), id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}

	slog.DebugContext(ctx, "Deleted cached record", "table", s.table, "id", id)
	s.notify(ownerID)
	return nil
}

func (s *SQLiteStore[T]) ReplaceOwner(ctx context.Context, ownerID int64, records []T) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE owner_id = ?", s.table), ownerID); err != nil {
		return fmt.Errorf("clear owner %d: %w", ownerID, err)
	}

	owners := []int64{ownerID}
	for _, record := range records {
		prevOwner, err := s.upsert(ctx, tx, record)
		if err != nil {
			return err
		}
		owners = append(owners, record.Metadata().OwnerID, prevOwner)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}

	slog.DebugContext(ctx, "Replaced cached records", "table", s.table, "owner_id", ownerID, "count", len(records))
	s.notify(owners...)
	return nil
}

func (s *SQLiteStore[T]) list(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		record, err := scanRecord[T](rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.table, err)
	}
	return out, nil
}

func (s *SQLiteStore[T]) notify(owners ...int64) {
	s.feed.Notify(nonZero(owners...)...)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord[T core.Record[T]](row scanner) (T, error) {
	var (
		record  T
		meta    core.Meta
		payload string
	)
	if err := row.Scan(&meta.ID, &meta.OwnerID, &meta.Pending, &payload); err != nil {
		return record, err
	}
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return record, fmt.Errorf("decode record %d: %w", meta.ID, err)
	}
	// Columns are authoritative over whatever the payload carried.
	return record.WithMetadata(meta), nil
}
