// Package postgres is the durable backend of the reference remote service.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"finsync/internal/budget"
	"finsync/internal/core"
	"finsync/internal/remote"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB owns the connection pool shared by every collection.
type DB struct {
	pool *pgxpool.Pool
}

var (
	_ remote.TransactionTotals = (*DB)(nil)
	_ remote.ProfileGateway    = (*DB)(nil)
)

// Open connects to databaseURL and migrates the schema.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{pool: pool}, nil
}

func runMigrations(pool *pgxpool.Pool) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("create pgx driver: %w", err)
	}
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", d, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *DB) Close() {
	db.pool.Close()
}

// Collection stores one record kind in the shared records table. It
// implements remote.Gateway.
type Collection[T core.Record[T]] struct {
	pool *pgxpool.Pool
	kind string
}

var _ remote.Gateway[core.Transaction] = (*Collection[core.Transaction])(nil)

func NewCollection[T core.Record[T]](db *DB, kind string) *Collection[T] {
	return &Collection[T]{pool: db.pool, kind: kind}
}

func (c *Collection[T]) ListByOwner(ctx context.Context, ownerID int64) ([]T, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, owner_id, payload FROM records WHERE kind = $1 AND owner_id = $2 ORDER BY id`,
		c.kind, ownerID)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var (
			id, owner int64
			payload   []byte
		)
		if err := rows.Scan(&id, &owner, &payload); err != nil {
			return nil, dbError(err)
		}
		record, err := decodeRecord[T](id, owner, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

func (c *Collection[T]) Get(ctx context.Context, id int64) (T, error) {
	return c.one(ctx, id,
		`SELECT id, owner_id, payload FROM records WHERE id = $1 AND kind = $2`,
		id, c.kind)
}

func (c *Collection[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T
	owner, payload, err := encodeRecord(record)
	if err != nil {
		return zero, err
	}
	return c.one(ctx, 0,
		`INSERT INTO records (kind, owner_id, payload) VALUES ($1, $2, $3) RETURNING id, owner_id, payload`,
		c.kind, owner, payload)
}

func (c *Collection[T]) Update(ctx context.Context, id int64, record T) (T, error) {
	var zero T
	owner, payload, err := encodeRecord(record)
	if err != nil {
		return zero, err
	}
	return c.one(ctx, id,
		`UPDATE records SET owner_id = $3, payload = $4, updated_at = NOW()
		 WHERE id = $1 AND kind = $2 RETURNING id, owner_id, payload`,
		id, c.kind, owner, payload)
}

func (c *Collection[T]) Delete(ctx context.Context, id int64) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM records WHERE id = $1 AND kind = $2`, id, c.kind)
	if err != nil {
		return dbError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", c.kind, id, remote.ErrNotFound)
	}
	return nil
}

func (c *Collection[T]) one(ctx context.Context, id int64, query string, args ...any) (T, error) {
	var (
		zero         T
		gotID, owner int64
		payload      []byte
	)
	err := c.pool.QueryRow(ctx, query, args...).Scan(&gotID, &owner, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, fmt.Errorf("%s %d: %w", c.kind, id, remote.ErrNotFound)
	}
	if err != nil {
		return zero, dbError(err)
	}
	return decodeRecord[T](gotID, owner, payload)
}

// encodeRecord validates record and returns the columns stored for it. The
// payload never carries identity or sync state; those live in columns.
func encodeRecord[T core.Record[T]](record T) (int64, []byte, error) {
	if err := record.Validate(); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", remote.ErrValidation, err)
	}
	meta := record.Metadata()
	payload, err := json.Marshal(record.WithMetadata(core.Meta{}))
	if err != nil {
		return 0, nil, fmt.Errorf("encode record: %w", err)
	}
	return meta.OwnerID, payload, nil
}

func decodeRecord[T core.Record[T]](id, owner int64, payload []byte) (T, error) {
	var record T
	if err := json.Unmarshal(payload, &record); err != nil {
		return record, fmt.Errorf("%w: decode record %d: %v", remote.ErrServer, id, err)
	}
	return record.WithMetadata(core.Meta{ID: id, OwnerID: owner}), nil
}

func dbError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return remote.Transport(err)
	}
	return fmt.Errorf("%w: %w", remote.ErrServer, err)
}

// totalsQuery buckets transaction payloads in UTC, like budget.Totals.
func totalsQuery(g budget.Granularity) string {
	month := "EXTRACT(MONTH FROM ts)::int"
	if g == budget.ByYear {
		month = "0"
	}
	return `
		SELECT EXTRACT(YEAR FROM ts)::int AS year,
		       ` + month + ` AS month,
		       COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0)::text,
		       COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0)::text
		FROM (
		    SELECT ((payload->>'timestamp')::timestamptz AT TIME ZONE 'UTC') AS ts,
		           (payload->>'amount')::numeric AS amount,
		           payload->>'type' AS type
		    FROM records
		    WHERE kind = '` + core.KindTransaction + `' AND owner_id = $1
		) t
		GROUP BY 1, 2
		ORDER BY 1, 2`
}

func (db *DB) MonthlyTotals(ctx context.Context, ownerID int64) ([]core.PeriodTotal, error) {
	return db.totals(ctx, ownerID, budget.ByMonth)
}

func (db *DB) YearlyTotals(ctx context.Context, ownerID int64) ([]core.PeriodTotal, error) {
	return db.totals(ctx, ownerID, budget.ByYear)
}

func (db *DB) totals(ctx context.Context, ownerID int64, g budget.Granularity) ([]core.PeriodTotal, error) {
	rows, err := db.pool.Query(ctx, totalsQuery(g), ownerID)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	out := make([]core.PeriodTotal, 0)
	for rows.Next() {
		var (
			t               core.PeriodTotal
			income, expense string
		)
		if err := rows.Scan(&t.Year, &t.Month, &income, &expense); err != nil {
			return nil, dbError(err)
		}
		if t.Income, err = decimal.NewFromString(income); err != nil {
			return nil, fmt.Errorf("%w: parse income: %v", remote.ErrServer, err)
		}
		if t.Expense, err = decimal.NewFromString(expense); err != nil {
			return nil, fmt.Errorf("%w: parse expense: %v", remote.ErrServer, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

func (db *DB) GetProfile(ctx context.Context, userID int64) (core.Profile, error) {
	return db.profile(ctx, userID,
		`SELECT user_id, name, email, balance::text FROM profiles WHERE user_id = $1`,
		userID)
}

// UpdateProfile replaces an existing profile. Profiles are provisioned by
// account signup, so a missing row is ErrNotFound.
func (db *DB) UpdateProfile(ctx context.Context, userID int64, p core.Profile) (core.Profile, error) {
	return db.profile(ctx, userID,
		`UPDATE profiles SET name = $2, email = $3, balance = $4::numeric, updated_at = NOW()
		 WHERE user_id = $1 RETURNING user_id, name, email, balance::text`,
		userID, p.Name, p.Email, p.Balance.StringFixed(2))
}

func (db *DB) profile(ctx context.Context, userID int64, query string, args ...any) (core.Profile, error) {
	var (
		p       core.Profile
		balance string
	)
	err := db.pool.QueryRow(ctx, query, args...).Scan(&p.UserID, &p.Name, &p.Email, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Profile{}, fmt.Errorf("profile %d: %w", userID, remote.ErrNotFound)
	}
	if err != nil {
		return core.Profile{}, dbError(err)
	}
	if p.Balance, err = decimal.NewFromString(balance); err != nil {
		return core.Profile{}, fmt.Errorf("%w: parse balance: %v", remote.ErrServer, err)
	}
	return p, nil
}
