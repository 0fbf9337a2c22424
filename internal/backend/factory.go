package backend

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"finsync/internal/coordinator"
	"finsync/internal/core"
	"finsync/internal/events"
	"finsync/internal/metrics"
	"finsync/internal/remote"
	"finsync/internal/remote/httpclient"
	"finsync/internal/remote/memory"
	"finsync/internal/remote/resilient"
	"finsync/internal/storage"
)

// Factory builds data layers from a Config.
type Factory struct {
	logger    *slog.Logger
	metrics   metrics.Collector
	publisher events.Publisher
}

type Option func(*Factory)

func WithMetrics(collector metrics.Collector) Option {
	return func(f *Factory) { f.metrics = collector }
}

func WithPublisher(p events.Publisher) Option {
	return func(f *Factory) { f.publisher = p }
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger, opts ...Option) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		logger:    logger,
		metrics:   metrics.NoOpCollector{},
		publisher: events.NopPublisher{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build opens the cache, connects the remote and wires one coordinator per
// entity type. Callers must run Result.Cleanup.
func (f *Factory) Build(cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stores, cleanup, err := f.createStores(cfg)
	if err != nil {
		return nil, err
	}

	gateways, mem, err := f.createGateways(cfg)
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	guard := resilient.NewGuard(cfg.Resilience, f.metrics, f.logger)
	set := coordinator.NewSet(stores, protect(gateways, guard),
		coordinator.WithLogger(f.logger),
		coordinator.WithMetrics(f.metrics),
		coordinator.WithPublisher(f.publisher))

	f.logger.Info("Data layer ready",
		"cache", cfg.Cache.String(),
		"remote", string(cfg.Remote))

	return &Result{Set: set, Guard: guard, Remote: mem, Cleanup: cleanup}, nil
}

func (f *Factory) createStores(cfg Config) (coordinator.Stores, CleanupFunc, error) {
	feed := storage.NewFeed()
	if cfg.Cache == MemoryBackend {
		f.logger.Warn("Using in-memory cache, nothing survives a restart")
		return coordinator.Stores{
			Transactions:      storage.NewMemoryStore[core.Transaction](feed),
			Categories:        storage.NewMemoryStore[core.Category](feed),
			RecurringPayments: storage.NewMemoryStore[core.RecurringPayment](feed),
			SpendingLimits:    storage.NewMemoryStore[core.SpendingLimit](feed),
			SavingsGoals:      storage.NewMemoryStore[core.SavingsGoal](feed),
		}, func() error { return nil }, nil
	}

	db, err := storage.OpenSQLite(cfg.SQLiteDBPath)
	if err != nil {
		return coordinator.Stores{}, nil, fmt.Errorf("failed to initialize SQLite cache: %w", err)
	}
	stores, err := sqliteStores(db, feed)
	if err != nil {
		db.Close()
		return coordinator.Stores{}, nil, err
	}
	f.logger.Info("SQLite cache opened", "path", cfg.SQLiteDBPath)
	return stores, db.Close, nil
}

func sqliteStores(db *sql.DB, feed *storage.Feed) (coordinator.Stores, error) {
	var (
		s   coordinator.Stores
		err error
	)
	if s.Transactions, err = storage.NewSQLiteStore[core.Transaction](db, core.KindTransaction, feed); err != nil {
		return s, err
	}
	if s.Categories, err = storage.NewSQLiteStore[core.Category](db, core.KindCategory, feed); err != nil {
		return s, err
	}
	if s.RecurringPayments, err = storage.NewSQLiteStore[core.RecurringPayment](db, core.KindRecurringPayment, feed); err != nil {
		return s, err
	}
	if s.SpendingLimits, err = storage.NewSQLiteStore[core.SpendingLimit](db, core.KindSpendingLimit, feed); err != nil {
		return s, err
	}
	if s.SavingsGoals, err = storage.NewSQLiteStore[core.SavingsGoal](db, core.KindSavingsGoal, feed); err != nil {
		return s, err
	}
	return s, nil
}

func (f *Factory) createGateways(cfg Config) (coordinator.Gateways, *memory.Remote, error) {
	if cfg.Remote == MemoryRemote {
		f.logger.Warn("Using in-process remote, changes are not shared")
		r := memory.New()
		return coordinator.Gateways{
			Transactions:      r.Transactions,
			Categories:        r.Categories,
			RecurringPayments: r.RecurringPayments,
			SpendingLimits:    r.SpendingLimits,
			SavingsGoals:      r.SavingsGoals,
			Totals:            r,
			Profiles:          r,
		}, r, nil
	}

	// The guard enforces the per-call timeout; the client timeout is a
	// backstop.
	hc := &http.Client{Timeout: 30 * time.Second}
	if cfg.Resilience.Timeout > 0 {
		hc.Timeout = 2 * cfg.Resilience.Timeout
	}
	c, err := httpclient.New(cfg.RemoteBaseURL,
		httpclient.WithHTTPClient(hc),
		httpclient.WithToken(cfg.RemoteToken))
	if err != nil {
		return coordinator.Gateways{}, nil, fmt.Errorf("remote client: %w", err)
	}
	return coordinator.Gateways{
		Transactions:      httpclient.NewResource[core.Transaction](c, remote.Paths[core.KindTransaction]),
		Categories:        httpclient.NewResource[core.Category](c, remote.Paths[core.KindCategory]),
		RecurringPayments: httpclient.NewResource[core.RecurringPayment](c, remote.Paths[core.KindRecurringPayment]),
		SpendingLimits:    httpclient.NewResource[core.SpendingLimit](c, remote.Paths[core.KindSpendingLimit]),
		SavingsGoals:      httpclient.NewResource[core.SavingsGoal](c, remote.Paths[core.KindSavingsGoal]),
		Totals:            c,
		Profiles:          c,
	}, nil, nil
}

func protect(g coordinator.Gateways, guard *resilient.Guard) coordinator.Gateways {
	return coordinator.Gateways{
		Transactions:      resilient.Wrap(g.Transactions, guard, core.KindTransaction),
		Categories:        resilient.Wrap(g.Categories, guard, core.KindCategory),
		RecurringPayments: resilient.Wrap(g.RecurringPayments, guard, core.KindRecurringPayment),
		SpendingLimits:    resilient.Wrap(g.SpendingLimits, guard, core.KindSpendingLimit),
		SavingsGoals:      resilient.Wrap(g.SavingsGoals, guard, core.KindSavingsGoal),
		Totals:            resilient.WrapTotals(g.Totals, guard),
		Profiles:          resilient.WrapProfiles(g.Profiles, guard),
	}
}
