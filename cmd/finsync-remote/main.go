package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"finsync/internal/cli"
	"finsync/internal/config"
	"finsync/internal/coordinator"
	"finsync/internal/core"
	"finsync/internal/log"
	promcollector "finsync/internal/metrics/prometheus"
	"finsync/internal/middleware/ratelimit"
	"finsync/internal/remote"
	"finsync/internal/remote/memory"
	"finsync/internal/remote/postgres"
	"finsync/internal/remote/resilient"
	"finsync/internal/remote/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentServer)
	defer logger.Sync()

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := promcollector.NewCollector(cfg.MetricsNamespace)
	if err := collector.Register(registry); err != nil {
		cli.Fatal(logger, "Failed to register metrics", err)
	}

	gateways, health, closeBackend := openBackend(ctx, cfg, logger)
	defer closeBackend()

	guard := resilient.NewGuard(resilient.Config{
		Name:             "backend",
		Timeout:          cfg.RemoteTimeout,
		MaxFailures:      uint32(cfg.BreakerMaxFailures),
		OpenTimeout:      cfg.BreakerTimeout,
		HalfOpenRequests: 1,
	}, collector, logger.WithComponent(log.ComponentRemote).Logger)

	var limiter *ratelimit.Limiter
	if cfg.ServerRateLimit > 0 {
		rlCfg := ratelimit.DefaultConfig()
		rlCfg.RequestsPerMinute = cfg.ServerRateLimit
		limiter = ratelimit.NewLimiter(rlCfg)
		defer limiter.Stop()
	}

	srv := server.New(server.Options{
		Token:    cfg.RemoteToken,
		Logger:   logger.Logger,
		Limiter:  limiter,
		Gatherer: registry,
		Health:   health,
	})
	mount(srv, gateways, guard)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2*cfg.RemoteTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting finsync-remote", "addr", httpServer.Addr, "auth", cfg.RemoteToken != "")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}
	logger.Info("Server stopped")
}

// openBackend returns Postgres-backed gateways when DATABASE_URL is set and
// an in-process store otherwise.
func openBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (coordinator.Gateways, func(context.Context) error, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, serving from memory")
		r := memory.New()
		return coordinator.Gateways{
			Transactions:      r.Transactions,
			Categories:        r.Categories,
			RecurringPayments: r.RecurringPayments,
			SpendingLimits:    r.SpendingLimits,
			SavingsGoals:      r.SavingsGoals,
			Totals:            r,
			Profiles:          r,
		}, nil, func() {}
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		cli.Fatal(logger, "Failed to open Postgres", err)
	}
	logger.Info("Postgres backend ready")
	return coordinator.Gateways{
		Transactions:      postgres.NewCollection[core.Transaction](db, core.KindTransaction),
		Categories:        postgres.NewCollection[core.Category](db, core.KindCategory),
		RecurringPayments: postgres.NewCollection[core.RecurringPayment](db, core.KindRecurringPayment),
		SpendingLimits:    postgres.NewCollection[core.SpendingLimit](db, core.KindSpendingLimit),
		SavingsGoals:      postgres.NewCollection[core.SavingsGoal](db, core.KindSavingsGoal),
		Totals:            db,
		Profiles:          db,
	}, db.Ping, db.Close
}

func mount(srv *server.Server, g coordinator.Gateways, guard *resilient.Guard) {
	server.Mount[core.Transaction](srv, remote.Paths[core.KindTransaction], resilient.Wrap(g.Transactions, guard, core.KindTransaction))
	server.Mount[core.Category](srv, remote.Paths[core.KindCategory], resilient.Wrap(g.Categories, guard, core.KindCategory))
	server.Mount[core.RecurringPayment](srv, remote.Paths[core.KindRecurringPayment], resilient.Wrap(g.RecurringPayments, guard, core.KindRecurringPayment))
	server.Mount[core.SpendingLimit](srv, remote.Paths[core.KindSpendingLimit], resilient.Wrap(g.SpendingLimits, guard, core.KindSpendingLimit))
	server.Mount[core.SavingsGoal](srv, remote.Paths[core.KindSavingsGoal], resilient.Wrap(g.SavingsGoals, guard, core.KindSavingsGoal))
	srv.MountTotals(resilient.WrapTotals(g.Totals, guard))
	srv.MountProfiles(resilient.WrapProfiles(g.Profiles, guard))
}
