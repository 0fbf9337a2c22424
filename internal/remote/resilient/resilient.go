// Package resilient protects remote gateways with a timeout, a rate limiter
// and a circuit breaker. It never retries: a failed call fails once.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finsync/internal/core"
	"finsync/internal/metrics"
	"finsync/internal/remote"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Guard is the shared protection state for one remote service.
type Guard struct {
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
	metrics metrics.Collector
	logger  *slog.Logger
}

// NewGuard creates a Guard. A nil collector or logger falls back to the
// no-op collector and the default logger.
func NewGuard(cfg Config, collector metrics.Collector, logger *slog.Logger) *Guard {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "remote"
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	g := &Guard{
		timeout: cfg.Timeout,
		metrics: collector,
		logger:  logger.With("breaker", cfg.Name),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Rejections caused by the request itself say nothing about the
		// remote's health.
		IsSuccessful: func(err error) bool {
			return err == nil || remote.IsClientError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			g.logger.Warn("Circuit breaker state changed",
				"from", from.String(),
				"to", to.String())

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			g.metrics.RecordCircuitState(name, state)
		},
	})

	return g
}

// State returns the breaker state.
func (g *Guard) State() metrics.CircuitState {
	switch g.cb.State() {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// call runs fn once under the guard's limiter, timeout and breaker.
func call[R any](ctx context.Context, g *Guard, resource, op string, fn func(context.Context) (R, error)) (R, error) {
	var zero R
	start := time.Now()

	result, err := run(ctx, g, fn)
	duration := time.Since(start)
	g.metrics.RecordRemoteCall(resource, op, remote.Classify(err), duration)

	if err != nil {
		if !remote.IsClientError(err) {
			g.logger.WarnContext(ctx, "Remote call failed",
				"resource", resource,
				"operation", op,
				"error_type", remote.Classify(err),
				"duration", duration,
				"error", err)
		}
		return zero, err
	}
	return result, nil
}

func (g *Guard) limit(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("%w: rate limit wait: %v", remote.ErrTimeout, err)
	}
	return nil
}

func run[R any](ctx context.Context, g *Guard, fn func(context.Context) (R, error)) (R, error) {
	var zero R
	if err := g.limit(ctx); err != nil {
		return zero, err
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := g.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return zero, fmt.Errorf("%w: %v", remote.ErrCircuitOpen, err)
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, remote.ErrTimeout):
		return zero, fmt.Errorf("%w: %v", remote.ErrTimeout, err)
	case err != nil:
		return zero, err
	}

	result, _ := out.(R)
	return result, nil
}

// Gateway decorates a remote.Gateway with a Guard.
type Gateway[T core.Record[T]] struct {
	next     remote.Gateway[T]
	guard    *Guard
	resource string
}

var _ remote.Gateway[core.Category] = (*Gateway[core.Category])(nil)

// Wrap protects next with guard. resource labels logs and metrics.
func Wrap[T core.Record[T]](next remote.Gateway[T], guard *Guard, resource string) *Gateway[T] {
	return &Gateway[T]{next: next, guard: guard, resource: resource}
}

func (w *Gateway[T]) ListByOwner(ctx context.Context, ownerID int64) ([]T, error) {
	return call(ctx, w.guard, w.resource, "list", func(ctx context.Context) ([]T, error) {
		return w.next.ListByOwner(ctx, ownerID)
	})
}

func (w *Gateway[T]) Get(ctx context.Context, id int64) (T, error) {
	return call(ctx, w.guard, w.resource, "get", func(ctx context.Context) (T, error) {
		return w.next.Get(ctx, id)
	})
}

func (w *Gateway[T]) Create(ctx context.Context, record T) (T, error) {
	return call(ctx, w.guard, w.resource, "create", func(ctx context.Context) (T, error) {
		return w.next.Create(ctx, record)
	})
}

func (w *Gateway[T]) Update(ctx context.Context, id int64, record T) (T, error) {
	return call(ctx, w.guard, w.resource, "update", func(ctx context.Context) (T, error) {
		return w.next.Update(ctx, id, record)
	})
}

func (w *Gateway[T]) Delete(ctx context.Context, id int64) error {
	_, err := call(ctx, w.guard, w.resource, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.next.Delete(ctx, id)
	})
	return err
}

// Totals decorates a remote.TransactionTotals with a Guard.
type Totals struct {
	next  remote.TransactionTotals
	guard *Guard
}

var _ remote.TransactionTotals = (*Totals)(nil)

func WrapTotals(next remote.TransactionTotals, guard *Guard) *Totals {
	return &Totals{next: next, guard: guard}
}

func (w *Totals) MonthlyTotals(ctx context.Context, ownerID int64) ([]core.PeriodTotal, error) {
	return call(ctx, w.guard, "totals", "monthly", func(ctx context.Context) ([]core.PeriodTotal, error) {
		return w.next.MonthlyTotals(ctx, ownerID)
	})
}

func (w *Totals) YearlyTotals(ctx context.Context, ownerID int64) ([]core.PeriodTotal, error) {
	return call(ctx, w.guard, "totals", "yearly", func(ctx context.Context) ([]core.PeriodTotal, error) {
		return w.next.YearlyTotals(ctx, ownerID)
	})
}

// Profiles decorates a remote.ProfileGateway with a Guard.
type Profiles struct {
	next  remote.ProfileGateway
	guard *Guard
}

var _ remote.ProfileGateway = (*Profiles)(nil)

func WrapProfiles(next remote.ProfileGateway, guard *Guard) *Profiles {
	return &Profiles{next: next, guard: guard}
}

func (w *Profiles) GetProfile(ctx context.Context, userID int64) (core.Profile, error) {
	return call(ctx, w.guard, "profile", "get", func(ctx context.Context) (core.Profile, error) {
		return w.next.GetProfile(ctx, userID)
	})
}

func (w *Profiles) UpdateProfile(ctx context.Context, userID int64, p core.Profile) (core.Profile, error) {
	return call(ctx, w.guard, "profile", "update", func(ctx context.Context) (core.Profile, error) {
		return w.next.UpdateProfile(ctx, userID, p)
	})
}
