// Package coordinator keeps the local cache and the remote service in step for
// one entity type: cache-first reads, optimistic creates, remote-first updates
// and deletes, and explicit reconciliation.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"finsync/internal/core"
	"finsync/internal/events"
	"finsync/internal/metrics"
	"finsync/internal/remote"
	"finsync/internal/storage"

	"golang.org/x/sync/singleflight"
)

// fetchTimeout bounds a shared remote listing once no single reader owns it.
const fetchTimeout = 30 * time.Second

// ErrPending is returned when a remote operation targets a record the remote
// has not acknowledged yet.
var ErrPending = errors.New("record is pending remote confirmation")

type options struct {
	logger    *slog.Logger
	metrics   metrics.Collector
	publisher events.Publisher
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(collector metrics.Collector) Option {
	return func(o *options) { o.metrics = collector }
}

// WithPublisher sets where confirmed changes are announced.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    slog.Default(),
		metrics:   metrics.NoOpCollector{},
		publisher: events.NopPublisher{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Coordinator syncs one entity type between a cache store and a remote
// gateway. All methods are safe for concurrent use.
type Coordinator[T core.Record[T]] struct {
	kind      string
	store     storage.Store[T]
	gateway   remote.Gateway[T]
	logger    *slog.Logger
	metrics   metrics.Collector
	publisher events.Publisher

	fetches singleflight.Group

	mu         sync.RWMutex
	itemsOwner int64
	items      []T
}

func New[T core.Record[T]](kind string, store storage.Store[T], gateway remote.Gateway[T], opts ...Option) *Coordinator[T] {
	o := buildOptions(opts)
	return &Coordinator[T]{
		kind:      kind,
		store:     store,
		gateway:   gateway,
		logger:    o.logger.With("entity", kind),
		metrics:   o.metrics,
		publisher: o.publisher,
	}
}

func (c *Coordinator[T]) Kind() string {
	return c.kind
}

// send delivers r unless ctx has ended.
func send[R any](ctx context.Context, out chan<- Result[R], r Result[R]) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

func failed[R any](err error) <-chan Result[R] {
	out := make(chan Result[R], 1)
	out <- Failure[R](err)
	close(out)
	return out
}

// Read emits Loading, the cached rows when there are any, then either the
// fresh remote rows (after they replaced the owner's cache rows) or an Error.
// A cached Success is never retracted. The channel is closed when the read
// ends or ctx is cancelled.
func (c *Coordinator[T]) Read(ctx context.Context, ownerID int64) <-chan Result[[]T] {
	out := make(chan Result[[]T], 3)

	go func() {
		defer close(out)

		if !send(ctx, out, Loading[[]T]()) {
			return
		}

		cached, err := c.store.ListByOwner(ctx, ownerID)
		if err != nil {
			err = fmt.Errorf("read cached %s: %w", c.kind, err)
			c.fail(ctx, "read", err)
			send(ctx, out, Failure[[]T](err))
			return
		}
		if len(cached) > 0 {
			c.setItems(ownerID, cached)
			if !send(ctx, out, Success(cached)) {
				return
			}
		}

		fresh, err := c.fetch(ctx, ownerID)
		if err != nil {
			c.fail(ctx, "read", err)
			send(ctx, out, Failure[[]T](err))
			return
		}
		if err := c.store.ReplaceOwner(ctx, ownerID, fresh); err != nil {
			err = fmt.Errorf("cache %s: %w", c.kind, err)
			c.fail(ctx, "read", err)
			send(ctx, out, Failure[[]T](err))
			return
		}

		c.setItems(ownerID, fresh)
		c.metrics.RecordSync(c.kind, "read", "ok")
		send(ctx, out, Success(fresh))
	}()

	return out
}

// fetch collapses concurrent remote listings for the same owner. A caller
// whose ctx ends stops waiting; the shared call is detached from any single
// caller and bounded by fetchTimeout instead.
func (c *Coordinator[T]) fetch(ctx context.Context, ownerID int64) ([]T, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.fetches.DoChan(strconv.FormatInt(ownerID, 10), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(shared, fetchTimeout)
		defer cancel()
		return c.gateway.ListByOwner(fetchCtx, ownerID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("list %s: %w", c.kind, res.Err)
		}
		records, _ := res.Val.([]T)
		// Shared callers must not alias one slice.
		return append([]T(nil), records...), nil
	}
}

// Watch opens a live view over the owner's cached rows.
func (c *Coordinator[T]) Watch(ctx context.Context, ownerID int64) (*storage.Live[T], error) {
	return c.store.QueryByOwner(ctx, ownerID)
}

// Create writes record to the cache as pending before returning, then asks
// the remote to store it. On success the placeholder row is replaced by the
// confirmed one; on failure the pending row stays for a later Reconcile.
// A record that does not already carry a placeholder ID gets a fresh one, so
// a confirmed row is never overwritten by a create.
func (c *Coordinator[T]) Create(ctx context.Context, record T) <-chan Result[T] {
	meta := record.Metadata()
	if !core.IsPlaceholder(meta.ID) {
		meta.ID = core.NewPlaceholderID()
	}
	meta.Pending = true
	record = record.WithMetadata(meta)

	if err := record.Validate(); err != nil {
		err = fmt.Errorf("create %s: %w", c.kind, err)
		c.fail(ctx, "create", err)
		return failed[T](err)
	}
	if err := c.store.Upsert(ctx, record); err != nil {
		err = fmt.Errorf("cache pending %s: %w", c.kind, err)
		c.fail(ctx, "create", err)
		return failed[T](err)
	}
	c.upsertItem(record)

	out := make(chan Result[T], 2)
	go func() {
		defer close(out)
		if !send(ctx, out, Loading[T]()) {
			return
		}

		confirmed, err := c.gateway.Create(ctx, record)
		if err != nil {
			err = fmt.Errorf("create %s: %w", c.kind, err)
			c.fail(ctx, "create", err, "placeholder_id", meta.ID)
			send(ctx, out, Failure[T](err))
			return
		}

		cm := confirmed.Metadata()
		cm.Pending = false
		if cm.OwnerID == 0 {
			cm.OwnerID = meta.OwnerID
		}
		confirmed = confirmed.WithMetadata(cm)

		// Write the confirmed row before dropping the placeholder: a crash in
		// between leaves a stale pending row, never a lost record.
		if err := c.store.Upsert(ctx, confirmed); err != nil {
			err = fmt.Errorf("cache confirmed %s: %w", c.kind, err)
			c.fail(ctx, "create", err, "remote_id", cm.ID)
			send(ctx, out, Failure[T](err))
			return
		}
		c.upsertItem(confirmed)
		c.publish(ctx, events.ActionConfirmed, cm, confirmed)

		// The remote holds the record either way; a leftover placeholder is
		// reported so the caller knows the cache needs a Reconcile.
		if cm.ID != meta.ID {
			if err := c.store.DeleteByID(ctx, meta.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				err = fmt.Errorf("drop placeholder %s %d (remote id %d): %w", c.kind, meta.ID, cm.ID, err)
				c.fail(ctx, "create", err, "placeholder_id", meta.ID, "remote_id", cm.ID)
				send(ctx, out, Failure[T](err))
				return
			}
			c.removeItem(meta.ID)
		}

		c.metrics.RecordSync(c.kind, "create", "ok")
		send(ctx, out, Success(confirmed))
	}()

	return out
}

// Update sends record to the remote and mirrors the answer locally. Nothing
// local changes when the remote call fails.
func (c *Coordinator[T]) Update(ctx context.Context, id int64, record T) <-chan Result[T] {
	if core.IsPlaceholder(id) {
		err := fmt.Errorf("update %s %d: %w", c.kind, id, ErrPending)
		c.fail(ctx, "update", err)
		return failed[T](err)
	}

	out := make(chan Result[T], 2)
	go func() {
		defer close(out)
		if !send(ctx, out, Loading[T]()) {
			return
		}

		updated, err := c.gateway.Update(ctx, id, record)
		if err != nil {
			err = fmt.Errorf("update %s %d: %w", c.kind, id, err)
			c.fail(ctx, "update", err)
			send(ctx, out, Failure[T](err))
			return
		}

		meta := updated.Metadata()
		meta.ID = id
		meta.Pending = false
		if meta.OwnerID == 0 {
			meta.OwnerID = record.Metadata().OwnerID
		}
		updated = updated.WithMetadata(meta)

		if err := c.store.Upsert(ctx, updated); err != nil {
			err = fmt.Errorf("cache updated %s %d: %w", c.kind, id, err)
			c.fail(ctx, "update", err)
			send(ctx, out, Failure[T](err))
			return
		}
		c.upsertItem(updated)

		c.metrics.RecordSync(c.kind, "update", "ok")
		c.publish(ctx, events.ActionUpdated, meta, updated)
		send(ctx, out, Success(updated))
	}()

	return out
}

// Delete removes the record remotely and then locally. A placeholder was
// never acknowledged by the remote, so deleting one only drops the local
// row. The Success payload is the deleted ID.
func (c *Coordinator[T]) Delete(ctx context.Context, id int64) <-chan Result[int64] {
	out := make(chan Result[int64], 2)

	go func() {
		defer close(out)
		if !send(ctx, out, Loading[int64]()) {
			return
		}

		var owner int64
		if existing, err := c.store.FindByID(ctx, id); err == nil {
			owner = existing.Metadata().OwnerID
		}

		if !core.IsPlaceholder(id) {
			if err := c.gateway.Delete(ctx, id); err != nil {
				err = fmt.Errorf("delete %s %d: %w", c.kind, id, err)
				c.fail(ctx, "delete", err)
				send(ctx, out, Failure[int64](err))
				return
			}
		}

		if err := c.store.DeleteByID(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			err = fmt.Errorf("uncache %s %d: %w", c.kind, id, err)
			c.fail(ctx, "delete", err)
			send(ctx, out, Failure[int64](err))
			return
		}
		c.removeItem(id)

		c.metrics.RecordSync(c.kind, "delete", "ok")
		if !core.IsPlaceholder(id) {
			c.publishDeleted(ctx, owner, id)
		}
		send(ctx, out, Success(id))
	}()

	return out
}

// Reconcile makes the remote set the owner's cache content. Pending rows the
// remote does not know are dropped. Running it twice against an unchanged
// remote leaves the cache unchanged.
func (c *Coordinator[T]) Reconcile(ctx context.Context, ownerID int64) error {
	records, err := c.gateway.ListByOwner(ctx, ownerID)
	if err != nil {
		err = fmt.Errorf("reconcile %s: %w", c.kind, err)
		c.fail(ctx, "reconcile", err, "owner_id", ownerID)
		return err
	}

	dropped := 0
	if cached, err := c.store.ListByOwner(ctx, ownerID); err == nil {
		for _, r := range cached {
			if r.Metadata().Pending {
				dropped++
			}
		}
	}

	if err := c.store.ReplaceOwner(ctx, ownerID, records); err != nil {
		err = fmt.Errorf("reconcile %s: %w", c.kind, err)
		c.fail(ctx, "reconcile", err, "owner_id", ownerID)
		return err
	}
	c.setItems(ownerID, records)

	c.metrics.RecordSync(c.kind, "reconcile", "ok")
	if dropped > 0 {
		c.logger.WarnContext(ctx, "Reconcile dropped pending rows",
			"owner_id", ownerID,
			"dropped", dropped)
	}
	c.logger.InfoContext(ctx, "Reconciled cache with remote",
		"owner_id", ownerID,
		"records", len(records))
	return nil
}

// Pending returns every cached row still waiting for remote confirmation.
func (c *Coordinator[T]) Pending(ctx context.Context) ([]T, error) {
	records, err := c.store.QueryPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("query pending %s: %w", c.kind, err)
	}
	c.metrics.RecordPending(c.kind, len(records))
	return records, nil
}

// Items returns a copy of the list last delivered by Read or Reconcile, with
// later local mutations applied.
func (c *Coordinator[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.items...)
}

func (c *Coordinator[T]) setItems(ownerID int64, records []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.itemsOwner = ownerID
	c.items = append([]T(nil), records...)
}

func (c *Coordinator[T]) upsertItem(record T) {
	meta := record.Metadata()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.itemsOwner != meta.OwnerID {
		return
	}
	for i, item := range c.items {
		if item.Metadata().ID == meta.ID {
			c.items[i] = record
			return
		}
	}
	c.items = append(c.items, record)
}

func (c *Coordinator[T]) removeItem(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, item := range c.items {
		if item.Metadata().ID == id {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			return
		}
	}
}

func (c *Coordinator[T]) fail(ctx context.Context, op string, err error, args ...any) {
	outcome := remote.Classify(err)
	c.metrics.RecordSync(c.kind, op, outcome)

	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	c.logger.Log(ctx, level, "Sync operation failed",
		append([]any{"operation", op, "error_type", outcome, "error", err}, args...)...)
}

func (c *Coordinator[T]) publish(ctx context.Context, action string, meta core.Meta, record T) {
	ev, err := events.New(c.kind, action, meta.OwnerID, meta.ID, record)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to build event", "action", action, "error", err)
		return
	}
	c.emit(ctx, ev)
}

func (c *Coordinator[T]) publishDeleted(ctx context.Context, ownerID, id int64) {
	ev, err := events.New(c.kind, events.ActionDeleted, ownerID, id, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to build event", "action", events.ActionDeleted, "error", err)
		return
	}
	c.emit(ctx, ev)
}

// emit never fails the operation: the change is already confirmed remotely.
func (c *Coordinator[T]) emit(ctx context.Context, ev events.Event) {
	if err := c.publisher.Publish(ctx, ev); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", ev.Type,
			"record_id", ev.RecordID,
			"error", err)
	}
}
