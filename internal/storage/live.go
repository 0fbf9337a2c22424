package storage

import (
	"context"
	"log/slog"
	"sync"
)

// Live is an open query over one owner's records. Updates delivers the
// current snapshot first and a fresh snapshot after every change. A slow
// reader only ever sees the latest snapshot.
type Live[T any] struct {
	updates chan []T
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

type loader[T any] func(ctx context.Context) ([]T, error)

func newLive[T any](ctx context.Context, feed *Feed, ownerID int64, load loader[T]) *Live[T] {
	ctx, cancel := context.WithCancel(ctx)
	l := &Live[T]{
		updates: make(chan []T, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	// Subscribe before the first load so no change can slip in between.
	subID, changed := feed.Subscribe(ownerID)

	go func() {
		defer close(l.done)
		defer close(l.updates)
		defer feed.Unsubscribe(ownerID, subID)

		for {
			records, err := load(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				slog.WarnContext(ctx, "Live query reload failed", "owner_id", ownerID, "error", err)
			default:
				l.publish(records)
			}

			select {
			case <-ctx.Done():
				return
			case <-changed:
			}
		}
	}()

	return l
}

// publish replaces any unread snapshot with records.
func (l *Live[T]) publish(records []T) {
	select {
	case <-l.updates:
	default:
	}
	l.updates <- records
}

// Updates is closed once the query is closed or its context ends.
func (l *Live[T]) Updates() <-chan []T {
	return l.updates
}

// Close cancels the query and waits for its goroutine to exit.
func (l *Live[T]) Close() {
	l.once.Do(func() {
		l.cancel()
		<-l.done
	})
}
