package storage

import (
	"log/slog"
	"sync"
)

// Feed is the changefeed shared by stores. Subscribers are organized by
// owner and receive a coalesced "changed" signal, never the data itself.
// It is safe for concurrent use.
type Feed struct {
	// owners maps owner ID to a map of subscription ID to signal channel
	owners map[int64]map[uint64]chan struct{}
	nextID uint64
	mu     sync.RWMutex
}

// NewFeed creates an empty Feed
func NewFeed() *Feed {
	return &Feed{
		owners: make(map[int64]map[uint64]chan struct{}),
	}
}

// Subscribe registers interest in ownerID. The returned channel has room for
// one pending signal; signals sent while one is pending are merged into it.
func (f *Feed) Subscribe(ownerID int64) (uint64, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	ch := make(chan struct{}, 1)

	if f.owners[ownerID] == nil {
		f.owners[ownerID] = make(map[uint64]chan struct{})
	}
	f.owners[ownerID][id] = ch

	slog.Debug("Feed subscription registered", "owner_id", ownerID, "subscription", id)
	return id, ch
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (f *Feed) Unsubscribe(ownerID int64, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.owners[ownerID]
	if !ok {
		return
	}
	delete(subs, id)

	// Clean up empty owner maps
	if len(subs) == 0 {
		delete(f.owners, ownerID)
	}
}

// Notify signals every subscriber of the given owners. It never blocks.
func (f *Feed) Notify(ownerIDs ...int64) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	notified := make(map[int64]bool, len(ownerIDs))
	for _, ownerID := range ownerIDs {
		if notified[ownerID] {
			continue
		}
		notified[ownerID] = true

		for _, ch := range f.owners[ownerID] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of live subscriptions for an owner
func (f *Feed) SubscriberCount(ownerID int64) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.owners[ownerID])
}
