package storage

import "testing"

func TestFeed_NotifyCoalesces(t *testing.T) {
	feed := NewFeed()
	id, ch := feed.Subscribe(1)
	_, other := feed.Subscribe(2)

	feed.Notify(1)
	feed.Notify(1, 1)

	select {
	case <-ch:
	default:
		t.Fatal("expected a signal for owner 1")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce into one")
	default:
	}
	select {
	case <-other:
		t.Fatal("owner 2 should not be signalled")
	default:
	}

	feed.Unsubscribe(1, id)
	feed.Unsubscribe(1, id)
	if n := feed.SubscriberCount(1); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}
	feed.Notify(1)
}
