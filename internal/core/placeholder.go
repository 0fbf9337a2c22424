package core

import (
	"sync/atomic"
	"time"
)

var placeholderSeq atomic.Int64

// NewPlaceholderID returns a negative identifier for a record that has not
// been acknowledged by the remote yet. The sequence is shared by every entity
// type and seeded from the clock, so placeholders left pending by an earlier
// run of the process are never reused.
func NewPlaceholderID() int64 {
	for {
		last := placeholderSeq.Load()
		next := time.Now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if placeholderSeq.CompareAndSwap(last, next) {
			return -next
		}
	}
}

// IsPlaceholder reports whether id was produced by NewPlaceholderID.
func IsPlaceholder(id int64) bool {
	return id < 0
}
