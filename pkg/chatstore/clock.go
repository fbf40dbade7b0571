package chatstore

import (
	"sync"
	"time"
)

// ticker hands out strictly increasing nanosecond stamps, so two rows written
// in the same clock tick still sort in insertion order.
type ticker struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (t *ticker) next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.now().UnixNano()
	if n <= t.last {
		n = t.last + 1
	}
	t.last = n
	return time.Unix(0, n)
}

var clock = &ticker{now: time.Now}
