package delivery

import "github.com/serverdeck/serverdeck-agent/pkg/types"

// offlineBuffer is a fixed-capacity FIFO of undelivered metrics payloads.
// push on a full buffer evicts the oldest entry; it never blocks and never
// fails. The Client is the sole owner and only touches it from the primary
// cycle's call path, so no locking is needed.
type offlineBuffer struct {
	max   int
	items []types.MetricsPayload
}

func newOfflineBuffer(capacity int) *offlineBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &offlineBuffer{max: capacity}
}

// push appends p, evicting the oldest entry when the buffer is full.
func (b *offlineBuffer) push(p types.MetricsPayload) (evicted bool) {
	if len(b.items) >= b.max {
		b.items = b.items[1:]
		evicted = true
	}
	b.items = append(b.items, p)
	return evicted
}

// peek returns the oldest entry without removing it.
func (b *offlineBuffer) peek() (types.MetricsPayload, bool) {
	if len(b.items) == 0 {
		return types.MetricsPayload{}, false
	}
	return b.items[0], true
}

// pop discards the oldest entry.
func (b *offlineBuffer) pop() {
	if len(b.items) > 0 {
		b.items = b.items[1:]
	}
}

func (b *offlineBuffer) len() int { return len(b.items) }

func (b *offlineBuffer) capacity() int { return b.max }

// setCapacity resizes the buffer, evicting oldest entries if it shrank.
func (b *offlineBuffer) setCapacity(n int) {
	if n < 1 {
		n = 1
	}
	b.max = n
	for len(b.items) > n {
		b.items = b.items[1:]
	}
}
