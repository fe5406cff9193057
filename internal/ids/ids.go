// Package ids allocates MQTT packet identifiers: a monotonic counter over
// [1, 65535] that wraps without ever producing 0, the one value the wire
// protocol forbids.
package ids

import "sync/atomic"

// Source is a lock-free packet-id allocator. The zero value is ready to
// use and starts from 1.
type Source struct {
	next atomic.Uint32
}

// Next returns the next packet id in [1, 65535], wrapping 65535 back to 1.
// Safe for concurrent use, though spec's single-writer-per-engine model
// means in practice only one goroutine ever calls it for a given engine.
func (s *Source) Next() uint16 {
	for {
		cur := s.next.Load()
		n := cur + 1
		if n > 65535 {
			n = 1
		}
		if s.next.CompareAndSwap(cur, n) {
			return uint16(n)
		}
	}
}
