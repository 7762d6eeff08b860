// Package sendbuffer tracks unacknowledged TCP segments keyed by the
// expected ACK number that confirms them, with lazy removal of stale
// retransmission-queue entries and a time-based retransmission trigger.
// It is a dict-plus-priority-queue structure: a map holds the live
// entries, a min-heap orders them by insertion/refresh time, and a heap
// entry whose key is no longer in the map is simply skipped and dropped
// the next time it surfaces.
package sendbuffer

import (
	"container/heap"
	"time"
)

// RetransmitThreshold is how long an entry can sit unconfirmed before
// ShouldSend reports it eligible for retransmission. A var, not a
// const, so internal/config can override it at startup.
var RetransmitThreshold = 60 * time.Second

// Entry is one outstanding segment: its original sequence number, payload,
// and control flags, recorded so it can be resent byte-for-byte if it
// times out unconfirmed.
type Entry struct {
	Seq     uint64
	Payload []byte
	Flags   uint8
}

type heapItem struct {
	timestamp time.Time
	key       uint64
}

type timestampHeap []heapItem

func (h timestampHeap) Len() int            { return len(h) }
func (h timestampHeap) Less(i, j int) bool  { return h[i].timestamp.Before(h[j].timestamp) }
func (h timestampHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timestampHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *timestampHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SendBuffer is the unacked-segment tracker described above, keyed by
// expected ACK number (sender's seq + segment length, or +1 for a bare
// SYN/FIN).
type SendBuffer struct {
	pq  timestampHeap
	buf map[uint64]Entry
}

// New creates an empty SendBuffer.
func New() *SendBuffer {
	return &SendBuffer{buf: make(map[uint64]Entry)}
}

// Push records entry, retransmittable under expectedAck, with the current
// time as its retransmit clock.
func (s *SendBuffer) Push(expectedAck uint64, entry Entry) {
	heap.Push(&s.pq, heapItem{timestamp: time.Now(), key: expectedAck})
	s.buf[expectedAck] = entry
}

// clear drops heap entries whose key is no longer live in buf: per the
// invariant, if a key is absent from the map any priority-queue entry for
// it is stale.
func (s *SendBuffer) clear() {
	for len(s.pq) > 0 {
		if _, live := s.buf[s.pq[0].key]; live {
			return
		}
		heap.Pop(&s.pq)
	}
}

// Confirm removes the entry for ack, if any: the peer has acknowledged it.
func (s *SendBuffer) Confirm(ack uint64) {
	if _, ok := s.buf[ack]; ok {
		delete(s.buf, ack)
		s.clear()
	}
}

// Size returns the number of live unacknowledged entries.
func (s *SendBuffer) Size() int {
	return len(s.buf)
}

// Get pops the oldest entry, re-inserts it with a fresh timestamp (so
// repeated Get calls round-robin rather than starve), and returns its key
// and entry.
func (s *SendBuffer) Get() (uint64, Entry, bool) {
	s.clear()
	if len(s.pq) == 0 {
		return 0, Entry{}, false
	}

	item := heap.Pop(&s.pq).(heapItem)
	entry := s.buf[item.key]
	heap.Push(&s.pq, heapItem{timestamp: time.Now(), key: item.key})
	s.clear()

	return item.key, entry, true
}

// ShouldSend reports whether the buffer is non-empty and its oldest entry
// has sat unconfirmed longer than RetransmitThreshold.
func (s *SendBuffer) ShouldSend() bool {
	s.clear()
	if len(s.pq) == 0 {
		return false
	}
	return time.Since(s.pq[0].timestamp) > RetransmitThreshold
}
