package consumer

import "github.com/downfa11-org/sideline-consumer/pkg/types"

// buffer is the bounded single-producer-single-consumer staging FIFO
// between a broker fetch and next_record (spec §2 C7, §5 back-pressure).
// The Consumer is both producer and consumer on its single driver
// goroutine, so no internal locking is needed.
type buffer struct {
	records []types.Record
	head    int
	cap     int
}

func newBuffer(capacity int) *buffer {
	return &buffer{records: make([]types.Record, 0, capacity), cap: capacity}
}

// Len is the number of records currently staged.
func (b *buffer) Len() int { return len(b.records) - b.head }

// Cap is the buffer's fixed capacity.
func (b *buffer) Cap() int { return b.cap }

// Full reports whether pushing would exceed capacity.
func (b *buffer) Full() bool { return b.Len() >= b.cap }

// Push appends r, first resetting the slice if every staged record has
// already been popped. Returns
// false without modifying the buffer if it is already full.
func (b *buffer) Push(r types.Record) bool {
	if b.Full() {
		return false
	}
	if b.head > 0 && b.head == len(b.records) {
		b.records = b.records[:0]
		b.head = 0
	}
	b.records = append(b.records, r)
	return true
}

// Pop removes and returns the oldest staged record.
func (b *buffer) Pop() (types.Record, bool) {
	if b.Len() == 0 {
		return types.Record{}, false
	}
	r := b.records[b.head]
	b.head++
	if b.head == len(b.records) {
		b.records = b.records[:0]
		b.head = 0
	}
	return r, true
}

// Discard drops every staged record without returning them, used on
// close to avoid acking records the caller never saw (spec §5).
func (b *buffer) Discard() {
	b.records = b.records[:0]
	b.head = 0
}
