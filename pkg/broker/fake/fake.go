// Package fake provides an in-memory broker.Client used to drive the
// Consumer core's end-to-end scenarios without a real Kafka cluster,
// grounded on the teacher's test/e2e fixtures that stand up fake
// collaborators rather than a live broker.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/downfa11-org/sideline-consumer/pkg/broker"
	"github.com/downfa11-org/sideline-consumer/pkg/types"
)

// Broker is a single-topic-cluster stand-in: an append-only log per
// partition, plus the assignment/position bookkeeping a real client
// would otherwise own.
type Broker struct {
	mu sync.Mutex

	logs      map[types.PartitionKey][]types.Record
	earliest  map[types.PartitionKey]int64
	positions map[types.PartitionKey]int64
	assigned  map[types.PartitionKey]bool
	closed    bool
}

// New returns an empty fake broker. Use Produce to seed partition logs
// before the Consumer under test calls Open.
func New() *Broker {
	return &Broker{
		logs:      make(map[types.PartitionKey][]types.Record),
		earliest:  make(map[types.PartitionKey]int64),
		positions: make(map[types.PartitionKey]int64),
		assigned:  make(map[types.PartitionKey]bool),
	}
}

// Produce appends count records to partition starting at the next
// available offset, returning the first offset assigned.
func (b *Broker) Produce(topic string, partition int32, count int) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := types.PartitionKey{Topic: topic, Partition: partition}
	start := int64(len(b.logs[key]))
	for i := 0; i < count; i++ {
		off := start + int64(i)
		b.logs[key] = append(b.logs[key], types.Record{
			Partition: key,
			Offset:    off,
			Value:     []byte(fmt.Sprintf("%s-%d-%d", topic, partition, off)),
		})
	}
	return start
}

// Truncate simulates retention expiry: records below newEarliest are no
// longer seekable, even though they remain in the in-memory slice for
// simplicity. Offsets at or above newEarliest are unaffected.
func (b *Broker) Truncate(topic string, partition int32, newEarliest int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.earliest[types.PartitionKey{Topic: topic, Partition: partition}] = newEarliest
}

func (b *Broker) PartitionsFor(ctx context.Context, topic string) ([]int32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[int32]struct{})
	for k := range b.logs {
		if k.Topic == topic {
			seen[k.Partition] = struct{}{}
		}
	}
	out := make([]int32, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (b *Broker) Assign(ctx context.Context, partitions []types.PartitionKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.assigned = make(map[types.PartitionKey]bool, len(partitions))
	for _, p := range partitions {
		b.assigned[p] = true
		if _, ok := b.positions[p]; !ok {
			b.positions[p] = 0
		}
	}
	return nil
}

func (b *Broker) Seek(ctx context.Context, partition types.PartitionKey, offset int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkRange(partition, offset); err != nil {
		return err
	}
	b.positions[partition] = offset
	return nil
}

// checkRange reports ErrOffsetOutOfRange when offset names a position
// the log can no longer produce: below the retained earliest offset, or
// past the next offset the log would assign.
func (b *Broker) checkRange(partition types.PartitionKey, offset int64) error {
	size := int64(len(b.logs[partition]))
	if offset < b.earliest[partition] || offset > size {
		return &broker.OffsetOutOfRangeError{Partition: partition}
	}
	return nil
}

func (b *Broker) SeekToBeginning(ctx context.Context, partitions []types.PartitionKey) (map[types.PartitionKey]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[types.PartitionKey]int64, len(partitions))
	for _, p := range partitions {
		e := b.earliest[p]
		b.positions[p] = e
		out[p] = e
	}
	return out, nil
}

func (b *Broker) Position(ctx context.Context, partition types.PartitionKey) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[partition], nil
}

// Poll returns every record currently available across assigned
// partitions starting at each partition's position, advancing positions
// accordingly. timeout is accepted for interface compatibility but this
// fake never blocks.
func (b *Broker) Poll(ctx context.Context, timeout time.Duration) (broker.Batch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return broker.Batch{}, fmt.Errorf("fake broker: poll after close")
	}

	keys := make([]types.PartitionKey, 0, len(b.assigned))
	for p := range b.assigned {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Topic != keys[j].Topic {
			return keys[i].Topic < keys[j].Topic
		}
		return keys[i].Partition < keys[j].Partition
	})

	var batch broker.Batch
	for _, p := range keys {
		log := b.logs[p]
		pos := b.positions[p]
		for pos < int64(len(log)) {
			batch.Records = append(batch.Records, log[pos])
			pos++
		}
		b.positions[p] = pos
	}
	return batch, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

var _ broker.Client = (*Broker)(nil)
