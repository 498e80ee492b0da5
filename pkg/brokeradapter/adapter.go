// Package brokeradapter is a broker.Client backed by a real Kafka
// cluster via github.com/segmentio/kafka-go — the "external
// collaborator" spec §1 places out of scope for the core, wired here to
// exercise the dependency rather than leaving the contract unimplemented.
package brokeradapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/downfa11-org/sideline-consumer/pkg/broker"
	"github.com/downfa11-org/sideline-consumer/pkg/types"
)

// Adapter maintains one kafka.Reader per assigned partition, since
// kafka-go performs partition assignment client-side rather than
// through a consumer group — a natural fit for this core's own static
// sharding (spec §4.4).
type Adapter struct {
	brokerAddrs []string
	dialer      *kafka.Dialer

	mu      sync.Mutex
	readers map[types.PartitionKey]*kafka.Reader
	closed  bool
}

// New returns an Adapter that will dial the given broker addresses.
func New(brokerAddrs []string) *Adapter {
	return &Adapter{
		brokerAddrs: brokerAddrs,
		dialer:      &kafka.Dialer{Timeout: 10 * time.Second},
		readers:     make(map[types.PartitionKey]*kafka.Reader),
	}
}

func (a *Adapter) PartitionsFor(ctx context.Context, topic string) ([]int32, error) {
	conn, err := a.dialer.DialContext(ctx, "tcp", a.brokerAddrs[0])
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", broker.ErrUnavailable, err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return nil, fmt.Errorf("%w: read partitions: %v", broker.ErrUnavailable, err)
	}

	out := make([]int32, 0, len(partitions))
	for _, p := range partitions {
		out = append(out, int32(p.ID))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (a *Adapter) Assign(ctx context.Context, partitions []types.PartitionKey) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	want := make(map[types.PartitionKey]bool, len(partitions))
	for _, p := range partitions {
		want[p] = true
		if _, ok := a.readers[p]; ok {
			continue
		}
		a.readers[p] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:   a.brokerAddrs,
			Topic:     p.Topic,
			Partition: int(p.Partition),
			MinBytes:  1,
			MaxBytes:  10e6,
		})
	}
	for p, r := range a.readers {
		if !want[p] {
			_ = r.Close()
			delete(a.readers, p)
		}
	}
	return nil
}

// Seek records the desired offset on the partition's reader. kafka-go
// validates the offset lazily: an invalid target surfaces as
// broker.ErrOffsetOutOfRange from the first subsequent Poll, matching
// the "caught at first fetch" recovery spec §4.5 requires.
func (a *Adapter) Seek(ctx context.Context, partition types.PartitionKey, offset int64) error {
	r := a.reader(partition)
	if r == nil {
		return fmt.Errorf("broker: partition %s not assigned", partition)
	}
	if err := r.SetOffset(offset); err != nil {
		return fmt.Errorf("%w: %v", broker.ErrUnavailable, err)
	}
	return nil
}

func (a *Adapter) SeekToBeginning(ctx context.Context, partitions []types.PartitionKey) (map[types.PartitionKey]int64, error) {
	out := make(map[types.PartitionKey]int64, len(partitions))
	for _, p := range partitions {
		r := a.reader(p)
		if r == nil {
			return nil, fmt.Errorf("broker: partition %s not assigned", p)
		}
		if err := r.SetOffset(kafka.FirstOffset); err != nil {
			return nil, fmt.Errorf("%w: %v", broker.ErrUnavailable, err)
		}
		conn, dialErr := a.dialer.DialLeader(ctx, "tcp", a.brokerAddrs[0], p.Topic, int(p.Partition))
		if dialErr != nil {
			return nil, fmt.Errorf("%w: %v", broker.ErrUnavailable, dialErr)
		}
		first, firstErr := conn.ReadFirstOffset()
		_ = conn.Close()
		if firstErr != nil {
			return nil, fmt.Errorf("%w: %v", broker.ErrUnavailable, firstErr)
		}
		out[p] = first
	}
	return out, nil
}

func (a *Adapter) Position(ctx context.Context, partition types.PartitionKey) (int64, error) {
	r := a.reader(partition)
	if r == nil {
		return 0, fmt.Errorf("broker: partition %s not assigned", partition)
	}
	return r.Offset(), nil
}

// Poll fetches whatever records become available across assigned
// partitions within timeout. It never blocks past timeout; an empty
// Batch with a nil error is a normal "nothing ready yet" result.
func (a *Adapter) Poll(ctx context.Context, timeout time.Duration) (broker.Batch, error) {
	a.mu.Lock()
	readers := make(map[types.PartitionKey]*kafka.Reader, len(a.readers))
	for k, v := range a.readers {
		readers[k] = v
	}
	a.mu.Unlock()

	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var batch broker.Batch
	for partition, r := range readers {
		for {
			msg, err := r.FetchMessage(deadline)
			if err != nil {
				if errors.Is(err, kafka.OffsetOutOfRange) {
					return broker.Batch{}, &broker.OffsetOutOfRangeError{Partition: partition}
				}
				if errors.Is(err, context.DeadlineExceeded) {
					break
				}
				return batch, fmt.Errorf("%w: fetch: %v", broker.ErrUnavailable, err)
			}
			batch.Records = append(batch.Records, types.Record{
				Partition: partition,
				Offset:    msg.Offset,
				Key:       msg.Key,
				Value:     msg.Value,
			})
		}
	}
	return batch, nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	var firstErr error
	for p, r := range a.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.readers, p)
	}
	return firstErr
}

func (a *Adapter) reader(p types.PartitionKey) *kafka.Reader {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readers[p]
}

var _ broker.Client = (*Adapter)(nil)
