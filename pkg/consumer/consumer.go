// Package consumer implements the sideline Consumer state machine: the
// startup protocol, fetch/ack loop, and time-triggered flush described
// in spec §4.5, wired to the broker.Client and persistence.Adapter
// contracts and to the PartitionOffsetManager/ConsumerState types in
// pkg/offset.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/downfa11-org/sideline-consumer/internal/metrics"
	"github.com/downfa11-org/sideline-consumer/pkg/assign"
	"github.com/downfa11-org/sideline-consumer/pkg/broker"
	"github.com/downfa11-org/sideline-consumer/pkg/clock"
	"github.com/downfa11-org/sideline-consumer/pkg/offset"
	"github.com/downfa11-org/sideline-consumer/pkg/persistence"
	"github.com/downfa11-org/sideline-consumer/pkg/types"
	"github.com/downfa11-org/sideline-consumer/util"
)

type lifecycleState int

const (
	stateNew lifecycleState = iota
	stateOpen
	stateClosed
)

// defaultPollTimeout bounds how long a single fetch waits for the
// broker client before next_record returns with whatever is staged.
const defaultPollTimeout = 100 * time.Millisecond

// Consumer drives a single logical shard of a topic: it owns a set of
// PartitionOffsetManagers, a staging buffer, and its broker/persistence
// collaborators. It is not safe for concurrent use from more than one
// goroutine — spec §5 describes a single cooperative driver.
type Consumer struct {
	cfg    *Config
	client broker.Client
	store  persistence.Adapter
	clk    clock.Clock

	// instanceID tags Open's startup summary log line so the startups of
	// different runs of the same consumer_id can be told apart.
	instanceID string

	mu          sync.Mutex
	state       lifecycleState
	managers    map[types.PartitionKey]*offset.Manager
	buf         *buffer
	lastFlushAt time.Time
}

// New constructs a Consumer in the New state. clk may be nil, in which
// case a wall-clock Clock is used.
func New(cfg *Config, client broker.Client, store persistence.Adapter, clk clock.Clock) *Consumer {
	if clk == nil {
		clk = clock.System{}
	}
	return &Consumer{
		cfg:        cfg,
		client:     client,
		store:      store,
		clk:        clk,
		instanceID: uuid.New().String(),
		state:      stateNew,
		managers:   make(map[types.PartitionKey]*offset.Manager),
	}
}

// Open runs the startup protocol (spec §4.5): partition discovery,
// static assignment, and per-partition seek/manager initialization from
// persisted state or the broker's earliest offset.
func (c *Consumer) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateNew {
		return ErrAlreadyOpen
	}

	allPartitions, err := c.client.PartitionsFor(ctx, c.cfg.Topic)
	if err != nil {
		return fmt.Errorf("consumer: partitions_for(%s): %w", c.cfg.Topic, err)
	}

	owned, err := assign.Assign(allPartitions, c.cfg.NumberOfConsumers, c.cfg.IndexOfConsumer)
	if err != nil {
		return fmt.Errorf("consumer: assign partitions: %w", err)
	}

	keys := make([]types.PartitionKey, 0, len(owned))
	for _, p := range owned {
		keys = append(keys, types.PartitionKey{Topic: c.cfg.Topic, Partition: p})
	}
	if err := c.client.Assign(ctx, keys); err != nil {
		return fmt.Errorf("consumer: assign to broker client: %w", err)
	}

	c.buf = newBuffer(int(c.cfg.TupleBufferMaxSize))

	for _, key := range keys {
		if err := c.initPartition(ctx, key); err != nil {
			return err
		}
	}

	util.Info("consumer %s[%s]: opened with %d owned partitions: %s", c.cfg.ConsumerID, c.instanceID, len(keys), c.startupSummary())

	c.state = stateOpen
	c.lastFlushAt = c.clk.Now()
	return nil
}

// startupSummary renders each owned partition's starting-offset decision
// as a single line for Open's log summary (spec §9 supplemented feature:
// partial-assignment diagnostics).
func (c *Consumer) startupSummary() string {
	keys := make([]types.PartitionKey, 0, len(c.managers))
	for k := range c.managers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Topic != keys[j].Topic {
			return keys[i].Topic < keys[j].Topic
		}
		return keys[i].Partition < keys[j].Partition
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, c.managers[k].LastFinishedOffset()))
	}
	return strings.Join(parts, ", ")
}

func (c *Consumer) initPartition(ctx context.Context, key types.PartitionKey) error {
	committed, found, err := c.store.RetrieveConsumerOffset(c.cfg.ConsumerID, key.Partition)
	if err != nil {
		return fmt.Errorf("consumer: retrieve_consumer_offset(%s): %w", key, err)
	}

	if !found {
		return c.resetPartitionToEarliest(ctx, key)
	}

	seekErr := c.client.Seek(ctx, key, committed+1)
	var oor *broker.OffsetOutOfRangeError
	if errors.As(seekErr, &oor) {
		util.Warn("consumer %s: persisted offset %d for %s is out of range, resetting to earliest", c.cfg.ConsumerID, committed, key)
		return c.resetPartitionToEarliest(ctx, key)
	}
	if seekErr != nil {
		return fmt.Errorf("consumer: seek(%s, %d): %w", key, committed+1, seekErr)
	}

	c.managers[key] = offset.New(key.String(), committed)
	return nil
}

func (c *Consumer) resetPartitionToEarliest(ctx context.Context, key types.PartitionKey) error {
	earliest, err := c.client.SeekToBeginning(ctx, []types.PartitionKey{key})
	if err != nil {
		return fmt.Errorf("consumer: seek_to_beginning(%s): %w", key, err)
	}
	e := earliest[key]
	c.managers[key] = offset.New(key.String(), e-1)
	return nil
}

// NextRecord returns the next staged record, fetching from the broker
// client if the buffer is currently empty. A nil record with a nil
// error means nothing was available within the poll timeout.
func (c *Consumer) NextRecord(ctx context.Context) (*types.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return nil, ErrNotOpen
	}

	if r, ok := c.buf.Pop(); ok {
		c.startOffset(r)
		return &r, nil
	}

	if err := c.fetch(ctx); err != nil {
		return nil, err
	}

	metrics.BufferOccupancy.WithLabelValues(c.cfg.ConsumerID).Set(float64(c.buf.Len()))

	if r, ok := c.buf.Pop(); ok {
		c.startOffset(r)
		return &r, nil
	}
	return nil, nil
}

// fetch stages whatever the broker client has ready, recovering locally
// from a deferred out-of-range signal (spec §4.5) instead of surfacing it.
func (c *Consumer) fetch(ctx context.Context) error {
	if c.buf.Full() {
		return nil
	}

	batch, err := c.client.Poll(ctx, defaultPollTimeout)
	if err != nil {
		var oor *broker.OffsetOutOfRangeError
		if errors.As(err, &oor) {
			return c.resetPartitionToEarliest(ctx, oor.Partition)
		}
		return fmt.Errorf("%w: poll: %v", broker.ErrUnavailable, err)
	}

	metrics.RecordsFetched.WithLabelValues(c.cfg.ConsumerID).Add(float64(len(batch.Records)))
	for i, r := range batch.Records {
		if !c.buf.Push(r) {
			// The buffer is full: rewind each partition to its first
			// unstaged record so the rest is fetched again after a drain.
			rewound := make(map[types.PartitionKey]bool)
			for _, rest := range batch.Records[i:] {
				if rewound[rest.Partition] {
					continue
				}
				rewound[rest.Partition] = true
				if err := c.client.Seek(ctx, rest.Partition, rest.Offset); err != nil {
					return fmt.Errorf("consumer: seek(%s, %d) after full buffer: %w", rest.Partition, rest.Offset, err)
				}
			}
			break
		}
	}
	return nil
}

func (c *Consumer) startOffset(r types.Record) {
	m, ok := c.managers[r.Partition]
	if !ok {
		util.Warn("consumer %s: fetched a record for unowned partition %s", c.cfg.ConsumerID, r.Partition)
		return
	}
	m.StartOffset(r.Offset)
}

// CommitOffset acknowledges offset on partition. An ack for a partition
// this Consumer does not own is logged and swallowed (spec §7 UnknownPartition).
func (c *Consumer) CommitOffset(partition types.PartitionKey, off int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return ErrNotOpen
	}
	m, ok := c.managers[partition]
	if !ok {
		util.Warn("consumer %s: commit_offset for unowned partition %s", c.cfg.ConsumerID, partition)
		return nil
	}
	m.FinishOffset(off)
	metrics.RecordsAcked.WithLabelValues(c.cfg.ConsumerID).Inc()
	return nil
}

// CommitRecord is commit_offset(record) from spec §4.5.
func (c *Consumer) CommitRecord(r types.Record) error {
	return c.CommitOffset(r.Partition, r.Offset)
}

// FlushConsumerState builds a snapshot from every owned manager and
// persists each entry, returning the snapshot.
func (c *Consumer) FlushConsumerState() (*offset.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return nil, ErrNotOpen
	}
	return c.flushLocked()
}

func (c *Consumer) flushLocked() (*offset.State, error) {
	snap := make(map[types.PartitionKey]int64, len(c.managers))
	for pk, m := range c.managers {
		snap[pk] = m.LastFinishedOffset()
	}
	for pk, off := range snap {
		if err := c.store.PersistConsumerOffset(c.cfg.ConsumerID, pk.Partition, off); err != nil {
			return nil, fmt.Errorf("%w: persist_consumer_offset(%s): %v", persistence.ErrPersistenceFailure, pk, err)
		}
	}
	metrics.FlushTotal.WithLabelValues(c.cfg.ConsumerID).Inc()
	s := offset.NewState(snap)
	return &s, nil
}

// TimedFlushConsumerState performs flush_consumer_state only once
// auto_commit_interval has elapsed on the injected clock since open or
// the last flush (spec §4.5). Returns nil, nil when it declines to flush.
func (c *Consumer) TimedFlushConsumerState() (*offset.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return nil, ErrNotOpen
	}
	if !c.cfg.AutoCommit {
		return nil, nil
	}
	if c.clk.Now().Sub(c.lastFlushAt) < c.cfg.AutoCommitInterval {
		return nil, nil
	}

	state, err := c.flushLocked()
	if err != nil {
		return nil, err
	}
	c.lastFlushAt = c.clk.Now()
	return state, nil
}

// UnsubscribeTopicPartition drops ownership of partition, reassigning
// the broker client to the remaining owned set. Returns false if the
// partition was not owned (idempotent). The persisted offset for
// partition is left untouched.
func (c *Consumer) UnsubscribeTopicPartition(ctx context.Context, partition types.PartitionKey) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return false, ErrNotOpen
	}
	if _, ok := c.managers[partition]; !ok {
		return false, nil
	}
	delete(c.managers, partition)

	remaining := make([]types.PartitionKey, 0, len(c.managers))
	for k := range c.managers {
		remaining = append(remaining, k)
	}
	if err := c.client.Assign(ctx, remaining); err != nil {
		return false, fmt.Errorf("consumer: reassign after unsubscribe(%s): %w", partition, err)
	}
	return true, nil
}

// RemoveConsumerState flushes, then clears every persisted offset for
// this ConsumerId, including partitions no longer owned.
func (c *Consumer) RemoveConsumerState() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return ErrNotOpen
	}
	if _, err := c.flushLocked(); err != nil {
		return err
	}
	if err := c.store.RemoveConsumerState(c.cfg.ConsumerID); err != nil {
		return fmt.Errorf("%w: remove_consumer_state: %v", persistence.ErrPersistenceFailure, err)
	}
	return nil
}

// CurrentState is a live snapshot without persisting.
func (c *Consumer) CurrentState() (*offset.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return nil, ErrNotOpen
	}
	snap := make(map[types.PartitionKey]int64, len(c.managers))
	for pk, m := range c.managers {
		snap[pk] = m.LastFinishedOffset()
	}
	s := offset.NewState(snap)
	return &s, nil
}

// GetAssignedPartitions returns the currently owned partitions, sorted
// for deterministic iteration.
func (c *Consumer) GetAssignedPartitions() ([]types.PartitionKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return nil, ErrNotOpen
	}
	out := make([]types.PartitionKey, 0, len(c.managers))
	for k := range c.managers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].Partition < out[j].Partition
	})
	return out, nil
}

// Close is idempotent: it discards any staged-but-unacked records
// (spec §5 — they will be re-delivered from last_finished+1 on the next
// open) and releases the broker client and persistence adapter.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateClosed {
		return nil
	}
	if c.buf != nil {
		c.buf.Discard()
	}

	var firstErr error
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			firstErr = fmt.Errorf("consumer: close broker client: %w", err)
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("consumer: close persistence adapter: %w", err)
		}
	}
	c.state = stateClosed
	return firstErr
}
