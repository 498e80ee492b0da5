// Package broker defines the contract the Consumer core needs from an
// underlying broker client: partition discovery, static assignment,
// seeking, and a non-blocking poll. The core depends only on this
// interface (spec §6); pkg/broker/fake and pkg/brokeradapter are two
// independent implementations of it.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/downfa11-org/sideline-consumer/pkg/types"
)

// ErrOffsetOutOfRange is returned by Seek or Poll when the requested
// offset no longer exists in the log — the Consumer catches this at
// first fetch and resets the affected partition to earliest (spec §4.5).
var ErrOffsetOutOfRange = errors.New("broker: offset out of range")

// ErrUnavailable wraps a transient broker failure. The Consumer stays
// Open and retries on the caller's next operation (spec §7).
var ErrUnavailable = errors.New("broker: unavailable")

// OffsetOutOfRangeError identifies which partition a deferred
// out-of-range detection applies to — a real broker client may only
// discover this on the first subsequent Poll rather than at Seek time,
// so the Consumer needs the partition to recover the right one.
type OffsetOutOfRangeError struct {
	Partition types.PartitionKey
}

func (e *OffsetOutOfRangeError) Error() string {
	return "broker: offset out of range for partition " + e.Partition.String()
}

func (e *OffsetOutOfRangeError) Is(target error) bool {
	return target == ErrOffsetOutOfRange
}

func (e *OffsetOutOfRangeError) Unwrap() error {
	return ErrOffsetOutOfRange
}

// Batch is the ordered set of records returned by a single Poll, all
// drawn from the partitions passed to Assign. It may be empty.
type Batch struct {
	Records []types.Record
}

// Client is the collaborator the Consumer core drives. Implementations
// must be safe for the single logical driver goroutine the spec
// describes; background I/O an implementation spawns internally must
// never mutate Consumer-owned state directly.
type Client interface {
	// PartitionsFor returns every partition index of topic, sorted
	// ascending.
	PartitionsFor(ctx context.Context, topic string) ([]int32, error)

	// Assign statically assigns the given partitions to this client;
	// it replaces any prior assignment for partitions not present.
	Assign(ctx context.Context, partitions []types.PartitionKey) error

	// Seek moves the read cursor for partition to offset. A client that
	// checks eagerly returns ErrOffsetOutOfRange here if offset no longer
	// exists in the log; one that checks lazily returns it from a later
	// Poll as an *OffsetOutOfRangeError instead.
	Seek(ctx context.Context, partition types.PartitionKey, offset int64) error

	// SeekToBeginning moves the read cursor for each partition to the
	// earliest available offset and reports that offset per partition.
	SeekToBeginning(ctx context.Context, partitions []types.PartitionKey) (map[types.PartitionKey]int64, error)

	// Position returns the next offset that will be fetched for partition.
	Position(ctx context.Context, partition types.PartitionKey) (int64, error)

	// Poll returns whatever records are immediately available across
	// the assigned partitions, waiting up to timeout. An empty Batch is
	// a valid, non-error result.
	Poll(ctx context.Context, timeout time.Duration) (Batch, error)

	// Close releases the client's resources. Idempotent.
	Close() error
}
