// Package persistence defines the contract the Consumer core uses to
// durably store per-partition committed offsets and sideline-request
// metadata (spec §4.3). The core depends only on this capability set,
// never on a concrete store.
package persistence

import (
	"errors"

	"github.com/downfa11-org/sideline-consumer/pkg/types"
)

// ErrPersistenceFailure wraps any Adapter method failure the Consumer
// surfaces to its caller (spec §7): the flush is not considered to have
// happened and last_flush_at is not advanced.
var ErrPersistenceFailure = errors.New("persistence: operation failed")

// Adapter is the capability set a persistence backend must expose. Any
// method may fail; the Consumer propagates failures to its caller
// (spec §7 PersistenceFailure) rather than treating the operation as
// having completed.
type Adapter interface {
	// Open prepares the backing store for use. Called once before any
	// other method.
	Open(config map[string]any) error

	// Close releases resources. Idempotent.
	Close() error

	PersistConsumerOffset(consumerID string, partition int32, offset int64) error
	RetrieveConsumerOffset(consumerID string, partition int32) (offset int64, found bool, err error)
	ClearConsumerOffset(consumerID string, partition int32) error

	// RemoveConsumerState clears every persisted offset for consumerID,
	// including partitions no longer assigned to it.
	RemoveConsumerState(consumerID string) error

	PersistSidelineRequest(req types.SidelineRequest) error
	RetrieveSidelineRequest(id string) (types.SidelineRequest, bool, error)
	ClearSidelineRequest(id string) error
	ListSidelineRequests() ([]types.SidelineRequest, error)
}
