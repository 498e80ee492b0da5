// Package types holds the data model shared across the sideline consumer
// core: partition identity, the offset sentinel, the record shape handed
// to callers, and the sideline-request metadata stored alongside offsets.
package types

import "fmt"

// NoOffset is the sentinel meaning "nothing has ever been finished" for a
// partition. It sits one below the earliest possible real offset (0), so
// NoOffset+1 always yields a valid seek target.
const NoOffset int64 = -1

// PartitionKey identifies a single partition of a single topic.
type PartitionKey struct {
	Topic     string
	Partition int32
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%s-%d", k.Topic, k.Partition)
}

// Record is a single message read from a partition, tagged with the
// offset it occupies in the source log.
type Record struct {
	Partition PartitionKey
	Offset    int64
	Key       []byte
	Value     []byte
}
