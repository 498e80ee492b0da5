// Package assign implements the sideline consumer's own static partition
// sharding: a pure function over a sorted partition list, independent of
// any broker-side consumer-group protocol (spec §1, §4.4).
package assign

import "fmt"

// Assign partitions a sorted ascending partition-index slice into
// numConsumers contiguous ranges as equal in size as possible, with any
// remainder distributed to the lowest-indexed consumers, and returns the
// subset owned by consumerIndex.
//
// Example: 5 partitions, 2 consumers -> index 0 owns {0,1,2}, index 1
// owns {3,4}. 4 partitions, 2 consumers -> index 0 owns {0,1}, index 1
// owns {2,3}.
func Assign(sortedPartitions []int32, numConsumers, consumerIndex int) ([]int32, error) {
	if numConsumers < 1 {
		return nil, fmt.Errorf("assign: number_of_consumers must be >= 1, got %d", numConsumers)
	}
	if consumerIndex < 0 || consumerIndex >= numConsumers {
		return nil, fmt.Errorf("assign: index_of_consumer %d out of range [0,%d)", consumerIndex, numConsumers)
	}

	n := len(sortedPartitions)
	base := n / numConsumers
	extra := n % numConsumers

	// Consumers [0, extra) get one additional partition each.
	start := consumerIndex*base + min(consumerIndex, extra)
	size := base
	if consumerIndex < extra {
		size++
	}

	owned := make([]int32, size)
	copy(owned, sortedPartitions[start:start+size])
	return owned, nil
}
