package offset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/downfa11-org/sideline-consumer/pkg/types"
)

// State is an immutable snapshot of every owned partition's last-finished
// offset, produced by flushing a set of Managers. Two States with the
// same entries compare equal regardless of how they were built.
type State struct {
	offsets map[types.PartitionKey]int64
}

// NewState builds a State from a plain map. The map is copied; mutating
// the caller's map afterward does not affect the returned State.
func NewState(offsets map[types.PartitionKey]int64) State {
	cp := make(map[types.PartitionKey]int64, len(offsets))
	for k, v := range offsets {
		cp[k] = v
	}
	return State{offsets: cp}
}

// Get returns the last-finished offset for key and whether it was present.
func (s State) Get(key types.PartitionKey) (int64, bool) {
	v, ok := s.offsets[key]
	return v, ok
}

// Contains reports whether key has an entry in this snapshot.
func (s State) Contains(key types.PartitionKey) bool {
	_, ok := s.offsets[key]
	return ok
}

// Size returns the number of partitions captured in this snapshot.
func (s State) Size() int {
	return len(s.offsets)
}

// Iter calls fn for every entry in key-sorted order, for deterministic
// iteration (used by tests and by flush-to-adapter loops).
func (s State) Iter(fn func(types.PartitionKey, int64)) {
	keys := make([]types.PartitionKey, 0, len(s.offsets))
	for k := range s.offsets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Topic != keys[j].Topic {
			return keys[i].Topic < keys[j].Topic
		}
		return keys[i].Partition < keys[j].Partition
	})
	for _, k := range keys {
		fn(k, s.offsets[k])
	}
}

// AsMap returns a defensive copy of the snapshot as a plain map.
func (s State) AsMap() map[types.PartitionKey]int64 {
	cp := make(map[types.PartitionKey]int64, len(s.offsets))
	for k, v := range s.offsets {
		cp[k] = v
	}
	return cp
}

// Equal reports structural equality: same keys, same offsets.
func (s State) Equal(other State) bool {
	if len(s.offsets) != len(other.offsets) {
		return false
	}
	for k, v := range s.offsets {
		if ov, ok := other.offsets[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (s State) String() string {
	var b strings.Builder
	b.WriteString("ConsumerState{")
	first := true
	s.Iter(func(k types.PartitionKey, v int64) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s=%d", k, v)
	})
	b.WriteString("}")
	return b.String()
}
