package offset_test

import (
	"testing"

	"github.com/downfa11-org/sideline-consumer/pkg/offset"
	"github.com/downfa11-org/sideline-consumer/pkg/types"
)

func TestState_GetContainsSize(t *testing.T) {
	p0 := types.PartitionKey{Topic: "orders", Partition: 0}
	p1 := types.PartitionKey{Topic: "orders", Partition: 1}
	s := offset.NewState(map[types.PartitionKey]int64{p0: 4, p1: types.NoOffset})

	if v, ok := s.Get(p0); !ok || v != 4 {
		t.Fatalf("Get(p0) = %d, %v; want 4, true", v, ok)
	}
	if !s.Contains(p1) {
		t.Fatalf("expected Contains(p1)")
	}
	if s.Contains(types.PartitionKey{Topic: "orders", Partition: 2}) {
		t.Fatalf("unexpected Contains for unknown partition")
	}
	if s.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", s.Size())
	}
}

func TestState_EqualIsStructural(t *testing.T) {
	p0 := types.PartitionKey{Topic: "orders", Partition: 0}
	a := offset.NewState(map[types.PartitionKey]int64{p0: 4})
	b := offset.NewState(map[types.PartitionKey]int64{p0: 4})
	c := offset.NewState(map[types.PartitionKey]int64{p0: 5})

	if !a.Equal(b) {
		t.Fatalf("expected equal states built from equivalent maps")
	}
	if a.Equal(c) {
		t.Fatalf("expected unequal states for differing offsets")
	}
}

func TestState_IsImmutableSnapshot(t *testing.T) {
	p0 := types.PartitionKey{Topic: "orders", Partition: 0}
	src := map[types.PartitionKey]int64{p0: 1}
	s := offset.NewState(src)
	src[p0] = 99 // mutating the caller's map must not affect the snapshot
	if v, _ := s.Get(p0); v != 1 {
		t.Fatalf("State was not defensively copied, got %d", v)
	}

	m := s.AsMap()
	m[p0] = 42 // mutating the returned copy must not affect the snapshot
	if v, _ := s.Get(p0); v != 1 {
		t.Fatalf("AsMap() leaked internal storage, got %d", v)
	}
}

func TestState_IterIsKeySorted(t *testing.T) {
	p2 := types.PartitionKey{Topic: "orders", Partition: 2}
	p0 := types.PartitionKey{Topic: "orders", Partition: 0}
	p1 := types.PartitionKey{Topic: "orders", Partition: 1}
	s := offset.NewState(map[types.PartitionKey]int64{p2: 2, p0: 0, p1: 1})

	var got []int32
	s.Iter(func(k types.PartitionKey, v int64) {
		got = append(got, k.Partition)
	})
	want := []int32{0, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Iter order = %v, want %v", got, want)
		}
	}
}
