package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/downfa11-org/sideline-consumer/pkg/broker/fake"
	"github.com/downfa11-org/sideline-consumer/pkg/clock"
	"github.com/downfa11-org/sideline-consumer/pkg/persistence"
	"github.com/downfa11-org/sideline-consumer/pkg/types"
)

// These tests exercise the six end-to-end scenarios from spec §8 against
// the fake broker and in-memory persistence adapter, in the Given/When/Then
// style the teacher's test/e2e fixtures use.

func newTestConsumer(t *testing.T, b *fake.Broker, store persistence.Adapter, clk clock.Clock, numConsumers, index int) *Consumer {
	t.Helper()
	cfg := &Config{
		BrokerHosts:        []string{"fake:0"},
		ConsumerID:         "test-consumer",
		Topic:              "orders",
		NumberOfConsumers:  numConsumers,
		IndexOfConsumer:    index,
		TupleBufferMaxSize: 1000,
		AutoCommitInterval: 15 * time.Second,
	}
	return New(cfg, b, store, clk)
}

func drainAll(t *testing.T, c *Consumer, ctx context.Context) []types.Record {
	t.Helper()
	var out []types.Record
	for {
		r, err := c.NextRecord(ctx)
		if err != nil {
			t.Fatalf("NextRecord: %v", err)
		}
		if r == nil {
			return out
		}
		out = append(out, *r)
	}
}

// S1. Single partition, in-order ack.
func TestScenarioS1_SinglePartitionInOrderAck(t *testing.T) {
	ctx := context.Background()
	b := fake.New()
	b.Produce("orders", 0, 5)

	store := persistence.NewMemory()
	c := newTestConsumer(t, b, store, clock.System{}, 1, 0)
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	for i := 0; i < 5; i++ {
		r, err := c.NextRecord(ctx)
		if err != nil {
			t.Fatalf("NextRecord: %v", err)
		}
		if r == nil {
			t.Fatalf("expected record %d, got none", i)
		}
		if err := c.CommitRecord(*r); err != nil {
			t.Fatalf("CommitRecord: %v", err)
		}
	}

	state, err := c.FlushConsumerState()
	if err != nil {
		t.Fatalf("FlushConsumerState: %v", err)
	}
	got, ok := state.Get(types.PartitionKey{Topic: "orders", Partition: 0})
	if !ok || got != 4 {
		t.Fatalf("expected (orders,0) -> 4, got %d (present=%v)", got, ok)
	}
}

// S2. Single partition, out-of-order ack.
func TestScenarioS2_SinglePartitionOutOfOrderAck(t *testing.T) {
	ctx := context.Background()
	b := fake.New()
	b.Produce("orders", 0, 9)

	store := persistence.NewMemory()
	c := newTestConsumer(t, b, store, clock.System{}, 1, 0)
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	records := drainAll(t, c, ctx)
	if len(records) != 9 {
		t.Fatalf("expected 9 records, got %d", len(records))
	}

	pk := types.PartitionKey{Topic: "orders", Partition: 0}
	state, err := c.CurrentState()
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if got, _ := state.Get(pk); got != types.NoOffset {
		t.Fatalf("expected last_finished -1 before any ack, got %d", got)
	}

	ackOrder := []int64{2, 1, 0, 3, 4, 5, 7, 8, 6}
	wantAfter := []int64{-1, -1, 2, 3, 4, 5, 5, 5, 8}
	for i, o := range ackOrder {
		if err := c.CommitOffset(pk, o); err != nil {
			t.Fatalf("CommitOffset(%d): %v", o, err)
		}
		state, err := c.CurrentState()
		if err != nil {
			t.Fatalf("CurrentState: %v", err)
		}
		got, _ := state.Get(pk)
		if got != wantAfter[i] {
			t.Fatalf("after acking %d: expected last_finished=%d, got %d", o, wantAfter[i], got)
		}
	}
}

// S3. Multi-partition interleaved acks.
func TestScenarioS3_MultiPartitionInterleavedAcks(t *testing.T) {
	ctx := context.Background()
	b := fake.New()
	b.Produce("orders", 0, 5)
	b.Produce("orders", 1, 5)

	store := persistence.NewMemory()
	c := newTestConsumer(t, b, store, clock.System{}, 1, 0)
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	records := drainAll(t, c, ctx)
	if len(records) != 10 {
		t.Fatalf("expected 10 records, got %d", len(records))
	}

	p0 := types.PartitionKey{Topic: "orders", Partition: 0}
	p1 := types.PartitionKey{Topic: "orders", Partition: 1}

	type ack struct {
		key types.PartitionKey
		off int64
	}
	acks := []ack{
		{p0, 1}, {p0, 0}, {p0, 2},
		{p1, 0}, {p1, 2}, {p1, 0}, {p1, 1}, {p1, 3},
	}
	wantP0 := []int64{-1, 1, 2, 2, 2, 2, 2, 2}
	wantP1 := []int64{-1, -1, -1, 0, 0, 0, 2, 3}

	for i, a := range acks {
		if err := c.CommitOffset(a.key, a.off); err != nil {
			t.Fatalf("CommitOffset(%s,%d): %v", a.key, a.off, err)
		}
		state, err := c.CurrentState()
		if err != nil {
			t.Fatalf("CurrentState: %v", err)
		}
		gotP0, _ := state.Get(p0)
		gotP1, _ := state.Get(p1)
		if gotP0 != wantP0[i] || gotP1 != wantP1[i] {
			t.Fatalf("after ack #%d (%s@%d): expected (%d,%d), got (%d,%d)",
				i, a.key, a.off, wantP0[i], wantP1[i], gotP0, gotP1)
		}
	}
}

// S4. Consumer-group sharding, 5 partitions / 2 consumers.
func TestScenarioS4_ConsumerGroupSharding(t *testing.T) {
	ctx := context.Background()
	b := fake.New()
	for p := int32(0); p < 5; p++ {
		if p%2 == 0 {
			b.Produce("orders", p, 10)
		} else {
			b.Produce("orders", p, 11)
		}
	}

	store0 := persistence.NewMemory()
	c0 := newTestConsumer(t, b, store0, clock.System{}, 2, 0)
	if err := c0.Open(ctx); err != nil {
		t.Fatalf("Open(index 0): %v", err)
	}
	defer c0.Close()

	assigned0, err := c0.GetAssignedPartitions()
	if err != nil {
		t.Fatalf("GetAssignedPartitions: %v", err)
	}
	wantAssigned0 := []types.PartitionKey{
		{Topic: "orders", Partition: 0},
		{Topic: "orders", Partition: 1},
		{Topic: "orders", Partition: 2},
	}
	assertPartitionSet(t, assigned0, wantAssigned0)

	for _, r := range drainAll(t, c0, ctx) {
		if err := c0.CommitRecord(r); err != nil {
			t.Fatalf("CommitRecord: %v", err)
		}
	}
	state0, err := c0.FlushConsumerState()
	if err != nil {
		t.Fatalf("FlushConsumerState(index 0): %v", err)
	}
	wantState0 := map[int32]int64{0: 9, 1: 10, 2: 9}
	for p, want := range wantState0 {
		got, ok := state0.Get(types.PartitionKey{Topic: "orders", Partition: p})
		if !ok || got != want {
			t.Fatalf("index 0 partition %d: expected %d, got %d (present=%v)", p, want, got, ok)
		}
	}
	for _, p := range []int32{3, 4} {
		if _, found, _ := store0.RetrieveConsumerOffset("test-consumer", p); found {
			t.Fatalf("index 0 should not persist partition %d", p)
		}
	}

	// Second shard runs against its own persistence adapter — each
	// Consumer owns its store exclusively (spec §5).
	store1 := persistence.NewMemory()
	c1 := newTestConsumer(t, b, store1, clock.System{}, 2, 1)
	if err := c1.Open(ctx); err != nil {
		t.Fatalf("Open(index 1): %v", err)
	}
	defer c1.Close()

	assigned1, err := c1.GetAssignedPartitions()
	if err != nil {
		t.Fatalf("GetAssignedPartitions: %v", err)
	}
	wantAssigned1 := []types.PartitionKey{
		{Topic: "orders", Partition: 3},
		{Topic: "orders", Partition: 4},
	}
	assertPartitionSet(t, assigned1, wantAssigned1)

	for _, r := range drainAll(t, c1, ctx) {
		if err := c1.CommitRecord(r); err != nil {
			t.Fatalf("CommitRecord: %v", err)
		}
	}
	state1, err := c1.FlushConsumerState()
	if err != nil {
		t.Fatalf("FlushConsumerState(index 1): %v", err)
	}
	wantState1 := map[int32]int64{3: 10, 4: 9}
	for p, want := range wantState1 {
		got, ok := state1.Get(types.PartitionKey{Topic: "orders", Partition: p})
		if !ok || got != want {
			t.Fatalf("index 1 partition %d: expected %d, got %d (present=%v)", p, want, got, ok)
		}
	}
	for _, p := range []int32{0, 1, 2} {
		if _, found, _ := store1.RetrieveConsumerOffset("test-consumer", p); found {
			t.Fatalf("index 1 should not persist partition %d", p)
		}
	}
}

func assertPartitionSet(t *testing.T, got, want []types.PartitionKey) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

// S5. Invalid persisted offset recovery.
func TestScenarioS5_InvalidPersistedOffsetRecovery(t *testing.T) {
	ctx := context.Background()
	b := fake.New()
	b.Produce("orders", 0, 4)
	b.Produce("orders", 1, 4)

	store := persistence.NewMemory()
	if err := store.PersistConsumerOffset("test-consumer", 0, 1); err != nil {
		t.Fatalf("seed partition 0: %v", err)
	}
	if err := store.PersistConsumerOffset("test-consumer", 1, 20); err != nil {
		t.Fatalf("seed partition 1: %v", err)
	}

	c := newTestConsumer(t, b, store, clock.System{}, 1, 0)
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	p0 := types.PartitionKey{Topic: "orders", Partition: 0}
	p1 := types.PartitionKey{Topic: "orders", Partition: 1}

	state, err := c.CurrentState()
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if got, _ := state.Get(p0); got != 1 {
		t.Fatalf("partition 0: expected current state 1, got %d", got)
	}
	if got, _ := state.Get(p1); got != -1 {
		t.Fatalf("partition 1: expected recovered current state -1, got %d", got)
	}

	records := drainAll(t, c, ctx)
	wantOffsets := map[types.PartitionKey][]int64{
		p0: {2, 3},
		p1: {0, 1, 2, 3},
	}
	gotOffsets := map[types.PartitionKey][]int64{}
	for _, r := range records {
		gotOffsets[r.Partition] = append(gotOffsets[r.Partition], r.Offset)
	}
	for pk, want := range wantOffsets {
		got := gotOffsets[pk]
		if len(got) != len(want) {
			t.Fatalf("%s: expected offsets %v, got %v", pk, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: expected offsets %v, got %v", pk, want, got)
			}
		}
	}
}

// S6. Timed flush with injected clock.
func TestScenarioS6_TimedFlushWithInjectedClock(t *testing.T) {
	ctx := context.Background()
	b := fake.New()
	b.Produce("orders", 0, 1)

	store := persistence.NewMemory()
	clk := clock.NewManual(time.Unix(0, 0))
	cfg := &Config{
		BrokerHosts:        []string{"fake:0"},
		ConsumerID:         "test-consumer",
		Topic:              "orders",
		NumberOfConsumers:  1,
		IndexOfConsumer:    0,
		TupleBufferMaxSize: 1000,
		AutoCommit:         true,
		AutoCommitInterval: 1000 * time.Millisecond,
	}
	c := New(cfg, b, store, clk)
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	state, err := c.TimedFlushConsumerState()
	if err != nil {
		t.Fatalf("TimedFlushConsumerState: %v", err)
	}
	if state != nil {
		t.Fatalf("expected no flush before the interval elapses, got %v", state)
	}

	clk.Advance(2000 * time.Millisecond)
	state, err = c.TimedFlushConsumerState()
	if err != nil {
		t.Fatalf("TimedFlushConsumerState: %v", err)
	}
	if state == nil {
		t.Fatalf("expected a flush after advancing past the interval")
	}

	state, err = c.TimedFlushConsumerState()
	if err != nil {
		t.Fatalf("TimedFlushConsumerState: %v", err)
	}
	if state != nil {
		t.Fatalf("expected no additional flush without further clock advance, got %v", state)
	}

	clk.Advance(1500 * time.Millisecond)
	state, err = c.TimedFlushConsumerState()
	if err != nil {
		t.Fatalf("TimedFlushConsumerState: %v", err)
	}
	if state == nil {
		t.Fatalf("expected exactly one more flush after advancing another 1500ms")
	}
}
