package persistence

import (
	"sync"

	"github.com/downfa11-org/sideline-consumer/pkg/types"
)

// partitionKey is the in-process lookup key for a (consumerID, partition)
// pair — distinct from types.PartitionKey, which also carries the topic;
// offsets here are already scoped per consumer id.
type partitionKey struct {
	consumerID string
	partition  int32
}

// Memory is the reference Adapter used by tests and by embedders that
// don't need durability across restarts. It never fails and loses all
// state on Close, exactly as spec §4.3 describes for the in-memory
// implementation.
type Memory struct {
	mu       sync.Mutex
	offsets  map[partitionKey]int64
	sideline map[string]types.SidelineRequest
}

// NewMemory returns a ready-to-use in-memory Adapter. Its maps are
// allocated here, so it works whether or not Open is called first.
func NewMemory() *Memory {
	return &Memory{
		offsets:  make(map[partitionKey]int64),
		sideline: make(map[string]types.SidelineRequest),
	}
}

func (m *Memory) Open(config map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offsets == nil {
		m.offsets = make(map[partitionKey]int64)
	}
	if m.sideline == nil {
		m.sideline = make(map[string]types.SidelineRequest)
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets = make(map[partitionKey]int64)
	m.sideline = make(map[string]types.SidelineRequest)
	return nil
}

func (m *Memory) PersistConsumerOffset(consumerID string, partition int32, offset int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets[partitionKey{consumerID, partition}] = offset
	return nil
}

func (m *Memory) RetrieveConsumerOffset(consumerID string, partition int32) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.offsets[partitionKey{consumerID, partition}]
	return v, ok, nil
}

func (m *Memory) ClearConsumerOffset(consumerID string, partition int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.offsets, partitionKey{consumerID, partition})
	return nil
}

func (m *Memory) RemoveConsumerState(consumerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.offsets {
		if k.consumerID == consumerID {
			delete(m.offsets, k)
		}
	}
	return nil
}

func (m *Memory) PersistSidelineRequest(req types.SidelineRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sideline[req.ID] = req
	return nil
}

func (m *Memory) RetrieveSidelineRequest(id string) (types.SidelineRequest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sideline[id]
	return v, ok, nil
}

func (m *Memory) ClearSidelineRequest(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sideline, id)
	return nil
}

func (m *Memory) ListSidelineRequests() ([]types.SidelineRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.SidelineRequest, 0, len(m.sideline))
	for _, v := range m.sideline {
		out = append(out, v)
	}
	return out, nil
}

var _ Adapter = (*Memory)(nil)
