package eventlog

import (
	"context"
	"sync"
)

// Store is the durable side of the event log. Implementations must make
// SaveBatch durable before returning so deletion of covered raw events is safe.
type Store interface {
	AppendEvents(ctx context.Context, events []GameEvent) error
	// LoadEvents returns raw events with fromTick <= tick <= toTick, ordered.
	LoadEvents(ctx context.Context, shard string, fromTick, toTick uint64) ([]GameEvent, error)
	// DeleteEvents removes the raw events with the given ids.
	DeleteEvents(ctx context.Context, shard string, ids []string) (int, error)
	SaveBatch(ctx context.Context, b Batch) error
	// LoadBatches returns batches overlapping [fromTick, toTick], ordered by FromTick.
	LoadBatches(ctx context.Context, shard string, fromTick, toTick uint64) ([]Batch, error)
	// LastBatchEnd returns the highest ToTick of any batch for shard.
	LastBatchEnd(ctx context.Context, shard string) (uint64, bool, error)
	// MaxSeq returns the highest sequence number stored for shard, raw or batched.
	MaxSeq(ctx context.Context, shard string) (uint64, error)
}

// MemoryStore is an in-process Store used by tests and ephemeral shards.
type MemoryStore struct {
	mu      sync.Mutex
	events  map[string][]GameEvent
	batches map[string][]Batch
	maxSeq  map[string]uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:  make(map[string][]GameEvent),
		batches: make(map[string][]Batch),
		maxSeq:  make(map[string]uint64),
	}
}

func (m *MemoryStore) AppendEvents(_ context.Context, events []GameEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		m.events[e.Shard] = append(m.events[e.Shard], e)
		if e.Seq > m.maxSeq[e.Shard] {
			m.maxSeq[e.Shard] = e.Seq
		}
	}
	return nil
}

func (m *MemoryStore) LoadEvents(_ context.Context, shard string, fromTick, toTick uint64) ([]GameEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []GameEvent
	for _, e := range m.events[shard] {
		if e.Tick >= fromTick && e.Tick <= toTick {
			out = append(out, e)
		}
	}
	Sort(out)
	return out, nil
}

func (m *MemoryStore) DeleteEvents(_ context.Context, shard string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.events[shard][:0]
	removed := 0
	for _, e := range m.events[shard] {
		if drop[e.ID] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.events[shard] = kept
	return removed, nil
}

func (m *MemoryStore) SaveBatch(_ context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[b.Shard] = append(m.batches[b.Shard], b)
	return nil
}

func (m *MemoryStore) LoadBatches(_ context.Context, shard string, fromTick, toTick uint64) ([]Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Batch
	for _, b := range m.batches[shard] {
		if b.Overlaps(fromTick, toTick) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) LastBatchEnd(_ context.Context, shard string) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var end uint64
	found := false
	for _, b := range m.batches[shard] {
		if !found || b.ToTick > end {
			end = b.ToTick
			found = true
		}
	}
	return end, found, nil
}

func (m *MemoryStore) MaxSeq(_ context.Context, shard string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSeq[shard], nil
}

// RawCount returns the number of raw events held for shard.
func (m *MemoryStore) RawCount(shard string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events[shard])
}
