package history

import (
	"context"
	"sync"
	"time"

	"HealthSentinel/internal/model"
)

// MemoryStore keeps snapshots in a single arena with a per-customer index of
// arena positions. Used in tests and when no database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	arena  []model.HealthSnapshot
	index  map[string][]int
	alerts map[string][]model.Alert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index:  make(map[string][]int),
		alerts: make(map[string][]model.Alert),
	}
}

func (m *MemoryStore) Append(_ context.Context, snap *model.HealthSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx := m.index[snap.CustomerID]; len(idx) > 0 {
		if !snap.ComputedAt.After(m.arena[idx[len(idx)-1]].ComputedAt) {
			return ErrOutOfOrder
		}
	}
	m.arena = append(m.arena, cloneSnapshot(*snap))
	m.index[snap.CustomerID] = append(m.index[snap.CustomerID], len(m.arena)-1)
	return nil
}

func (m *MemoryStore) History(_ context.Context, customerID string, since time.Time) ([]model.HealthSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.HealthSnapshot
	for _, i := range m.index[customerID] {
		if !m.arena[i].ComputedAt.Before(since) {
			out = append(out, cloneSnapshot(m.arena[i]))
		}
	}
	return out, nil
}

func (m *MemoryStore) Latest(_ context.Context, customerID string) (*model.HealthSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.index[customerID]
	if len(idx) == 0 {
		return nil, ErrNotFound
	}
	s := cloneSnapshot(m.arena[idx[len(idx)-1]])
	return &s, nil
}

func (m *MemoryStore) SaveAlerts(_ context.Context, alerts []model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range alerts {
		m.alerts[a.CustomerID] = append(m.alerts[a.CustomerID], a)
	}
	return nil
}

func (m *MemoryStore) RecentAlerts(_ context.Context, customerID string, since time.Time) ([]model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Alert
	for _, a := range m.alerts[customerID] {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Prune compacts the arena and rebuilds the index.
func (m *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	arena := make([]model.HealthSnapshot, 0, len(m.arena))
	index := make(map[string][]int, len(m.index))
	for _, s := range m.arena {
		if s.ComputedAt.Before(before) {
			removed++
			continue
		}
		arena = append(arena, s)
		index[s.CustomerID] = append(index[s.CustomerID], len(arena)-1)
	}
	m.arena, m.index = arena, index

	for id, list := range m.alerts {
		kept := list[:0]
		for _, a := range list {
			if a.CreatedAt.Before(before) {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		if len(kept) == 0 {
			delete(m.alerts, id)
			continue
		}
		m.alerts[id] = kept
	}
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneSnapshot(s model.HealthSnapshot) model.HealthSnapshot {
	s.Breakdown = append([]model.DimensionScore(nil), s.Breakdown...)
	return s
}
