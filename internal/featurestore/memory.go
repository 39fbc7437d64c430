package featurestore

import (
	"context"
	"sort"
	"sync"

	"github.com/mbd888/drivesim/internal/features"
)

// MemoryStore is an in-memory store for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[features.Key]features.Record
	runs    map[features.Key]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[features.Key]features.Record),
		runs:    make(map[features.Key]string),
	}
}

func (m *MemoryStore) Write(_ context.Context, runID string, recs []features.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range recs {
		m.records[r.Key()] = r
		m.runs[r.Key()] = runID
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, driverID, month string) (*features.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[features.Key{DriverID: driverID, Month: month}]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) ListByDriver(_ context.Context, driverID string) ([]features.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []features.Record
	for k, r := range m.records {
		if k.DriverID == driverID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// RunID returns the run that last wrote the driver-month.
func (m *MemoryStore) RunID(driverID, month string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs[features.Key{DriverID: driverID, Month: month}]
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
