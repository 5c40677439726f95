package assessment

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. Values are copied on the way
// in and out so callers cannot alias stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*AssessmentRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*AssessmentRecord)}
}

func (m *MemoryStore) Get(_ context.Context, patientID string) (*AssessmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[patientID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, rec *AssessmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.PatientID] = rec.Clone()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*AssessmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*AssessmentRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}
