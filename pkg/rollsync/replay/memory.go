package replay

import (
	"sort"
	"sync"

	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

// MemoryStore is an in-memory replay store for testing and short-lived
// sessions. Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]map[session.Frame]Record
	closed bool
}

// NewMemoryStore creates a new in-memory replay store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]map[session.Frame]Record),
	}
}

// Append implements Store.
func (m *MemoryStore) Append(rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if m.runs[rec.RunID] == nil {
		m.runs[rec.RunID] = make(map[session.Frame]Record)
	}
	m.runs[rec.RunID][rec.Frame] = rec.clone()
	return nil
}

// List implements Store.
func (m *MemoryStore) List(runID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	frames := m.runs[runID]
	records := make([]Record, 0, len(frames))
	for _, rec := range frames {
		records = append(records, rec.clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Frame < records[j].Frame })
	return records, nil
}

// Runs implements Store.
func (m *MemoryStore) Runs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
