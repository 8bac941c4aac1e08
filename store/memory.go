package store

import (
	"sync"

	"github.com/jd-code76/provinent-scripture-study-sub000/state"
)

type memoryBackend struct {
	mu       sync.Mutex
	local    map[string][]byte
	snapshot *state.Snapshot
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{local: map[string][]byte{}}
}

func (m *memoryBackend) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.local[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memoryBackend) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local[key] = append([]byte(nil), value...)
	return nil
}

func (m *memoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.local, key)
	return nil
}

func (m *memoryBackend) LoadSnapshot() (*state.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil, ErrNotFound
	}
	return m.snapshot.Clone(), nil
}

func (m *memoryBackend) SaveSnapshot(s *state.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = s.Clone()
	return nil
}

func (m *memoryBackend) Close() error {
	return nil
}
