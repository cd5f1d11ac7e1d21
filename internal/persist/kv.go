// Package persist stores overlay snapshots in a key/value store,
// wrapped in a versioned envelope keyed by model signature.
//
// The KV abstraction keeps the envelope logic testable without any
// backend and portable across the supported ones (memory, files,
// SQLite, Postgres). Persistence is best-effort by design: the
// in-memory overlay store is always authoritative, and a failed write
// only means the data may not survive a restart.
package persist

import "sync"

// KV is the minimal key/value capability the persistence layer needs.
type KV interface {
	// Get returns the value for key, with ok=false when absent.
	Get(key string) (value string, ok bool, err error)
	// Set writes a value under key, replacing any previous value.
	Set(key, value string) error
	// Delete removes a key; deleting an absent key is not an error.
	Delete(key string) error
}

// MemoryKV is an in-process KV used in tests and as the "memory"
// backend for throwaway sessions.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys returns a snapshot of all stored keys, for tests.
func (m *MemoryKV) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}
