package store

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps documents in process memory. Used in tests and when
// STORE_DRIVER=memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string][]byte),
	}
}

func (m *MemoryStore) Get(_ context.Context, collection, id string, out any) error {
	m.mu.RLock()
	raw, ok := m.data[collection][id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (m *MemoryStore) Set(_ context.Context, collection, id string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[collection] == nil {
		m.data[collection] = make(map[string][]byte)
	}
	m.data[collection][id] = raw
	return nil
}

func (m *MemoryStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	merged, err := mergeFields(raw, fields)
	if err != nil {
		return err
	}
	m.data[collection][id] = merged
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[collection], id)
	return nil
}

func (m *MemoryStore) QueryByField(_ context.Context, collection, field string, value any) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []Document
	for id, raw := range m.data[collection] {
		if matchField(raw, field, value) {
			docs = append(docs, Document{ID: id, Data: copyBytes(raw)})
		}
	}
	sortDocuments(docs)
	return docs, nil
}

func (m *MemoryStore) List(_ context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]Document, 0, len(m.data[collection]))
	for id, raw := range m.data[collection] {
		docs = append(docs, Document{ID: id, Data: copyBytes(raw)})
	}
	sortDocuments(docs)
	return docs, nil
}

func (m *MemoryStore) PushID(string) string { return newID() }

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
