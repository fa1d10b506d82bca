// Package localstore persists widget session state across page reloads.
// It is the stand-in for the browser's localStorage: a flat key→blob map
// with last-write-wins semantics and no coordination across concurrent
// widget instances sharing a key.
package localstore

import "sync"

// Default storage keys. One per widget variant, matching the fields the
// host reads back on restore.
const (
	KeyChatLogs        = "chat-logs"
	KeyMinimalChatLogs = "minimal-chat-logs"
)

// Store is a key→blob store for serialized session logs. Implementations
// must tolerate being called from timer goroutines. Save overwrites
// unconditionally; there is no merge.
type Store interface {
	Save(key string, data []byte) error
	Load(key string) ([]byte, error)
	Delete(key string) error
}

// Memory is an in-memory Store. FailWith, when set, is returned from Save
// so tests can simulate quota-exceeded or disabled storage.
type Memory struct {
	mu       sync.Mutex
	data     map[string][]byte
	FailWith error
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[key] = cp
	return nil
}

func (m *Memory) Load(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(d))
	copy(cp, d)
	return cp, nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
