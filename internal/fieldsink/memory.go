package fieldsink

import (
	"context"
	"sync"
)

// Memory is an in-process Sink for embedded deployments and tests.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]map[string]string

	// FailWith, when set, makes every write fail. Tests use it to
	// exercise the collector's error paths.
	FailWith error
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]map[string]string)}
}

func (m *Memory) Set(ctx context.Context, sessionID, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	fields, ok := m.sessions[sessionID]
	if !ok {
		fields = make(map[string]string)
		m.sessions[sessionID] = fields
	}
	fields[field] = value
	return nil
}

func (m *Memory) SetAll(ctx context.Context, sessionID string, fields map[string]string) error {
	for name, value := range fields {
		if err := m.Set(ctx, sessionID, name, value); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, sessionID, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.sessions[sessionID][field]
	return value, ok, nil
}

func (m *Memory) GetAll(ctx context.Context, sessionID string) (map[string]string, error) {
	return m.Fields(sessionID), nil
}

// Fields returns a copy of everything stored for a session.
func (m *Memory) Fields(sessionID string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.sessions[sessionID]))
	for name, value := range m.sessions[sessionID] {
		out[name] = value
	}
	return out
}

func (m *Memory) Close() {}
