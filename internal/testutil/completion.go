package testutil

import (
	"context"
	"sync"

	"github.com/kapa-moon/creativity-ai/internal/completion"
)

// MockCompletion is a scripted completion.Client.
type MockCompletion struct {
	mu      sync.Mutex
	Reply   string
	Err     error
	Prompts []string

	Calls [][]completion.Turn
}

func (m *MockCompletion) Complete(ctx context.Context, history []completion.Turn, message string) (string, completion.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, append([]completion.Turn(nil), history...))
	if m.Err != nil {
		return "", completion.Usage{}, m.Err
	}
	return m.Reply, completion.Usage{TotalTokens: 42}, nil
}

func (m *MockCompletion) QuickPrompts(ctx context.Context, history []completion.Turn) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Prompts == nil {
		return completion.FallbackQuickPrompts(), nil
	}
	return m.Prompts, nil
}
