// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	turns  map[string]*Turn        // keyed by turn ID
	usage  map[string][]*TokenUsage // keyed by turn ID
	closed bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		turns: make(map[string]*Turn),
		usage: make(map[string][]*TokenUsage),
	}
}

// StartTurn stores a new turn in the streaming state.
func (m *MockStore) StartTurn(ctx context.Context, turn *Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.turns[turn.ID]; exists {
		return ErrDuplicateTurn
	}

	// Make a copy to avoid external modification
	t := *turn
	t.Status = TurnStreaming
	m.turns[t.ID] = &t
	turn.Status = TurnStreaming
	return nil
}

// FinishTurn records a turn's outcome.
func (m *MockStore) FinishTurn(ctx context.Context, id string, outcome TurnOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.turns[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = outcome.Status
	t.Frames = outcome.Frames
	t.Error = outcome.Error
	endedAt := outcome.EndedAt
	t.EndedAt = &endedAt
	return nil
}

// GetTurn retrieves a turn by ID.
func (m *MockStore) GetTurn(ctx context.Context, id string) (*Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.turns[id]
	if !ok {
		return nil, ErrNotFound
	}
	turn := *t
	return &turn, nil
}

// ListTurns returns the most recent turns first.
func (m *MockStore) ListTurns(ctx context.Context, limit int) ([]*Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := make([]*Turn, 0, len(m.turns))
	for _, t := range m.turns {
		turn := *t
		turns = append(turns, &turn)
	}
	sort.Slice(turns, func(i, j int) bool {
		return turns[i].StartedAt.After(turns[j].StartedAt)
	})

	if limit > 0 && len(turns) > limit {
		turns = turns[:limit]
	}
	return turns, nil
}

// SaveUsage stores a token usage record.
func (m *MockStore) SaveUsage(ctx context.Context, usage *TokenUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := *usage
	m.usage[u.TurnID] = append(m.usage[u.TurnID], &u)
	return nil
}

// GetTurnUsage retrieves all usage records for a turn.
func (m *MockStore) GetTurnUsage(ctx context.Context, turnID string) ([]*TokenUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var usages []*TokenUsage
	for _, u := range m.usage[turnID] {
		usage := *u
		usages = append(usages, &usage)
	}
	return usages, nil
}

// GetUsageStats aggregates turns and usage started at or after since.
func (m *MockStore) GetUsageStats(ctx context.Context, since *time.Time) (*UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats UsageStats
	for id, t := range m.turns {
		if since != nil && t.StartedAt.Before(*since) {
			continue
		}
		stats.Turns++
		if t.Status == TurnCompleted {
			stats.CompletedTurns++
		}
		for _, u := range m.usage[id] {
			stats.TotalInputTokens += u.InputTokens
			stats.TotalOutputTokens += u.OutputTokens
			stats.TotalTokens += u.TotalTokens
		}
	}
	return &stats, nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
