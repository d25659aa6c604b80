package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/homedash/homedash/pkg/types"
)

const defaultMemoryLimit = 10000

// MemoryProvider keeps the action log in process. The oldest actions are
// dropped once the limit is reached.
type MemoryProvider struct {
	limit int

	mu      sync.RWMutex
	actions []types.Action
}

var _ Database = (*MemoryProvider)(nil)

// NewMemory returns an empty provider holding at most limit actions. A limit
// of 0 or less uses the default.
func NewMemory(limit int) *MemoryProvider {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	return &MemoryProvider{limit: limit}
}

// InsertAction implements Database.
func (m *MemoryProvider) InsertAction(ctx context.Context, action types.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// keep the slice sorted; actions almost always arrive in order
	i, _ := slices.BinarySearchFunc(m.actions, action.Timestamp, func(a types.Action, t time.Time) int {
		if a.Timestamp.After(t) {
			return 1
		}
		return -1
	})
	m.actions = slices.Insert(m.actions, i, action)
	if over := len(m.actions) - m.limit; over > 0 {
		m.actions = slices.Delete(m.actions, 0, over)
	}
	return nil
}

// GetActionHistory implements Database.
func (m *MemoryProvider) GetActionHistory(ctx context.Context, start, end time.Time) ([]types.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var actions []types.Action
	for _, a := range m.actions {
		if a.Timestamp.Before(start) || !a.Timestamp.Before(end) {
			continue
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// GetLatestAction implements Database.
func (m *MemoryProvider) GetLatestAction(ctx context.Context) (types.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.actions) == 0 {
		return types.Action{}, ErrNoActions
	}
	return m.actions[len(m.actions)-1], nil
}

// Close implements Database.
func (m *MemoryProvider) Close() error {
	return nil
}
