package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/n1x/internal/services/n1x/room"
)

// Memory keeps rooms in process memory.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]*room.State
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*room.State)}
}

// GetRoom returns a copy of the stored room.
func (m *Memory) GetRoom(ctx context.Context, roomID string) (*room.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.rooms[strings.TrimSpace(roomID)]
	if !ok {
		return nil, ErrNotFound
	}
	out := state.Clone()
	out.Restore()
	return out, nil
}

// PutRoom stores a copy of state.
func (m *Memory) PutRoom(ctx context.Context, state *room.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil || strings.TrimSpace(state.ID) == "" {
		return fmt.Errorf("room id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[state.ID] = state.Clone()
	return nil
}

// IssuedKeys returns the keys recorded on the stored room.
func (m *Memory) IssuedKeys(ctx context.Context, roomID string) ([]string, error) {
	state, err := m.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return state.IssuedKeys(), nil
}
