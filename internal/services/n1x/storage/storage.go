// Package storage defines persistence contracts for room state.
package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/n1x/internal/services/n1x/room"
)

var (
	// ErrNotFound indicates a requested room has never been persisted.
	ErrNotFound = errors.New("room not found")
	// ErrCorrupt indicates a stored room record cannot be decoded. It
	// concerns that room only; the store itself is healthy.
	ErrCorrupt = errors.New("room record corrupt")
)

// RoomStore persists the durable fields of rooms. Live occupancy is never
// stored.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*room.State, error)
	PutRoom(ctx context.Context, state *room.State) error
}

// KeyLog answers which f010 keys a room has issued without loading the
// whole room record.
type KeyLog interface {
	IssuedKeys(ctx context.Context, roomID string) ([]string, error)
}
