package storage

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/louisbranch/n1x/internal/services/n1x/room"
)

// Degrading wraps a durable store. After the first failure it serves every
// call from memory for the rest of the process lifetime, so an unavailable
// database never takes rooms down with it.
type Degrading struct {
	primary  RoomStore
	fallback *Memory
	degraded atomic.Bool
}

// NewDegrading wraps primary. A nil primary starts degraded.
func NewDegrading(primary RoomStore) *Degrading {
	d := &Degrading{primary: primary, fallback: NewMemory()}
	if primary == nil {
		d.degraded.Store(true)
	}
	return d
}

// Degraded reports whether the durable store has been abandoned.
func (d *Degrading) Degraded() bool {
	return d.degraded.Load()
}

// GetRoom reads from the primary until it fails. Missing and corrupt
// records concern one room and pass through without degrading.
func (d *Degrading) GetRoom(ctx context.Context, roomID string) (*room.State, error) {
	if !d.degraded.Load() {
		state, err := d.primary.GetRoom(ctx, roomID)
		if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt) {
			return state, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		d.degrade("get", roomID, err)
	}
	return d.fallback.GetRoom(ctx, roomID)
}

// PutRoom writes to the primary until it fails. The memory copy is kept
// current either way so a later degrade does not lose the latest state.
func (d *Degrading) PutRoom(ctx context.Context, state *room.State) error {
	if err := d.fallback.PutRoom(ctx, state); err != nil {
		return err
	}
	if d.degraded.Load() {
		return nil
	}
	if err := d.primary.PutRoom(ctx, state); err != nil {
		if ctx.Err() != nil {
			return err
		}
		d.degrade("put", state.ID, err)
	}
	return nil
}

// IssuedKeys reads the primary's key log when it keeps one, and the memory
// copy otherwise or once degraded.
func (d *Degrading) IssuedKeys(ctx context.Context, roomID string) ([]string, error) {
	if keyed, ok := d.primary.(KeyLog); ok && !d.degraded.Load() {
		keys, err := keyed.IssuedKeys(ctx, roomID)
		if err == nil {
			return keys, nil
		}
		log.Printf("storage: key log room=%s failed, using memory copy: %v", roomID, err)
	} else if !d.degraded.Load() {
		state, err := d.primary.GetRoom(ctx, roomID)
		if err == nil {
			return state.IssuedKeys(), nil
		}
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return d.fallback.IssuedKeys(ctx, roomID)
}

func (d *Degrading) degrade(op, roomID string, err error) {
	if d.degraded.CompareAndSwap(false, true) {
		log.Printf("storage: %s room=%s failed, continuing in memory: %v", op, roomID, err)
	}
}
