package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/n1x/internal/services/n1x/f010"
	"github.com/louisbranch/n1x/internal/services/n1x/progression"
	"github.com/louisbranch/n1x/internal/services/n1x/room"
	"github.com/louisbranch/n1x/internal/services/n1x/storage"
	"go.opentelemetry.io/otel/trace"
)

// DefaultRoom is joined when a client names no room.
const DefaultRoom = "mesh"

// hub owns one actor per room id.
type hub struct {
	mu       sync.Mutex
	rooms    map[string]*roomActor
	store    storage.RoomStore
	keys     *f010.KeyCache
	narrator *narrator
	tracer   trace.Tracer
	now      func() time.Time
	// storageTimeout caps each room load and write.
	storageTimeout time.Duration
}

func (h *hub) room(roomID string) *roomActor {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[roomID]; ok {
		return r
	}
	r := &roomActor{
		id:          roomID,
		hub:         h,
		connections: make(map[string]string),
		peers:       make(map[string]*wsPeer),
	}
	h.rooms[roomID] = r
	return r
}

func (h *hub) lookup(roomID string) (*roomActor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	return r, ok
}

// IssuedKeys answers key validation from a live room, the key log, or the
// stored room record, in that order.
func (h *hub) IssuedKeys(ctx context.Context, roomID string) ([]string, error) {
	if r, ok := h.lookup(roomID); ok {
		if keys, err := r.issuedKeys(ctx); err == nil {
			return keys, nil
		}
	}
	if h.store == nil {
		return nil, storage.ErrNotFound
	}
	if keyed, ok := h.store.(storage.KeyLog); ok {
		return keyed.IssuedKeys(ctx, roomID)
	}
	state, err := h.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return state.IssuedKeys(), nil
}

// roomActor serializes every event for one room. The mutex is held across
// the state transition, delivery and persistence so that broadcasts keep
// arrival order and stored snapshots never go backwards.
type roomActor struct {
	mu     sync.Mutex
	id     string
	hub    *hub
	state  *room.State
	loaded bool
	// memoryOnly rooms are never written back; set when the stored record
	// could not be decoded.
	memoryOnly bool
	// connections maps connection id to the handle it joined as.
	connections map[string]string
	peers       map[string]*wsPeer
}

// ensureLoadedLocked loads the room on first use. A missing record starts a
// fresh room and a corrupt one runs in memory only. Any other failure leaves
// the room unloaded so nothing overwrites the stored record; the caller drops
// the event and the next one retries.
func (r *roomActor) ensureLoadedLocked(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	now := r.hub.now()
	if r.hub.store == nil {
		r.state = room.New(r.id, now)
		r.loaded = true
		return nil
	}
	loadCtx, cancel := context.WithTimeout(ctx, r.hub.storageTimeout)
	defer cancel()
	state, err := r.hub.store.GetRoom(loadCtx, r.id)
	switch {
	case err == nil:
		r.state = state
	case errors.Is(err, storage.ErrNotFound):
		r.state = room.New(r.id, now)
	case errors.Is(err, storage.ErrCorrupt):
		log.Printf("n1x: room=%s record corrupt, running in memory only: %v", r.id, err)
		r.state = room.New(r.id, now)
		r.memoryOnly = true
	default:
		return fmt.Errorf("load room %s: %w", r.id, err)
	}
	r.loaded = true
	for _, key := range r.state.IssuedKeys() {
		r.hub.keys.Remember(r.id, key)
	}
	return nil
}

func (r *roomActor) join(ctx context.Context, connID string, peer *wsPeer, handle string, snap progression.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoadedLocked(ctx); err != nil {
		log.Printf("n1x: join room=%s conn=%s dropped: %v", r.id, connID, err)
		if peer != nil {
			_ = peer.writeFrame(frameFor(r.id, room.Event{
				Type: room.EventSystem,
				Text: "room unreachable // retry the join",
				At:   r.hub.now().UTC(),
			}))
		}
		return
	}

	if current, ok := r.connections[connID]; ok && current != handle {
		r.leaveLocked(ctx, connID)
	}
	handle = r.uniqueHandleLocked(connID, handle)
	r.connections[connID] = handle
	r.peers[connID] = peer

	out := r.state.Join(handle, snap, r.hub.now())
	r.commitLocked(ctx, out)
}

func (r *roomActor) chat(ctx context.Context, connID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.connections[connID]
	if !ok || r.state == nil {
		return
	}
	out := r.state.Chat(handle, text, r.hub.now())
	r.commitLocked(ctx, out)
	if out.Addressed && r.hub.narrator != nil {
		r.hub.narrator.dispatch(ctx, r, r.narrativeRequestLocked(handle, text))
	}
}

func (r *roomActor) contribute(ctx context.Context, connID, fragmentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.connections[connID]
	if !ok || r.state == nil {
		return
	}
	r.commitLocked(ctx, r.state.Contribute(handle, fragmentID, r.hub.now()))
}

func (r *roomActor) recordNarrative(ctx context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return
	}
	r.commitLocked(ctx, r.state.RecordNarrative(text, r.hub.now()))
}

func (r *roomActor) leave(ctx context.Context, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(ctx, connID)
}

func (r *roomActor) leaveLocked(ctx context.Context, connID string) {
	handle, ok := r.connections[connID]
	if !ok || r.state == nil {
		return
	}
	out := r.state.Disconnect(handle, r.hub.now())
	departing := r.peers[connID]
	for _, e := range out.Events {
		if e.Audience == room.Only && e.Target == handle && departing != nil {
			_ = departing.writeFrame(frameFor(r.id, e))
		}
	}
	delete(r.connections, connID)
	delete(r.peers, connID)
	r.commitLocked(ctx, out)
}

func (r *roomActor) issuedKeys(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	return r.state.IssuedKeys(), nil
}

// commitLocked delivers events, remembers issued keys and persists.
func (r *roomActor) commitLocked(ctx context.Context, out room.Outcome) {
	for _, e := range out.Events {
		frame := frameFor(r.id, e)
		for connID, handle := range r.connections {
			if !e.Delivers(handle) {
				continue
			}
			if peer := r.peers[connID]; peer != nil {
				if err := peer.writeFrame(frame); err != nil {
					log.Printf("n1x: write room=%s conn=%s failed: %v", r.id, connID, err)
				}
			}
		}
	}
	if out.Issued != nil {
		r.hub.keys.Remember(r.id, out.Issued.Key)
		log.Printf("n1x: issued f010 room=%s witnesses=%s", r.id, strings.Join(out.Issued.Witnesses, ","))
	}
	if out.IssuanceSkipped {
		log.Printf("n1x: room=%s exposed with no witnesses, issuance deferred", r.id)
	}
	if !out.Changed || r.hub.store == nil || r.memoryOnly {
		return
	}
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.hub.storageTimeout)
	defer cancel()
	if err := r.hub.store.PutRoom(putCtx, r.state); err != nil {
		log.Printf("n1x: persist room=%s failed: %v", r.id, err)
	}
}

// uniqueHandleLocked suffixes handle when another connection already holds it.
func (r *roomActor) uniqueHandleLocked(connID, handle string) string {
	taken := func(candidate string) bool {
		for otherID, other := range r.connections {
			if otherID != connID && other == candidate {
				return true
			}
		}
		return false
	}
	if !taken(handle) {
		return handle
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", handle, n)
		if !taken(candidate) {
			return candidate
		}
	}
}
