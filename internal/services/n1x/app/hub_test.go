package server

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/n1x/internal/platform/storage/sqlmigrate"
	"github.com/louisbranch/n1x/internal/services/n1x/decrypt"
	"github.com/louisbranch/n1x/internal/services/n1x/f010"
	"github.com/louisbranch/n1x/internal/services/n1x/progression"
	"github.com/louisbranch/n1x/internal/services/n1x/room"
	"github.com/louisbranch/n1x/internal/services/n1x/storage"
	"github.com/louisbranch/n1x/internal/services/n1x/storage/sqlstore"
)

// stallingStore blocks its first GetRoom until the caller's deadline.
type stallingStore struct {
	storage.RoomStore

	mu      sync.Mutex
	stalled bool
}

func (s *stallingStore) GetRoom(ctx context.Context, roomID string) (*room.State, error) {
	s.mu.Lock()
	first := !s.stalled
	s.stalled = true
	s.mu.Unlock()
	if first {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.RoomStore.GetRoom(ctx, roomID)
}

// corruptStore reports every record as undecodable and counts writes.
type corruptStore struct {
	mu   sync.Mutex
	puts int
}

func (c *corruptStore) GetRoom(context.Context, string) (*room.State, error) {
	return nil, storage.ErrCorrupt
}

func (c *corruptStore) PutRoom(context.Context, *room.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	return nil
}

func seededRoom(t *testing.T, store storage.RoomStore, activity int) {
	t.Helper()
	state := room.New("lobby", time.Now())
	state.Activity = activity
	state.Restore()
	if err := store.PutRoom(context.Background(), state); err != nil {
		t.Fatalf("seed room: %v", err)
	}
}

func TestLoadTimeoutLeavesStoredRoomIntact(t *testing.T) {
	durable := storage.NewMemory()
	seededRoom(t, durable, 600)
	store := storage.NewDegrading(&stallingStore{RoomStore: durable})
	h := newHub(context.Background(), Dependencies{Store: store}, time.Second)
	h.storageTimeout = 20 * time.Millisecond

	r := h.room("lobby")
	r.join(context.Background(), "c1", nil, "ada", progression.Snapshot{})
	if r.loaded || r.state != nil || len(r.connections) != 0 {
		t.Fatalf("join after failed load went through: loaded=%v connections=%v", r.loaded, r.connections)
	}
	if store.Degraded() {
		t.Fatal("a load timeout degraded the store")
	}
	stored, err := durable.GetRoom(context.Background(), "lobby")
	if err != nil {
		t.Fatalf("get durable room: %v", err)
	}
	if stored.Activity != 600 || stored.Trust != 4 || stored.Daemon != room.Active {
		t.Fatalf("durable room = %d/%d/%s, want 600/4/active", stored.Activity, stored.Trust, stored.Daemon)
	}

	h.storageTimeout = time.Second
	r.join(context.Background(), "c1", nil, "ada", progression.Snapshot{})
	if !r.loaded || r.state.Activity != 600 || r.state.OccupantCount() != 1 {
		t.Fatalf("retried join state = %+v", r.state)
	}
}

func TestCorruptRoomRunsInMemoryOnly(t *testing.T) {
	store := &corruptStore{}
	h := newHub(context.Background(), Dependencies{Store: store}, time.Second)

	r := h.room("lobby")
	r.join(context.Background(), "c1", nil, "ada", progression.Snapshot{Trust: 1})
	r.chat(context.Background(), "c1", "still here")
	if !r.loaded || r.state.OccupantCount() != 1 || len(r.state.Messages) != 1 {
		t.Fatalf("corrupt room did not run: %+v", r.state)
	}
	if store.puts != 0 {
		t.Fatalf("corrupt record overwritten %d times", store.puts)
	}
}

func TestValidateReadsKeyLogAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.db")
	const issued = "a1b2c3d4e5f60718"

	first, err := sqlstore.Open(context.Background(), sqlstore.Config{Dialect: sqlmigrate.SQLite, Path: path})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	state := room.New("lobby", time.Now())
	state.F010Events = []room.F010Event{{Key: issued, Witnesses: []string{"ada"}, IssuedAt: time.Now()}}
	if err := first.PutRoom(context.Background(), state); err != nil {
		t.Fatalf("put room: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := sqlstore.Open(context.Background(), sqlstore.Config{Dialect: sqlmigrate.SQLite, Path: path})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	handler, stop := NewHandler(Dependencies{Store: storage.NewDegrading(reopened), StrictKeys: true}, time.Second)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		stop()
	})

	var res f010.Result
	postJSON(t, srv.URL+decrypt.ValidatePath, decrypt.ValidateRequest{RoomID: "lobby", Key: issued}, &res)
	if !res.Valid {
		t.Fatalf("issued key after restart = %+v", res)
	}
}
