package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/n1x/internal/services/n1x/progression"
	"github.com/louisbranch/n1x/internal/services/n1x/room"
)

var epoch = time.Date(2026, 5, 6, 7, 8, 0, 0, time.UTC)

func TestMemoryRoundTripDropsOccupants(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	if _, err := store.GetRoom(ctx, "lobby"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing = %v, want ErrNotFound", err)
	}

	state := room.New("lobby", epoch)
	state.Join("ada", progression.Snapshot{Trust: 1, Fragments: []string{"f001"}}, epoch)
	state.Chat("ada", "hi", epoch)
	if err := store.PutRoom(ctx, state); err != nil {
		t.Fatalf("put: %v", err)
	}
	state.Chat("ada", "after put", epoch)

	got, err := store.GetRoom(ctx, "lobby")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Activity != 1 || len(got.Messages) != 1 || got.OccupantCount() != 0 {
		t.Fatalf("stored room = %+v", got)
	}
	if err := store.PutRoom(ctx, room.New(" ", epoch)); err == nil {
		t.Fatal("expected error for blank room id")
	}
}

type failingStore struct {
	gets, puts int
	err        error
}

func (f *failingStore) GetRoom(context.Context, string) (*room.State, error) {
	f.gets++
	return nil, f.err
}

func (f *failingStore) PutRoom(context.Context, *room.State) error {
	f.puts++
	return f.err
}

func TestDegradingPassesNotFoundThrough(t *testing.T) {
	primary := &failingStore{err: ErrNotFound}
	store := NewDegrading(primary)
	if _, err := store.GetRoom(context.Background(), "lobby"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get = %v", err)
	}
	if store.Degraded() {
		t.Fatal("not found should not degrade")
	}
}

func TestDegradingFallsBackToMemory(t *testing.T) {
	primary := &failingStore{err: errors.New("disk gone")}
	store := NewDegrading(primary)
	ctx := context.Background()

	state := room.New("lobby", epoch)
	state.Activity = 42
	if err := store.PutRoom(ctx, state); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !store.Degraded() {
		t.Fatal("expected degraded after failed put")
	}
	got, err := store.GetRoom(ctx, "lobby")
	if err != nil || got.Activity != 42 {
		t.Fatalf("get = %+v, %v", got, err)
	}
	if err := store.PutRoom(ctx, state); err != nil {
		t.Fatalf("second put: %v", err)
	}
	if primary.puts != 1 || primary.gets != 0 {
		t.Fatalf("primary calls = %d puts %d gets", primary.puts, primary.gets)
	}
}

func TestDegradingNilPrimary(t *testing.T) {
	store := NewDegrading(nil)
	if !store.Degraded() {
		t.Fatal("nil primary should start degraded")
	}
	if err := store.PutRoom(context.Background(), room.New("lobby", epoch)); err != nil {
		t.Fatalf("put: %v", err)
	}
}

type keyedStore struct {
	failingStore
	keys    []string
	keysErr error
	lookups int
}

func (k *keyedStore) IssuedKeys(context.Context, string) ([]string, error) {
	k.lookups++
	return k.keys, k.keysErr
}

func TestDegradingIssuedKeysUsesPrimaryKeyLog(t *testing.T) {
	primary := &keyedStore{keys: []string{"00112233aabbccdd"}}
	store := NewDegrading(primary)

	keys, err := store.IssuedKeys(context.Background(), "lobby")
	if err != nil || len(keys) != 1 || keys[0] != "00112233aabbccdd" {
		t.Fatalf("keys = %v, %v", keys, err)
	}
	if primary.lookups != 1 {
		t.Fatalf("key log lookups = %d", primary.lookups)
	}
}

func TestDegradingIssuedKeysFallsBackToMemory(t *testing.T) {
	primary := &keyedStore{keysErr: errors.New("disk gone")}
	store := NewDegrading(primary)
	ctx := context.Background()

	state := room.New("lobby", epoch)
	state.F010Events = []room.F010Event{{Key: "ffeeddccbbaa9988", Witnesses: []string{"ada"}, IssuedAt: epoch}}
	if err := store.PutRoom(ctx, state); err != nil {
		t.Fatalf("put: %v", err)
	}
	keys, err := store.IssuedKeys(ctx, "lobby")
	if err != nil || len(keys) != 1 || keys[0] != "ffeeddccbbaa9988" {
		t.Fatalf("keys = %v, %v", keys, err)
	}
}

func TestDegradingPassesCorruptAndTimeoutThrough(t *testing.T) {
	for _, err := range []error{ErrCorrupt, context.DeadlineExceeded} {
		primary := &failingStore{err: err}
		store := NewDegrading(primary)
		ctx := context.Background()
		if errors.Is(err, context.DeadlineExceeded) {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, 0)
			defer cancel()
		}
		if _, got := store.GetRoom(ctx, "lobby"); !errors.Is(got, err) {
			t.Fatalf("get = %v, want %v", got, err)
		}
		if store.Degraded() {
			t.Fatalf("%v degraded the store", err)
		}
	}
}
