package f010

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestWitnessesFiltersAndOrdersByJoin(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := Witnesses([]Candidate{
		{Handle: "cass", Trust: 2, JoinedAt: base.Add(2 * time.Second)},
		{Handle: "lurker", Trust: 0, JoinedAt: base},
		{Handle: "ada", Trust: 1, JoinedAt: base.Add(time.Second)},
		{Handle: "bo", Trust: 4, JoinedAt: base.Add(time.Second)},
	})
	want := []string{"ada", "bo", "cass"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("witnesses = %v, want %v", got, want)
	}
	if got := Witnesses(nil); len(got) != 0 {
		t.Fatalf("witnesses(nil) = %v", got)
	}
}

func TestDeriveKeyShapeAndStability(t *testing.T) {
	bucket := TimeBucket(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	a := DeriveKey([]string{"ada", "bo"}, bucket)
	b := DeriveKey([]string{"bo", "ada"}, bucket)
	if a != b {
		t.Fatalf("key depends on witness order: %q vs %q", a, b)
	}
	if !WellFormed(a) {
		t.Fatalf("key %q is not 16 hex chars", a)
	}
	if c := DeriveKey([]string{"ada", "bo"}, bucket+1); c == a {
		t.Fatal("expected a different key for the next bucket")
	}
	if d := DeriveKey([]string{"ada"}, bucket); d == a {
		t.Fatal("expected a different key for a different witness set")
	}
}

func TestTimeBucketGranularity(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)
	if TimeBucket(at) != TimeBucket(at.Add(59*time.Second)) {
		t.Fatal("expected same bucket within a minute")
	}
	if TimeBucket(at) == TimeBucket(at.Add(time.Minute)) {
		t.Fatal("expected new bucket after a minute")
	}
}

func TestKeyCacheExpires(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	cache := NewKeyCache(time.Hour)
	cache.now = func() time.Time { return now }

	cache.Remember("room-a", " ABCDEF0123456789 ")
	if room, ok := cache.Lookup("abcdef0123456789"); !ok || room != "room-a" {
		t.Fatalf("lookup = %q, %v", room, ok)
	}
	now = now.Add(time.Hour)
	if _, ok := cache.Lookup("abcdef0123456789"); ok {
		t.Fatal("expected entry to expire")
	}
	if cache.Len() != 0 {
		t.Fatalf("len = %d, want 0", cache.Len())
	}
}

func TestNilKeyCacheIsInert(t *testing.T) {
	var cache *KeyCache
	cache.Remember("room", "abcdef0123456789")
	if _, ok := cache.Lookup("abcdef0123456789"); ok {
		t.Fatal("nil cache should not find keys")
	}
}

type fakeRooms struct {
	keys map[string][]string
	err  error
}

func (f fakeRooms) IssuedKeys(_ context.Context, roomID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.keys[roomID], nil
}

func TestValidatorPrefersRoomHistory(t *testing.T) {
	v := Validator{Rooms: fakeRooms{keys: map[string][]string{"lobby": {"0011223344556677"}}}, Strict: true}
	res := v.Validate(context.Background(), "lobby", "0011223344556677")
	if !res.Valid || !res.Verified || res.Payload != Payload {
		t.Fatalf("result = %+v", res)
	}
	if res := v.Validate(context.Background(), "other", "0011223344556677"); res.Valid {
		t.Fatalf("strict validator accepted key from another room: %+v", res)
	}
}

func TestValidatorFallsBackToCache(t *testing.T) {
	cache := NewKeyCache(time.Hour)
	cache.Remember("lobby", "8899aabbccddeeff")
	v := Validator{Rooms: fakeRooms{err: errors.New("offline")}, Cache: cache, Strict: true}
	if res := v.Validate(context.Background(), "", "8899AABBCCDDEEFF"); !res.Valid || !res.Verified {
		t.Fatalf("result = %+v", res)
	}
}

func TestValidatorShapeFallback(t *testing.T) {
	v := Validator{}
	res := v.Validate(context.Background(), "", "deadbeefdeadbeef")
	if !res.Valid || res.Verified {
		t.Fatalf("result = %+v, want valid unverified", res)
	}
	for _, bad := range []string{"", "deadbeef", "deadbeefdeadbeefaa", "zzzzzzzzzzzzzzzz"} {
		if res := v.Validate(context.Background(), "", bad); res.Valid {
			t.Fatalf("accepted %q", bad)
		}
	}
}
