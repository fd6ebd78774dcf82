package progression

import (
	"sync"
	"time"
)

// Store persists one client's progression. Get returns defaults when nothing
// was stored yet; the defaults are persisted so the identity stays stable.
type Store interface {
	Get() (Progression, error)
	Set(Progression) error
}

// MemoryStore keeps progression in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	value *Progression
	now   func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Get returns the stored progression, creating defaults on first use.
func (s *MemoryStore) Get() (Progression, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == nil {
		fresh := Defaults(s.now())
		s.value = &fresh
	}
	return clone(*s.value), nil
}

// Set replaces the stored progression.
func (s *MemoryStore) Set(p Progression) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := clone(p)
	s.value = &stored
	return nil
}

func clone(p Progression) Progression {
	p.Fragments = append([]string{}, p.Fragments...)
	return p
}
