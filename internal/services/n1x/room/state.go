// Package room holds the authoritative per-room state machine: occupancy,
// cumulative activity, room trust, daemon state and f010 issuance.
//
// A State is not safe for concurrent use. Its owner serializes every event
// against it so that derived fields are never observed half-updated.
package room

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/n1x/internal/services/n1x/fragment"
	"github.com/louisbranch/n1x/internal/services/n1x/progression"
)

// DaemonState is the ordinal room mode.
type DaemonState int

const (
	Dormant DaemonState = iota
	Aware
	Active
	Exposed
)

var daemonNames = [...]string{"dormant", "aware", "active", "exposed"}

func (d DaemonState) String() string {
	if d < Dormant || d > Exposed {
		return fmt.Sprintf("daemon(%d)", int(d))
	}
	return daemonNames[d]
}

// MarshalText encodes the state by name.
func (d DaemonState) MarshalText() ([]byte, error) {
	if d < Dormant || d > Exposed {
		return nil, fmt.Errorf("invalid daemon state %d", int(d))
	}
	return []byte(daemonNames[d]), nil
}

// UnmarshalText decodes a state name.
func (d *DaemonState) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, candidate := range daemonNames {
		if candidate == name {
			*d = DaemonState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown daemon state %q", name)
}

// Message kinds kept in history.
const (
	KindChat      = "chat"
	KindNarrative = "n1x_response"
)

// NarrativeHandle is the sender shown for bot messages.
const NarrativeHandle = "N1X"

// Message is one history entry.
type Message struct {
	Seq    int64     `json:"seq"`
	Kind   string    `json:"kind"`
	Handle string    `json:"handle"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// F010Event records one key issuance.
type F010Event struct {
	Key       string    `json:"key"`
	Witnesses []string  `json:"witnesses"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Occupant is a live participant. Occupancy is never persisted.
type Occupant struct {
	Handle   string
	Trust    int
	JoinedAt time.Time
	order    int64
}

// State is a room. Exported fields are the durable data; occupancy is
// rebuilt by rejoins after a restart.
type State struct {
	ID         string      `json:"id"`
	Activity   int         `json:"activity_score"`
	Trust      int         `json:"room_trust"`
	Fragments  []string    `json:"collective_fragments"`
	Daemon     DaemonState `json:"daemon_state"`
	F010Events []F010Event `json:"f010_events"`
	Messages   []Message   `json:"messages"`
	NextSeq    int64       `json:"next_seq"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	occupants  map[string]*Occupant
	joins      int64
}

// New returns an empty dormant room.
func New(id string, now time.Time) *State {
	return &State{ID: id, NextSeq: 1, CreatedAt: now.UTC(), UpdatedAt: now.UTC()}
}

// Restore prepares a decoded room for use. Persisted data is sanitized so
// that a hand-edited or older record cannot break monotonicity.
func (s *State) Restore() {
	s.Fragments = knownFragments(s.Fragments)
	s.Trust = progression.ClampTrust(s.Trust)
	if s.Activity < 0 {
		s.Activity = 0
	}
	if s.Daemon < Dormant || s.Daemon > Exposed {
		s.Daemon = Dormant
	}
	derived := DeriveRoomFields(s.Activity, s.Fragments, s.Trust)
	s.Trust = derived.Trust
	s.Daemon = max(s.Daemon, derived.Daemon)
	if len(s.Messages) > HistoryWindow {
		s.Messages = append([]Message(nil), s.Messages[len(s.Messages)-HistoryWindow:]...)
	}
	// Sequence numbers start at 1 so a zero seq always means "no message".
	s.NextSeq = max(s.NextSeq, 1)
	for _, m := range s.Messages {
		if m.Seq >= s.NextSeq {
			s.NextSeq = m.Seq + 1
		}
	}
	s.occupants = nil
}

// OccupantCount returns the number of live occupants.
func (s *State) OccupantCount() int {
	return len(s.occupants)
}

// Occupant returns a copy of a live occupant.
func (s *State) Occupant(handle string) (Occupant, bool) {
	o, ok := s.occupants[handle]
	if !ok {
		return Occupant{}, false
	}
	return *o, true
}

// Occupants lists live occupants in join order.
func (s *State) Occupants() []Occupant {
	out := make([]Occupant, 0, len(s.occupants))
	for _, o := range s.occupants {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].order < out[j].order
	})
	return out
}

// EffectiveTrust is max(individual, room) for a live occupant, or the room
// trust for anyone else.
func (s *State) EffectiveTrust(handle string) int {
	if o, ok := s.occupants[handle]; ok {
		return max(o.Trust, s.Trust)
	}
	return s.Trust
}

// IssuedKeys returns every key the room has issued, oldest first.
func (s *State) IssuedKeys() []string {
	keys := make([]string, 0, len(s.F010Events))
	for _, e := range s.F010Events {
		keys = append(keys, e.Key)
	}
	return keys
}

// KeysWitnessedBy returns the keys handle is a recorded witness for.
func (s *State) KeysWitnessedBy(handle string) []string {
	var keys []string
	for _, e := range s.F010Events {
		for _, w := range e.Witnesses {
			if w == handle {
				keys = append(keys, e.Key)
				break
			}
		}
	}
	return keys
}

// HasFragment reports whether the collective set holds id.
func (s *State) HasFragment(id string) bool {
	for _, f := range s.Fragments {
		if f == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the durable fields, suitable for persistence
// outside the owner's lock.
func (s *State) Clone() *State {
	out := &State{
		ID:         s.ID,
		Activity:   s.Activity,
		Trust:      s.Trust,
		Fragments:  append([]string(nil), s.Fragments...),
		Daemon:     s.Daemon,
		F010Events: make([]F010Event, len(s.F010Events)),
		Messages:   append([]Message(nil), s.Messages...),
		NextSeq:    s.NextSeq,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	for i, e := range s.F010Events {
		e.Witnesses = append([]string(nil), e.Witnesses...)
		out.F010Events[i] = e
	}
	return out
}

func (s *State) addFragments(ids []string) bool {
	merged := knownFragments(append(append([]string(nil), s.Fragments...), ids...))
	if len(merged) == len(s.Fragments) {
		return false
	}
	s.Fragments = merged
	return true
}

// knownFragments keeps recognised ids, sorted and deduplicated.
func knownFragments(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if !fragment.IsKnown(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
