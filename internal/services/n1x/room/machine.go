package room

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/n1x/internal/services/n1x/fragment"
	"github.com/louisbranch/n1x/internal/services/n1x/progression"
)

const (
	// HistoryWindow bounds message replay.
	HistoryWindow = 50
	// AddressToken marks chat aimed at the narrative bot.
	AddressToken = "@n1x"
	// AddressedActivity and PlainActivity are the eligible chat increments.
	AddressedActivity = 3
	PlainActivity     = 1
	// EligibleTrust is the individual trust needed for chat to count.
	EligibleTrust = 1
)

// Join registers handle with the client's progression snapshot. A repeated
// join for a live handle refreshes its trust and replays the welcome.
func (s *State) Join(handle string, snap progression.Snapshot, now time.Time) Outcome {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return Outcome{}
	}
	now = now.UTC()
	if s.occupants == nil {
		s.occupants = make(map[string]*Occupant)
	}

	var out Outcome
	trust := progression.ClampTrust(snap.Trust)
	existing, rejoin := s.occupants[handle]
	if rejoin {
		existing.Trust = max(existing.Trust, trust)
	} else {
		s.joins++
		s.occupants[handle] = &Occupant{Handle: handle, Trust: trust, JoinedAt: now, order: s.joins}
	}
	s.addFragments(snap.Fragments)

	if !rejoin {
		out.emit(Event{Type: EventJoin, Audience: Others, Target: handle, Handle: handle, At: now})
		if len(s.occupants) == 2 {
			out.emit(Event{Type: EventSystem, Mode: ModeMesh, Text: "mesh mode engaged // another signal is on the line", At: now})
		}
	}
	s.recompute(&out, now)
	s.touch(&out, now)
	out.emit(Event{Type: EventStateUpdate, Snapshot: s.snapshot(), At: now})

	welcome := s.welcome(handle)
	out.Welcome = welcome
	out.Events = append([]Event{{Type: EventInit, Audience: Only, Target: handle, Handle: handle, Welcome: welcome, At: now}}, out.Events...)
	return out
}

// Chat appends a message from a live occupant. The text is kept verbatim;
// unknown senders and blank text are dropped.
func (s *State) Chat(handle, text string, now time.Time) Outcome {
	handle = strings.TrimSpace(handle)
	occupant, ok := s.occupants[handle]
	if !ok || strings.TrimSpace(text) == "" {
		return Outcome{}
	}
	now = now.UTC()

	var out Outcome
	msg := s.appendMessage(KindChat, handle, text, now)
	out.Addressed = Addresses(text)
	out.emit(Event{Type: EventChat, Handle: handle, Text: text, Message: &msg, At: now})
	s.touch(&out, now)

	if occupant.Trust >= EligibleTrust {
		if out.Addressed {
			s.Activity += AddressedActivity
		} else {
			s.Activity += PlainActivity
		}
		s.recompute(&out, now)
		out.emit(Event{Type: EventStateUpdate, Snapshot: s.snapshot(), At: now})
	} else if s.issuancePending() {
		s.recompute(&out, now)
	}
	return out
}

// Contribute merges a fragment an occupant decrypted while in the room.
func (s *State) Contribute(handle, fragmentID string, now time.Time) Outcome {
	handle = strings.TrimSpace(handle)
	fragmentID = strings.ToLower(strings.TrimSpace(fragmentID))
	if _, ok := s.occupants[handle]; !ok || !fragment.IsKnown(fragmentID) {
		return Outcome{}
	}
	if !s.addFragments([]string{fragmentID}) {
		return Outcome{}
	}
	now = now.UTC()

	var out Outcome
	out.emit(Event{Type: EventSystem, Handle: handle, Text: fmt.Sprintf("%s merged %s into the mesh", handle, fragmentID), At: now})
	s.touch(&out, now)
	s.recompute(&out, now)
	out.emit(Event{Type: EventStateUpdate, Snapshot: s.snapshot(), At: now})
	return out
}

// Disconnect removes handle and returns its sync payload. Activity and room
// trust are untouched.
func (s *State) Disconnect(handle string, now time.Time) Outcome {
	handle = strings.TrimSpace(handle)
	if _, ok := s.occupants[handle]; !ok {
		return Outcome{}
	}
	now = now.UTC()

	sync := &Sync{
		Handle:         handle,
		EffectiveTrust: s.EffectiveTrust(handle),
		Fragments:      append([]string(nil), s.Fragments...),
		Keys:           s.KeysWitnessedBy(handle),
	}
	delete(s.occupants, handle)

	out := Outcome{Sync: sync}
	out.emit(Event{Type: EventSync, Audience: Only, Target: handle, Handle: handle, Sync: sync, At: now})
	out.emit(Event{Type: EventSystem, Handle: handle, Text: handle + " dropped off the mesh", At: now})
	if len(s.occupants) == 1 {
		out.emit(Event{Type: EventSystem, Mode: ModeSolo, Text: "solo mode // the mesh falls quiet", At: now})
	}
	if s.issuancePending() {
		s.recompute(&out, now)
	}
	out.emit(Event{Type: EventStateUpdate, Snapshot: s.snapshot(), At: now})
	return out
}

// RecordNarrative appends a bot reply to history.
func (s *State) RecordNarrative(text string, now time.Time) Outcome {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{}
	}
	now = now.UTC()
	var out Outcome
	msg := s.appendMessage(KindNarrative, NarrativeHandle, text, now)
	out.emit(Event{Type: EventNarrative, Handle: NarrativeHandle, Text: text, Message: &msg, At: now})
	s.touch(&out, now)
	return out
}

// Snapshot returns the current broadcast projection.
func (s *State) Snapshot() Snapshot {
	return *s.snapshot()
}

// Addresses reports whether text names the narrative bot.
func Addresses(text string) bool {
	return strings.Contains(strings.ToLower(text), AddressToken)
}

func (s *State) appendMessage(kind, handle, text string, now time.Time) Message {
	msg := Message{Seq: s.NextSeq, Kind: kind, Handle: handle, Text: text, At: now}
	s.NextSeq++
	s.Messages = append(s.Messages, msg)
	if over := len(s.Messages) - HistoryWindow; over > 0 {
		s.Messages = append(s.Messages[:0:0], s.Messages[over:]...)
	}
	return msg
}

func (s *State) touch(out *Outcome, now time.Time) {
	s.UpdatedAt = now
	out.Changed = true
}

func (s *State) snapshot() *Snapshot {
	occupants := s.Occupants()
	views := make([]OccupantView, len(occupants))
	for i, o := range occupants {
		views[i] = OccupantView{Handle: o.Handle, Trust: o.Trust, EffectiveTrust: max(o.Trust, s.Trust)}
	}
	return &Snapshot{
		Trust:     s.Trust,
		Daemon:    s.Daemon,
		Activity:  s.Activity,
		Fragments: append([]string(nil), s.Fragments...),
		Occupants: views,
	}
}

func (s *State) welcome(handle string) *Welcome {
	history := append([]Message(nil), s.Messages...)
	return &Welcome{
		Handle:         handle,
		EffectiveTrust: s.EffectiveTrust(handle),
		Fragments:      append([]string(nil), s.Fragments...),
		Keys:           s.KeysWitnessedBy(handle),
		History:        history,
		Snapshot:       *s.snapshot(),
	}
}
