package room

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/n1x/internal/services/n1x/f010"
	"github.com/louisbranch/n1x/internal/services/n1x/fragment"
)

var transitionNotices = map[DaemonState]string{
	Aware:   "daemon state: aware // something in the mesh has noticed you",
	Active:  "daemon state: active // n1x is listening to this room",
	Exposed: "daemon state: exposed // the tenth node is open",
}

// recompute applies DeriveRoomFields and the side effects of every forward
// daemon crossing. Issuance is guarded by the event log, not by the
// crossing, so it happens at most once per room.
func (s *State) recompute(out *Outcome, now time.Time) {
	prev := s.Daemon
	derived := DeriveRoomFields(s.Activity, s.Fragments, s.Trust)
	s.Trust = max(s.Trust, derived.Trust)
	if derived.Daemon > s.Daemon {
		s.Daemon = derived.Daemon
	}
	for next := prev + 1; next <= s.Daemon; next++ {
		out.emit(Event{
			Type:       EventSystem,
			Text:       transitionNotices[next],
			Transition: &Transition{From: next - 1, To: next},
			At:         now,
		})
	}
	if s.issuancePending() {
		s.issue(out, now)
	}
}

func (s *State) issuancePending() bool {
	return s.Daemon == Exposed && len(s.F010Events) == 0
}

// issue records an f010 key for the current witnesses. With no witnesses
// nothing is recorded and a later event retries.
func (s *State) issue(out *Outcome, now time.Time) {
	occupants := s.Occupants()
	candidates := make([]f010.Candidate, len(occupants))
	for i, o := range occupants {
		candidates[i] = f010.Candidate{Handle: o.Handle, Trust: o.Trust, JoinedAt: o.JoinedAt}
	}
	witnesses := f010.Witnesses(candidates)
	if len(witnesses) == 0 {
		out.IssuanceSkipped = true
		return
	}

	event := F010Event{
		Key:       f010.DeriveKey(witnesses, f010.TimeBucket(now)),
		Witnesses: witnesses,
		IssuedAt:  now,
	}
	s.F010Events = append(s.F010Events, event)
	s.addFragments([]string{fragment.Multiplayer})

	text := fmt.Sprintf("witnessed by %s. the tenth node answers to all of you: %s", strings.Join(witnesses, ", "), event.Key)
	msg := s.appendMessage(KindNarrative, NarrativeHandle, text, now)
	issued := event
	out.Issued = &issued
	out.emit(Event{Type: EventNarrative, Handle: NarrativeHandle, Text: text, Message: &msg, Key: &issued, At: now})
	out.Changed = true
}
